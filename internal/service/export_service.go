package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/arena-booking-api/internal/models"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
	"github.com/noah-isme/arena-booking-api/pkg/export"
)

// Agenda export formats.
const (
	AgendaFormatCSV = "csv"
	AgendaFormatPDF = "pdf"
)

// Agenda export ranges.
const (
	AgendaRangeDay      = "day"
	AgendaRangeUpcoming = "upcoming"
)

var agendaHeaders = []string{"Data", "Início", "Fim", "Duração", "Disciplina", "Professor", "Descrição"}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title, subtitle string) ([]byte, error)
}

// AgendaSource is the booking session an agenda is exported from.
type AgendaSource interface {
	View() BookingView
}

// UpcomingLister lists events from now on when date is nil.
type UpcomingLister interface {
	ListEvents(ctx context.Context, date *time.Time) ([]models.Event, error)
}

// AgendaExport is a rendered agenda ready to download.
type AgendaExport struct {
	Filename    string
	ContentType string
	Payload     []byte
	Rows        int
}

// ExportService renders a student's bookings as CSV or PDF.
type ExportService struct {
	csv    csvRenderer
	pdf    pdfRenderer
	marker string
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(csv csvRenderer, pdf pdfRenderer, marker string, loc *time.Location, now func() time.Time, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter(';')
	}
	if pdf == nil {
		pdf = export.NewPDFExporter(map[string]float64{"Data": 28, "Início": 20, "Fim": 20, "Duração": 22})
	}
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &ExportService{csv: csv, pdf: pdf, marker: marker, loc: loc, now: now, logger: logger}
}

// Day exports the bookings shown for the session's current date, with the view filters applied.
func (s *ExportService) Day(ctx context.Context, source AgendaSource, studentID, format string) (*AgendaExport, error) {
	view := source.View()
	if !view.Connected {
		return nil, appErrors.ErrCalendarAuth
	}
	subtitle := "Agendamentos de " + view.Filter.Date
	return s.render(view.Events, format, "day_"+view.Filter.Date, studentID, subtitle)
}

// Upcoming exports every booking from now until the calendar listing horizon.
func (s *ExportService) Upcoming(ctx context.Context, gateway UpcomingLister, studentID, format string) (*AgendaExport, error) {
	events, err := gateway.ListEvents(ctx, nil)
	if err != nil {
		return nil, err
	}
	return s.render(events, format, "upcoming", studentID, "Próximos agendamentos")
}

func (s *ExportService) render(events []models.Event, format, scope, studentID, subtitle string) (*AgendaExport, error) {
	dataset := s.dataset(events)
	title := strings.TrimSpace(s.marker + " - Agenda de monitorias")

	var (
		payload     []byte
		contentType string
		err         error
	)
	switch strings.ToLower(format) {
	case "", AgendaFormatCSV:
		format = AgendaFormatCSV
		contentType = "text/csv; charset=utf-8"
		payload, err = s.csv.Render(dataset)
	case AgendaFormatPDF:
		format = AgendaFormatPDF
		contentType = "application/pdf"
		payload, err = s.pdf.Render(dataset, title, subtitle)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		s.logger.Error("render agenda failed", zap.String("format", format), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render agenda")
	}

	return &AgendaExport{
		Filename:    s.filename(studentID, scope, format),
		ContentType: contentType,
		Payload:     payload,
		Rows:        len(dataset.Rows),
	}, nil
}

func (s *ExportService) dataset(events []models.Event) export.Dataset {
	dataset := export.Dataset{Headers: agendaHeaders}
	for _, event := range events {
		discipline, professor := event.Discipline, event.Professor
		if discipline == "" {
			discipline, professor, _ = parseBookingTitle(s.marker, event.Title)
		}
		start, end := event.Start.In(s.loc), event.End.In(s.loc)
		dataset.Append(
			start.Format("02/01/2006"),
			start.Format("15:04"),
			end.Format("15:04"),
			event.DurationLabel(),
			discipline,
			professor,
			event.Description,
		)
	}
	return dataset
}

func (s *ExportService) filename(studentID, scope, format string) string {
	timestamp := s.now().In(s.loc).Format("20060102_150405")
	return fmt.Sprintf("agenda_%s_%s_%s.%s", sanitizeFilename(studentID), sanitizeFilename(scope), timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_", `"`, "")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
