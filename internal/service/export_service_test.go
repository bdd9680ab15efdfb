package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/arena-booking-api/internal/models"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
	"github.com/noah-isme/arena-booking-api/pkg/export"
)

type staticAgenda struct {
	view BookingView
}

func (s staticAgenda) View() BookingView { return s.view }

type staticLister struct {
	events []models.Event
	err    error
	dates  []*time.Time
}

func (s *staticLister) ListEvents(ctx context.Context, date *time.Time) ([]models.Event, error) {
	s.dates = append(s.dates, date)
	return s.events, s.err
}

func newExportServiceForTest(t *testing.T) (*ExportService, *time.Location) {
	t.Helper()
	loc := saoPaulo(t)
	now := time.Date(2025, 6, 9, 8, 30, 0, 0, loc)
	svc := NewExportService(export.NewCSVExporter(';'), nil, "ARENA", loc, fixedClock(now), nil)
	return svc, loc
}

func TestExportServiceDayCSV(t *testing.T) {
	svc, loc := newExportServiceForTest(t)
	start := time.Date(2025, 6, 10, 14, 0, 0, 0, loc)
	source := staticAgenda{view: BookingView{
		Connected: true,
		Filter:    FilterView{Date: "2025-06-10"},
		Events: []models.Event{
			{ID: "1", Title: "ARENA - Matemática - João Silva", Start: start, End: start.Add(90 * time.Minute), Description: "Revisão; funções"},
		},
	}}

	result, err := svc.Day(context.Background(), source, "student 1", AgendaFormatCSV)
	require.NoError(t, err)

	assert.Equal(t, "agenda_student_1_day_2025-06-10_20250609_083000.csv", result.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", result.ContentType)
	assert.Equal(t, 1, result.Rows)
	body := strings.TrimPrefix(string(result.Payload), "\ufeff")
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Data;Início;Fim;Duração;Disciplina;Professor;Descrição", lines[0])
	assert.Equal(t, `10/06/2025;14:00;15:30;1h30m;Matemática;João Silva;"Revisão; funções"`, lines[1])
}

func TestExportServiceDayPDF(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	source := staticAgenda{view: BookingView{Connected: true, Filter: FilterView{Date: "2025-06-10"}}}

	result, err := svc.Day(context.Background(), source, "1", "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, bytes.HasPrefix(result.Payload, []byte("%PDF")))
	assert.Zero(t, result.Rows)
}

func TestExportServiceDayRequiresConnection(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	_, err := svc.Day(context.Background(), staticAgenda{}, "1", AgendaFormatCSV)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrCalendarAuth))
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	_, err := svc.Upcoming(context.Background(), &staticLister{}, "1", "xlsx")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestExportServiceUpcoming(t *testing.T) {
	svc, loc := newExportServiceForTest(t)
	start := time.Date(2025, 6, 12, 9, 0, 0, 0, loc)
	lister := &staticLister{events: []models.Event{{ID: "a", Title: "ARENA - Física", Start: start, End: start.Add(time.Hour)}}}

	result, err := svc.Upcoming(context.Background(), lister, "1", "")
	require.NoError(t, err)
	require.Len(t, lister.dates, 1)
	assert.Nil(t, lister.dates[0])
	assert.Contains(t, string(result.Payload), "12/06/2025;09:00;10:00;1h;Física;;")

	lister.err = errors.New("boom")
	_, err = svc.Upcoming(context.Background(), lister, "1", "")
	assert.Error(t, err)
}
