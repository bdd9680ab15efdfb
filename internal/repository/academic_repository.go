package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/arena-booking-api/internal/models"
	"github.com/noah-isme/arena-booking-api/pkg/config"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
)

type bearerTokenKey struct{}

// WithBearerToken attaches the portal access token forwarded to the academic service.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey{}, token)
}

// BearerToken returns the token attached by WithBearerToken.
func BearerToken(ctx context.Context) string {
	token, _ := ctx.Value(bearerTokenKey{}).(string)
	return token
}

// flexString accepts JSON strings and numbers, the academic service emits both for codes.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("code must be a string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

type academicProfessor struct {
	Code  flexString `json:"codprof"`
	Name  string     `json:"nome"`
	Email string     `json:"email"`
}

type academicDiscipline struct {
	Code       flexString          `json:"codigo_disciplina"`
	Name       string              `json:"disciplina"`
	Professors []academicProfessor `json:"professores"`
}

type disciplinesPayload struct {
	Disciplines []academicDiscipline `json:"disciplinas"`
}

type academicWindow struct {
	Start     string `json:"horario_inicio"`
	End       string `json:"horario_fim"`
	Available *bool  `json:"disponivel"`
}

type availabilityPayload struct {
	AcceptsBookings  bool             `json:"aceita_agendamentos"`
	Weekday          string           `json:"dia_semana"`
	ProfessorName    string           `json:"professor_nome"`
	Windows          []academicWindow `json:"horarios_disponiveis"`
	ExistingBookings json.RawMessage  `json:"agendamentos_existentes"`
}

// AcademicRepository reads disciplines and professor availability from the academic-records service.
type AcademicRepository struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewAcademicRepository constructs the client. A nil http client gets one with the configured timeout.
func NewAcademicRepository(cfg config.AcademicConfig, client *http.Client, logger *zap.Logger) *AcademicRepository {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcademicRepository{baseURL: strings.TrimRight(cfg.BaseURL, "/"), client: client, logger: logger}
}

// DisciplinesWithProfessors lists the disciplines of a class with their professors.
func (r *AcademicRepository) DisciplinesWithProfessors(ctx context.Context, grade, class string) ([]models.Discipline, error) {
	query := url.Values{}
	if grade != "" {
		query.Set("serie", grade)
	}
	if class != "" {
		query.Set("turma", class)
	}

	body, err := r.get(ctx, "/disciplinas/com-professores?"+query.Encode())
	if err != nil {
		return nil, err
	}

	var payload disciplinesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		// some deployments return the bare list
		var list []academicDiscipline
		if errList := json.Unmarshal(body, &list); errList != nil {
			return nil, fmt.Errorf("decode disciplines: %w", err)
		}
		payload.Disciplines = list
	}

	out := make([]models.Discipline, 0, len(payload.Disciplines))
	for _, d := range payload.Disciplines {
		discipline := models.Discipline{Code: string(d.Code), Name: strings.TrimSpace(d.Name), Professors: make([]models.Professor, 0, len(d.Professors))}
		for _, p := range d.Professors {
			discipline.Professors = append(discipline.Professors, models.Professor{
				Code:  string(p.Code),
				Name:  strings.TrimSpace(p.Name),
				Email: strings.ToLower(strings.TrimSpace(p.Email)),
			})
		}
		out = append(out, discipline)
	}
	return out, nil
}

// ProfessorAvailability returns the declared availability of a professor on date.
func (r *AcademicRepository) ProfessorAvailability(ctx context.Context, professorID string, date time.Time) (*models.Availability, error) {
	path := fmt.Sprintf("/agendamentos/professor/%s/disponibilidade-data/%s", url.PathEscape(professorID), date.Format(models.DateLayout))
	body, err := r.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var payload availabilityPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode availability: %w", err)
	}

	availability := &models.Availability{
		AcceptsBookings:       payload.AcceptsBookings,
		WeekdayName:           strings.TrimSpace(payload.Weekday),
		ProfessorName:         strings.TrimSpace(payload.ProfessorName),
		Windows:               make([]models.AvailabilityWindow, 0, len(payload.Windows)),
		ExistingBookingsCount: countBookings(payload.ExistingBookings),
	}
	for _, w := range payload.Windows {
		start, err := models.ParseTimeSlot(w.Start)
		if err != nil {
			r.logger.Debug("skip availability window", zap.String("professor_id", professorID), zap.String("start", w.Start))
			continue
		}
		window := models.AvailabilityWindow{Start: start, Available: w.Available == nil || *w.Available}
		if end, err := models.ParseTimeSlot(w.End); err == nil {
			window.End = end
		}
		availability.Windows = append(availability.Windows, window)
	}
	return availability, nil
}

func (r *AcademicRepository) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if token := BearerToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("academic request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read academic response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "academic service rejected the session")
	case resp.StatusCode == http.StatusNotFound:
		return nil, appErrors.Clone(appErrors.ErrNotFound, upstreamMessage(body, "academic record not found"))
	case resp.StatusCode >= http.StatusBadRequest:
		r.logger.Warn("academic service error", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("academic service returned %d: %s", resp.StatusCode, upstreamMessage(body, resp.Status))
	}
	return body, nil
}

// upstreamMessage extracts {"message"} or {"detail"} from an error body.
func upstreamMessage(body []byte, fallback string) string {
	var payload struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Detail != "" {
			return payload.Detail
		}
	}
	return fallback
}

// countBookings accepts either a count or the list of existing bookings.
func countBookings(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return len(list)
	}
	if n, err := strconv.Atoi(strings.Trim(string(raw), `"`)); err == nil {
		return n
	}
	return 0
}
