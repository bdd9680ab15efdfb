package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/noah-isme/arena-booking-api/internal/models"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
)

// Private extended properties carrying the booking fields alongside the title.
const (
	propDiscipline = "arenaDiscipline"
	propProfessor  = "arenaProfessor"
)

const defaultRevokeURL = "https://oauth2.googleapis.com/revoke"

// CalendarOptions configures the Google Calendar backend. Endpoints are only overridden in tests.
type CalendarOptions struct {
	CalendarID       string
	Endpoint         string
	UserInfoEndpoint string
	RevokeURL        string
	HTTPClient       *http.Client
}

// CalendarRepository talks to Google Calendar v3 on behalf of a token holder.
type CalendarRepository struct {
	opts   CalendarOptions
	logger *zap.Logger
}

// NewCalendarRepository constructs the backend.
func NewCalendarRepository(opts CalendarOptions, logger *zap.Logger) *CalendarRepository {
	if opts.CalendarID == "" {
		opts.CalendarID = "primary"
	}
	if opts.RevokeURL == "" {
		opts.RevokeURL = defaultRevokeURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarRepository{opts: opts, logger: logger}
}

// ListEvents returns single events in [TimeMin, TimeMax) matching the free-text query, ordered by start.
func (r *CalendarRepository) ListEvents(ctx context.Context, token *oauth2.Token, query models.EventQuery) ([]models.Event, error) {
	srv, err := r.service(ctx, token)
	if err != nil {
		return nil, err
	}

	call := srv.Events.List(r.opts.CalendarID).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250).
		TimeMin(query.TimeMin.Format(time.RFC3339)).
		TimeMax(query.TimeMax.Format(time.RFC3339))
	if query.Text != "" {
		call = call.Q(query.Text)
	}

	var out []models.Event
	err = call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			event, err := toEvent(item)
			if err != nil {
				r.logger.Debug("skip calendar event", zap.String("event_id", item.Id), zap.Error(err))
				continue
			}
			out = append(out, event)
		}
		return nil
	})
	if err != nil {
		return nil, mapGoogleError(err, "list calendar events")
	}
	return out, nil
}

// InsertEvent creates the booking.
func (r *CalendarRepository) InsertEvent(ctx context.Context, token *oauth2.Token, input models.EventInput) (*models.Event, error) {
	srv, err := r.service(ctx, token)
	if err != nil {
		return nil, err
	}
	created, err := srv.Events.Insert(r.opts.CalendarID, fromInput(input)).Context(ctx).Do()
	if err != nil {
		return nil, mapGoogleError(err, "insert calendar event")
	}
	event, err := toEvent(created)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateEvent replaces the booking content.
func (r *CalendarRepository) UpdateEvent(ctx context.Context, token *oauth2.Token, id string, input models.EventInput) (*models.Event, error) {
	srv, err := r.service(ctx, token)
	if err != nil {
		return nil, err
	}
	updated, err := srv.Events.Update(r.opts.CalendarID, id, fromInput(input)).Context(ctx).Do()
	if err != nil {
		return nil, mapGoogleError(err, "update calendar event")
	}
	event, err := toEvent(updated)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// DeleteEvent removes the booking.
func (r *CalendarRepository) DeleteEvent(ctx context.Context, token *oauth2.Token, id string) error {
	srv, err := r.service(ctx, token)
	if err != nil {
		return err
	}
	if err := srv.Events.Delete(r.opts.CalendarID, id).Context(ctx).Do(); err != nil {
		return mapGoogleError(err, "delete calendar event")
	}
	return nil
}

// UserInfo returns the name and email of the token owner.
func (r *CalendarRepository) UserInfo(ctx context.Context, token *oauth2.Token) (*models.CalendarIdentity, error) {
	opts := []option.ClientOption{option.WithHTTPClient(r.authorized(ctx, token))}
	if r.opts.UserInfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(r.opts.UserInfoEndpoint))
	}
	srv, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("build userinfo service: %w", err)
	}
	info, err := srv.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, mapGoogleError(err, "read calendar identity")
	}
	return &models.CalendarIdentity{Name: info.Name, Email: info.Email}, nil
}

// Revoke invalidates the token at the authorization server. An already invalid token is not an error.
func (r *CalendarRepository) Revoke(ctx context.Context, token *oauth2.Token) error {
	value := token.RefreshToken
	if value == "" {
		value = token.AccessToken
	}
	form := url.Values{"token": {value}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "revoke calendar token")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return appErrors.Clone(appErrors.ErrUpstream, fmt.Sprintf("revoke calendar token returned %d", resp.StatusCode))
	}
	return nil
}

func (r *CalendarRepository) authorized(ctx context.Context, token *oauth2.Token) *http.Client {
	base := context.WithValue(ctx, oauth2.HTTPClient, r.opts.HTTPClient)
	return oauth2.NewClient(base, oauth2.StaticTokenSource(token))
}

func (r *CalendarRepository) service(ctx context.Context, token *oauth2.Token) (*calendar.Service, error) {
	if token == nil || token.AccessToken == "" {
		return nil, appErrors.ErrCalendarAuth
	}
	opts := []option.ClientOption{option.WithHTTPClient(r.authorized(ctx, token))}
	if r.opts.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(r.opts.Endpoint))
	}
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("build calendar service: %w", err)
	}
	return srv, nil
}

func fromInput(input models.EventInput) *calendar.Event {
	event := &calendar.Event{
		Summary:     input.Title,
		Description: input.Description,
		ColorId:     input.ColorID,
		Start:       &calendar.EventDateTime{DateTime: input.Start.Format(time.RFC3339), TimeZone: input.TimeZone},
		End:         &calendar.EventDateTime{DateTime: input.End.Format(time.RFC3339), TimeZone: input.TimeZone},
	}
	private := map[string]string{}
	if input.Discipline != "" {
		private[propDiscipline] = input.Discipline
	}
	if input.Professor != "" {
		private[propProfessor] = input.Professor
	}
	if len(private) > 0 {
		event.ExtendedProperties = &calendar.EventExtendedProperties{Private: private}
	}
	return event
}

func toEvent(item *calendar.Event) (models.Event, error) {
	start, zone, err := parseEventTime(item.Start)
	if err != nil {
		return models.Event{}, fmt.Errorf("event %s start: %w", item.Id, err)
	}
	end, _, err := parseEventTime(item.End)
	if err != nil {
		return models.Event{}, fmt.Errorf("event %s end: %w", item.Id, err)
	}
	event := models.Event{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Start:       start,
		End:         end,
		TimeZone:    zone,
		ColorID:     item.ColorId,
		Link:        item.HtmlLink,
	}
	if item.ExtendedProperties != nil {
		event.Discipline = item.ExtendedProperties.Private[propDiscipline]
		event.Professor = item.ExtendedProperties.Private[propProfessor]
	}
	return event, nil
}

func parseEventTime(dt *calendar.EventDateTime) (time.Time, string, error) {
	if dt == nil {
		return time.Time{}, "", errors.New("missing time")
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		return t, dt.TimeZone, err
	}
	loc := time.UTC
	if dt.TimeZone != "" {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation(models.DateLayout, dt.Date, loc)
	return t, dt.TimeZone, err
}

// mapGoogleError turns API status codes into typed errors.
func mapGoogleError(err error, op string) error {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) {
			return appErrors.Wrap(err, appErrors.ErrCalendarAuth.Code, appErrors.ErrCalendarAuth.Status, "calendar session expired")
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	switch gErr.Code {
	case http.StatusUnauthorized:
		return appErrors.Wrap(err, appErrors.ErrCalendarAuth.Code, appErrors.ErrCalendarAuth.Status, "calendar session expired")
	case http.StatusNotFound, http.StatusGone:
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "calendar event not found")
	case http.StatusBadRequest:
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "calendar rejected the event")
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
