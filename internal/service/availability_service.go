package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/arena-booking-api/internal/models"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
)

type availabilityRepository interface {
	ProfessorAvailability(ctx context.Context, professorID string, date time.Time) (*models.Availability, error)
}

// BookedEventLister reads the student's calendar so booked slots can be removed.
type BookedEventLister interface {
	Connected() bool
	ListEvents(ctx context.Context, date *time.Time) ([]models.Event, error)
}

// AvailabilityResolution is the open slot set of one professor on one date.
type AvailabilityResolution struct {
	ProfessorID     string            `json:"professor_id"`
	Date            string            `json:"date"`
	AcceptsBookings bool              `json:"accepts_bookings"`
	OpenSlots       []models.TimeSlot `json:"open_slots"`
	BookedCount     int               `json:"booked_count"`
	CalendarBooked  int               `json:"calendar_booked_count"`
	ProfessorName   string            `json:"professor_name,omitempty"`
	WeekdayName     string            `json:"weekday_name,omitempty"`
}

// IsOpen reports whether slot is among the open slots.
func (r *AvailabilityResolution) IsOpen(slot models.TimeSlot) bool {
	if r == nil {
		return false
	}
	for _, s := range r.OpenSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// AvailabilityResolver intersects a professor's declared windows with the bookings already on the calendar.
type AvailabilityResolver struct {
	repo   availabilityRepository
	step   time.Duration
	loc    *time.Location
	logger *zap.Logger
}

// NewAvailabilityResolver constructs the resolver. step is the slot granularity used to expand windows.
func NewAvailabilityResolver(repo availabilityRepository, step time.Duration, loc *time.Location, logger *zap.Logger) *AvailabilityResolver {
	if step < time.Minute {
		step = 30 * time.Minute
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityResolver{repo: repo, step: step, loc: loc, logger: logger}
}

// Resolve returns the open slots of professorID on date. Booked events are read from events when it is
// connected; otherwise only the declared windows are used. Fetch failures are returned, never an empty result.
func (r *AvailabilityResolver) Resolve(ctx context.Context, professorID string, date time.Time, events BookedEventLister) (*AvailabilityResolution, error) {
	professorID = strings.TrimSpace(professorID)
	if professorID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "professor is required to resolve availability")
	}
	d := date.In(r.loc)
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, r.loc)

	availability, err := r.repo.ProfessorAvailability(ctx, professorID, day)
	if err != nil {
		r.logger.Warn("fetch availability failed", zap.String("professor_id", professorID), zap.Time("date", day), zap.Error(err))
		return nil, transientError(err, "failed to check professor availability")
	}

	resolution := &AvailabilityResolution{
		ProfessorID:     professorID,
		Date:            day.Format(models.DateLayout),
		AcceptsBookings: availability.AcceptsBookings,
		OpenSlots:       []models.TimeSlot{},
		BookedCount:     availability.ExistingBookingsCount,
		ProfessorName:   availability.ProfessorName,
		WeekdayName:     availability.WeekdayName,
	}
	if !availability.AcceptsBookings {
		return resolution, nil
	}

	declared := r.expand(availability.Windows)
	if events == nil || !events.Connected() || strings.TrimSpace(availability.ProfessorName) == "" {
		resolution.OpenSlots = declared
		return resolution, nil
	}

	listed, err := events.ListEvents(ctx, &day)
	if err != nil {
		r.logger.Warn("list booked events failed", zap.String("professor_id", professorID), zap.Error(err))
		return nil, transientError(err, "failed to check booked events")
	}

	booked := make([]models.Event, 0, len(listed))
	for _, event := range listed {
		if sameName(event.Professor, availability.ProfessorName) || containsName(event.Title, availability.ProfessorName) {
			booked = append(booked, event)
		}
	}
	resolution.CalendarBooked = len(booked)

	for _, slot := range declared {
		at := slot.On(day)
		occupied := false
		for _, event := range booked {
			if event.Covers(at) {
				occupied = true
				break
			}
		}
		if !occupied {
			resolution.OpenSlots = append(resolution.OpenSlots, slot)
		}
	}
	return resolution, nil
}

// expand turns available windows into ordered slots over [start, end). A window without an end, or with end
// equal to start, yields its start slot only.
func (r *AvailabilityResolver) expand(windows []models.AvailabilityWindow) []models.TimeSlot {
	step := int(r.step / time.Minute)
	seen := map[models.TimeSlot]struct{}{}
	out := []models.TimeSlot{}
	add := func(minutes int) {
		slot := models.NewTimeSlot(minutes/60, minutes%60)
		if _, ok := seen[slot]; !ok {
			seen[slot] = struct{}{}
			out = append(out, slot)
		}
	}

	for _, w := range windows {
		if !w.Available || w.Start == "" {
			continue
		}
		start := w.Start.Minutes()
		if w.End == "" || w.End.Minutes() <= start {
			add(start)
			continue
		}
		for m := start; m < w.End.Minutes(); m += step {
			add(m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Minutes() < out[j].Minutes() })
	return out
}

// transientError keeps typed auth and validation errors and reports anything else as an upstream failure.
func transientError(err error, message string) error {
	for _, keep := range []*appErrors.Error{appErrors.ErrCalendarAuth, appErrors.ErrUnauthorized, appErrors.ErrValidation, appErrors.ErrNotFound} {
		if appErrors.HasCode(err, keep) {
			return err
		}
	}
	return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, message)
}
