package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used across the booking API.
const DateLayout = "2006-01-02"

// TimeSlot is a bookable time of day formatted as HH:MM.
type TimeSlot string

// NewTimeSlot builds a slot from hour and minute.
func NewTimeSlot(hour, minute int) TimeSlot {
	return TimeSlot(fmt.Sprintf("%02d:%02d", hour, minute))
}

// ParseTimeSlot accepts HH:MM or HH:MM:SS and normalises to HH:MM.
func ParseTimeSlot(raw string) (TimeSlot, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return NewTimeSlot(t.Hour(), t.Minute()), nil
		}
	}
	return "", fmt.Errorf("invalid time slot %q", raw)
}

// TimeSlotAt returns the slot for the wall-clock time of t.
func TimeSlotAt(t time.Time) TimeSlot {
	return NewTimeSlot(t.Hour(), t.Minute())
}

func (t TimeSlot) clock() (int, int) {
	var hour, minute int
	if _, err := fmt.Sscanf(string(t), "%d:%d", &hour, &minute); err != nil {
		return 0, 0
	}
	return hour, minute
}

// Hour returns the hour component.
func (t TimeSlot) Hour() int {
	h, _ := t.clock()
	return h
}

// Minute returns the minute component.
func (t TimeSlot) Minute() int {
	_, m := t.clock()
	return m
}

// Minutes returns the offset from midnight in minutes.
func (t TimeSlot) Minutes() int {
	h, m := t.clock()
	return h*60 + m
}

// On anchors the slot to the calendar day of date, in date's location.
func (t TimeSlot) On(date time.Time) time.Time {
	h, m := t.clock()
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, 0, 0, date.Location())
}

func (t TimeSlot) String() string {
	return string(t)
}

// ParseDate parses YYYY-MM-DD as midnight in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateLayout, strings.TrimSpace(raw), loc)
}

// BookableDay is the ordered slot list generated for one date.
type BookableDay struct {
	Date  string     `json:"date"`
	Slots []TimeSlot `json:"slots"`
}

// ViewMode selects which slots and events a student sees.
type ViewMode string

const (
	ViewModeAll       ViewMode = "todos"
	ViewModeProfessor ViewMode = "professor"
	ViewModeMine      ViewMode = "meus-agendamentos"
)

// Valid reports whether the mode is one of the known values.
func (m ViewMode) Valid() bool {
	switch m {
	case ViewModeAll, ViewModeProfessor, ViewModeMine:
		return true
	default:
		return false
	}
}

// FilterState is the filter cascade driving the booking view.
type FilterState struct {
	ViewMode   ViewMode  `json:"view_mode"`
	Discipline string    `json:"discipline,omitempty"`
	Professor  string    `json:"professor,omitempty"`
	Date       time.Time `json:"-"`
}

// BookingForm is the create/edit draft.
type BookingForm struct {
	EventID         string   `json:"event_id,omitempty"`
	Discipline      string   `json:"discipline" validate:"required"`
	Professor       string   `json:"professor" validate:"required"`
	Date            string   `json:"date" validate:"required,datetime=2006-01-02"`
	Time            TimeSlot `json:"time" validate:"required"`
	DurationMinutes int      `json:"duration_minutes" validate:"required,min=15,max=240"`
	Description     string   `json:"description,omitempty" validate:"max=1000"`
}

// Editing reports whether the draft targets an existing event.
func (f BookingForm) Editing() bool {
	return f.EventID != ""
}

// FormPatch carries a partial update of the draft. Nil fields are left untouched.
type FormPatch struct {
	Discipline      *string `json:"discipline"`
	Professor       *string `json:"professor"`
	Date            *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time            *string `json:"time"`
	DurationMinutes *int    `json:"duration_minutes" validate:"omitempty,min=15,max=240"`
	Description     *string `json:"description" validate:"omitempty,max=1000"`
}

// Event is a transient copy of a booking held by the external calendar.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TimeZone    string    `json:"time_zone,omitempty"`
	ColorID     string    `json:"color_id,omitempty"`
	Discipline  string    `json:"discipline,omitempty"`
	Professor   string    `json:"professor,omitempty"`
	Link        string    `json:"link,omitempty"`
}

// Covers reports whether the event is running at t, start inclusive and end exclusive.
func (e Event) Covers(t time.Time) bool {
	return !t.Before(e.Start) && t.Before(e.End)
}

// Duration returns the booked length.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// DurationLabel renders the duration as 30m, 1h or 1h30m.
func (e Event) DurationLabel() string {
	minutes := int(e.Duration().Minutes())
	hours, rest := minutes/60, minutes%60
	switch {
	case hours == 0:
		return fmt.Sprintf("%dm", rest)
	case rest == 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dh%dm", hours, rest)
	}
}

// EventInput is what gets written to the calendar for a booking.
type EventInput struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	ColorID     string
	Discipline  string
	Professor   string
}

// EventQuery bounds a calendar listing.
type EventQuery struct {
	TimeMin time.Time
	TimeMax time.Time
	Text    string
}
