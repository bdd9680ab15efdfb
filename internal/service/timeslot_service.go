package service

import (
	"time"

	"github.com/noah-isme/arena-booking-api/internal/models"
)

// SlotConfig defines the daily window of bookable slots.
type SlotConfig struct {
	OpenHour  int
	CloseHour int
	Step      time.Duration
}

// TimeSlotGenerator produces the bookable times of a day relative to an injected clock.
type TimeSlotGenerator struct {
	slots []models.TimeSlot
	loc   *time.Location
	now   func() time.Time
}

// NewTimeSlotGenerator builds the generator. Invalid window values, including a zero config,
// fall back to 07:00-19:00 every 30 minutes.
func NewTimeSlotGenerator(cfg SlotConfig, loc *time.Location, now func() time.Time) *TimeSlotGenerator {
	if cfg.OpenHour < 0 || cfg.OpenHour > 23 || cfg.CloseHour <= cfg.OpenHour || cfg.CloseHour > 23 {
		cfg.OpenHour, cfg.CloseHour = 7, 19
	}
	if cfg.Step < time.Minute || cfg.Step > time.Hour*12 {
		cfg.Step = 30 * time.Minute
	}
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}

	step := int(cfg.Step / time.Minute)
	slots := make([]models.TimeSlot, 0, (cfg.CloseHour-cfg.OpenHour)*60/step+1)
	for m := cfg.OpenHour * 60; m <= cfg.CloseHour*60; m += step {
		slots = append(slots, models.NewTimeSlot(m/60, m%60))
	}

	return &TimeSlotGenerator{slots: slots, loc: loc, now: now}
}

// All returns the full window.
func (g *TimeSlotGenerator) All() []models.TimeSlot {
	out := make([]models.TimeSlot, len(g.slots))
	copy(out, g.slots)
	return out
}

// Generate returns the slots for date. For today, slots whose hour is before the
// current hour are dropped while the current hour is kept even if its minutes passed.
// Any other date gets the full window.
func (g *TimeSlotGenerator) Generate(date time.Time) []models.TimeSlot {
	now := g.now().In(g.loc)
	if !sameDay(g.Day(date), g.Day(now)) {
		return g.All()
	}

	out := make([]models.TimeSlot, 0, len(g.slots))
	for _, slot := range g.slots {
		if slot.Hour() >= now.Hour() {
			out = append(out, slot)
		}
	}
	return out
}

// BookableDay bundles Generate with its date.
func (g *TimeSlotGenerator) BookableDay(date time.Time) models.BookableDay {
	return models.BookableDay{Date: g.Day(date).Format(models.DateLayout), Slots: g.Generate(date)}
}

// IsPast reports whether the slot on date has already started, at minute resolution.
func (g *TimeSlotGenerator) IsPast(date time.Time, slot models.TimeSlot) bool {
	start := slot.On(g.Day(date))
	return start.Before(g.now().In(g.loc).Truncate(time.Minute))
}

// Today returns midnight of the current day.
func (g *TimeSlotGenerator) Today() time.Time {
	return g.Day(g.now())
}

// Day truncates t to midnight in the generator location.
func (g *TimeSlotGenerator) Day(t time.Time) time.Time {
	t = t.In(g.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, g.loc)
}

// Location returns the time zone slots are expressed in.
func (g *TimeSlotGenerator) Location() *time.Location {
	return g.loc
}

// Contains reports whether slot belongs to the configured window.
func (g *TimeSlotGenerator) Contains(slot models.TimeSlot) bool {
	for _, s := range g.slots {
		if s == slot {
			return true
		}
	}
	return false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
