// Package planner assigns publish timestamps to the positions of a scheduling queue.
package planner

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidWindow is returned when the daily window closes before it opens
	ErrInvalidWindow = errors.New("daily window end must be after its start")
	// ErrInvalidInterval is returned for intervals shorter than one minute
	ErrInvalidInterval = errors.New("interval must be at least 1 minute")
	// ErrNegativeCount is returned when asked to plan a negative number of items
	ErrNegativeCount = errors.New("item count must not be negative")
)

// PastSlotMargin is the minimum lead time a slot needs before it is rolled forward
const PastSlotMargin = 10 * time.Minute

// TimeOfDay is a wall clock time without a date
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Minutes returns minutes since midnight
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses "HH:MM"
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// Window is the part of each day in which manual slots may fall
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// ParseWindow parses "HH:MM-HH:MM"
func ParseWindow(s string) (Window, error) {
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return Window{}, fmt.Errorf("invalid window %q: want HH:MM-HH:MM", s)
	}
	ws, err := ParseTimeOfDay(start)
	if err != nil {
		return Window{}, err
	}
	we, err := ParseTimeOfDay(end)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: ws, End: we}, nil
}

// Contains reports whether t's wall clock lies within the window, both ends inclusive
func (w Window) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= w.Start.Minutes() && m <= w.End.Minutes()
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// ScheduleConfig holds the inputs of a planning call
type ScheduleConfig struct {
	StartDate       time.Time
	IntervalMinutes int
	Window          Window
	Smart           bool
	Location        *time.Location
}

// Validate rejects configurations the manual planner cannot satisfy.
// Smart mode ignores the window and interval.
func (c ScheduleConfig) Validate() error {
	if c.Smart {
		return nil
	}
	if c.Window.End.Minutes() <= c.Window.Start.Minutes() {
		return fmt.Errorf("%w: %s", ErrInvalidWindow, c.Window)
	}
	if c.IntervalMinutes < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, c.IntervalMinutes)
	}
	return nil
}

func (c ScheduleConfig) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return time.Local
}

func (c ScheduleConfig) atWindowStart(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Window.Start.Hour, c.Window.Start.Minute, 0, 0, c.location())
}

// PlanManual lays n slots out from StartDate at the window start, spaced by the
// interval, rolling over to the next day's window start whenever the cursor
// passes the window end.
func PlanManual(cfg ScheduleConfig, n int) ([]time.Time, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, ErrNegativeCount
	}

	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	cursor := cfg.atWindowStart(cfg.StartDate.In(cfg.location()))
	slots := make([]time.Time, 0, n)

	for i := 0; i < n; i++ {
		slots = append(slots, cursor)

		day := cursor
		cursor = cursor.Add(interval)
		if pastWindowEnd(cursor, cfg.Window.End) || !sameDay(cursor, day) {
			cursor = cfg.atWindowStart(day.AddDate(0, 0, 1))
		}
	}
	return slots, nil
}

// pastWindowEnd compares hour first, then minute
func pastWindowEnd(t time.Time, end TimeOfDay) bool {
	if t.Hour() != end.Hour {
		return t.Hour() > end.Hour
	}
	return t.Minute() > end.Minute
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// AdjustPastSlot moves a slot that starts sooner than PastSlotMargin from now
// forward by one calendar day, keeping its wall clock time.
func AdjustPastSlot(slot, now time.Time) (time.Time, bool) {
	if slot.Before(now.Add(PastSlotMargin)) {
		return slot.AddDate(0, 0, 1), true
	}
	return slot, false
}

// Plan dispatches to the smart or manual planner
func Plan(cfg ScheduleConfig, n int, now time.Time, scores [24]float64, rng Rand) ([]time.Time, error) {
	if n < 0 {
		return nil, ErrNegativeCount
	}
	if cfg.Smart {
		return PlanSmart(cfg, n, now, scores, rng), nil
	}
	return PlanManual(cfg, n)
}
