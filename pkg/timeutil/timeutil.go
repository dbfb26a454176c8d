// Package timeutil provides calendar period boundaries in a configurable
// timezone and a replaceable clock.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTimezone is used when no timezone is configured.
const DefaultTimezone = "Asia/Almaty"

// AlmatyTZ is the Almaty timezone (UTC+5, no DST).
var AlmatyTZ = time.FixedZone("Asia/Almaty", 5*60*60)

// LoadLocation resolves a timezone name. The default timezone falls back to
// a fixed offset when the tz database is not available.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == DefaultTimezone {
		return AlmatyTZ, nil
	}
	return nil, fmt.Errorf("timeutil: load location %q: %w", name, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// PERIOD BOUNDARIES
// ══════════════════════════════════════════════════════════════════════════════

// StartOfDay returns 00:00:00 of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns 23:59:59.999999999 of t's day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 23, 59, 59, 999999999, loc)
}

// StartOfWeek returns Monday 00:00:00 of t's ISO week in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	weekday := int(l.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(l.AddDate(0, 0, -(weekday - 1)), loc)
}

// EndOfWeek returns Sunday 23:59:59.999999999 of t's ISO week in loc.
func EndOfWeek(t time.Time, loc *time.Location) time.Time {
	return EndOfDay(StartOfWeek(t, loc).AddDate(0, 0, 6), loc)
}

// StartOfMonth returns the first instant of t's month in loc.
func StartOfMonth(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), 1, 0, 0, 0, 0, loc)
}

// EndOfMonth returns the last instant of t's month in loc.
func EndOfMonth(t time.Time, loc *time.Location) time.Time {
	return EndOfDay(StartOfMonth(t, loc).AddDate(0, 1, -1), loc)
}

// DaysBetween returns the number of calendar days from t1 to t2 in loc.
func DaysBetween(t1, t2 time.Time, loc *time.Location) int {
	d1 := StartOfDay(t1, loc)
	d2 := StartOfDay(t2, loc)
	return int(d2.Sub(d1).Round(time.Hour).Hours() / 24)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLOCK
// ══════════════════════════════════════════════════════════════════════════════

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ManualClock is a clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock stopped at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now implements Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
