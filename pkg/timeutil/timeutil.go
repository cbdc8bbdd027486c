// Package timeutil provides calendar helpers for period and streak calculations.
// All period boundaries (day, ISO week) are computed in a single platform
// timezone so that "today" means the same thing for every component.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// Clock returns the current time. Components take a Clock so tests can pin "now".
type Clock func() time.Time

// SystemClock returns time.Now in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// FixedClock returns a Clock that always reports t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// Calendar computes day and week boundaries in a fixed location.
type Calendar struct {
	loc *time.Location
}

// NewCalendar creates a Calendar for the given location (UTC when nil).
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// LoadCalendar creates a Calendar from an IANA timezone name.
func LoadCalendar(name string) (Calendar, error) {
	if name == "" {
		return NewCalendar(time.UTC), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Calendar{}, err
	}
	return NewCalendar(loc), nil
}

// Location returns the calendar's timezone.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// StartOfDay returns the start of the day (00:00:00) in the calendar's timezone.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	local := t.In(c.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Location())
}

// EndOfDay returns the end of the day (23:59:59.999999999) in the calendar's timezone.
func (c Calendar) EndOfDay(t time.Time) time.Time {
	local := t.In(c.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, c.Location())
}

// StartOfWeek returns the start of the ISO week (Monday 00:00:00).
func (c Calendar) StartOfWeek(t time.Time) time.Time {
	local := t.In(c.Location())
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return c.StartOfDay(local.AddDate(0, 0, -(weekday - 1)))
}

// EndOfWeek returns the end of the ISO week (Sunday 23:59:59.999999999).
func (c Calendar) EndOfWeek(t time.Time) time.Time {
	return c.EndOfDay(c.StartOfWeek(t).AddDate(0, 0, 6))
}

// CivilDate returns the calendar date of t as midnight UTC.
// Dates stored this way compare and subtract without timezone drift.
func (c Calendar) CivilDate(t time.Time) time.Time {
	local := t.In(c.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// Date normalizes a civil date value to midnight UTC.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from a to b.
// Both values must be civil dates produced by CivilDate or Date.
func DaysBetween(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// IsSameDay reports whether two civil dates are the same day.
func IsSameDay(a, b time.Time) bool {
	return DaysBetween(a, b) == 0
}

// IsConsecutiveDay reports whether b is exactly the day after a.
func IsConsecutiveDay(a, b time.Time) bool {
	return DaysBetween(a, b) == 1
}
