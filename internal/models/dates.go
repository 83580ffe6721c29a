package models

import (
	"strings"
	"time"
)

// CalendarDay returns midnight UTC of the calendar day t falls on in its own
// location, so that dates compare by day regardless of time-of-day.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute number of calendar days between a and b
func DaysBetween(a, b time.Time) int {
	diff := CalendarDay(a).Sub(CalendarDay(b))
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}

// SameDay reports whether a and b fall on the same calendar day
func SameDay(a, b time.Time) bool {
	return CalendarDay(a).Equal(CalendarDay(b))
}

// EndOfDay returns the last instant of t's calendar day
func EndOfDay(t time.Time) time.Time {
	return CalendarDay(t).Add(24*time.Hour - time.Nanosecond)
}

// NormalizeReference trims and lowercases a reference for comparison
func NormalizeReference(ref string) string {
	return strings.ToLower(strings.TrimSpace(ref))
}
