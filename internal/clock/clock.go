// Package clock derives the current calendar date and the per-class daily key.
package clock

import (
	"fmt"
	"time"

	"rollcall/internal/model"
)

// Clock supplies wall-clock time. Tests and the CLI substitute Fixed.
type Clock interface {
	Now() time.Time
}

// System reads the real clock in Location (time.Local when nil).
type System struct {
	Location *time.Location
}

// Now returns the current time in the configured location.
func (s System) Now() time.Time {
	if s.Location == nil {
		return time.Now()
	}
	return time.Now().In(s.Location)
}

// Fixed always reports the same instant.
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return time.Time(f) }

// Today returns midnight of the current day in the clock's location.
func Today(c Clock) time.Time {
	now := c.Now()
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// Key formats the daily key as attendance-{class}-{section}-{day}-{month}-{year}
// with non-padded day and month.
func Key(className, section string, date time.Time) model.DailyKey {
	y, m, d := date.Date()
	return model.DailyKey(fmt.Sprintf("attendance-%s-%s-%d-%d-%d", className, section, d, int(m), y))
}

// TodayKey is Key for the clock's current date.
func TodayKey(c Clock, className, section string) model.DailyKey {
	return Key(className, section, Today(c))
}
