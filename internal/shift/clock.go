// Package shift attributes punches to configured shifts and business dates.
package shift

import (
	"fmt"
	"time"
)

// MinutesPerDay is the length of the circular time-of-day clock.
const MinutesPerDay = 24 * 60

// Clock is a time of day in minutes since midnight, always in [0, 1440).
type Clock int

// NewClock normalizes any minute count onto the clock.
func NewClock(minutes int) Clock {
	m := minutes % MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	return Clock(m)
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// MustParseClock is ParseClock for literals.
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the time of day of t in t's location. Seconds are truncated.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Minutes returns the minute of day.
func (c Clock) Minutes() int {
	return int(c)
}

// Add moves the clock by minutes, wrapping around midnight.
func (c Clock) Add(minutes int) Clock {
	return NewClock(int(c) + minutes)
}

// Until returns the forward distance from c to other in [0, 1440).
func (c Clock) Until(other Clock) int {
	return int(NewClock(int(other) - int(c)))
}

// CircularDistance returns the shortest distance between a and b in minutes.
func CircularDistance(a, b Clock) int {
	d := a.Until(b)
	if back := MinutesPerDay - d; back < d {
		return back
	}
	return d
}

// InRange reports whether c lies in the inclusive range [start, end]. A range
// with start > end crosses midnight.
func (c Clock) InRange(start, end Clock) bool {
	if start <= end {
		return c >= start && c <= end
	}
	return c >= start || c <= end
}
