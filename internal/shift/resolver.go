package shift

import (
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/evoface/internal/config"
)

// ErrShiftUnresolved is returned when a punch falls in no configured shift range.
var ErrShiftUnresolved = errors.New("shift unresolved")

// Definition is a configured shift. End before Start denotes a shift crossing midnight.
type Definition struct {
	Code               string `json:"code"`
	Name               string `json:"name"`
	Start              Clock  `json:"start"`
	End                Clock  `json:"end"`
	RangeStart         Clock  `json:"range_start"`
	RangeEnd           Clock  `json:"range_end"`
	NominalPaidMinutes int    `json:"nominal_paid_minutes"`
}

// CrossesMidnight reports whether the shift ends on the next calendar day.
func (d Definition) CrossesMidnight() bool {
	return d.End < d.Start
}

// DurationMinutes is the scheduled length from start to end.
func (d Definition) DurationMinutes() int {
	return d.Start.Until(d.End)
}

// Match is the result of resolving a time of day.
type Match struct {
	Shift Definition
	// Ambiguous is set when several ranges matched and the nearest start won.
	Ambiguous bool
}

// Resolver maps punch timestamps to shifts and business dates.
type Resolver struct {
	shifts    []Definition
	byCode    map[string]int
	dayCutoff Clock
	loc       *time.Location
}

// NewResolver creates a resolver over shifts in configuration order.
func NewResolver(shifts []Definition, dayCutoff Clock, loc *time.Location) (*Resolver, error) {
	if len(shifts) == 0 {
		return nil, errors.New("at least one shift is required")
	}
	if loc == nil {
		loc = time.Local
	}
	r := &Resolver{
		shifts:    append([]Definition(nil), shifts...),
		byCode:    make(map[string]int, len(shifts)),
		dayCutoff: dayCutoff,
		loc:       loc,
	}
	for i, s := range shifts {
		if _, dup := r.byCode[s.Code]; dup {
			return nil, fmt.Errorf("duplicate shift code %q", s.Code)
		}
		r.byCode[s.Code] = i
	}
	return r, nil
}

// FromPolicy builds a resolver from the attendance policy.
func FromPolicy(p *config.PolicyConfig) (*Resolver, error) {
	loc, err := p.Location()
	if err != nil {
		return nil, err
	}
	cutoff, err := ParseClock(p.Attendance.DayCutoff)
	if err != nil {
		return nil, fmt.Errorf("day_cutoff: %w", err)
	}

	shifts := make([]Definition, 0, len(p.Shifts))
	for _, s := range p.Shifts {
		d := Definition{Code: s.Code, Name: s.Name, NominalPaidMinutes: s.NominalPaidMinutes}
		for _, f := range []struct {
			dst *Clock
			src string
		}{
			{&d.Start, s.StartTime}, {&d.End, s.EndTime},
			{&d.RangeStart, s.RangeStart}, {&d.RangeEnd, s.RangeEnd},
		} {
			if *f.dst, err = ParseClock(f.src); err != nil {
				return nil, fmt.Errorf("shift %q: %w", s.Code, err)
			}
		}
		if d.Name == "" {
			d.Name = d.Code
		}
		shifts = append(shifts, d)
	}
	return NewResolver(shifts, cutoff, loc)
}

// Shifts returns the configured shifts in configuration order.
func (r *Resolver) Shifts() []Definition {
	return append([]Definition(nil), r.shifts...)
}

// Location returns the time zone punches are interpreted in.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// DayCutoff returns the time of day at which a business day begins.
func (r *Resolver) DayCutoff() Clock {
	return r.dayCutoff
}

// ByCode looks up a shift by its code.
func (r *Resolver) ByCode(code string) (Definition, bool) {
	i, ok := r.byCode[code]
	if !ok {
		return Definition{}, false
	}
	return r.shifts[i], true
}

// ResolveClock picks the shift whose range contains c. Among several matches
// the one whose start is nearest to c on the circular clock wins; equal
// distances keep configuration order.
func (r *Resolver) ResolveClock(c Clock) (Match, error) {
	best := -1
	bestDist := 0
	matches := 0
	for i, s := range r.shifts {
		if !c.InRange(s.RangeStart, s.RangeEnd) {
			continue
		}
		matches++
		d := CircularDistance(c, s.Start)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Match{}, fmt.Errorf("%w: no shift range contains %s", ErrShiftUnresolved, c)
	}
	return Match{Shift: r.shifts[best], Ambiguous: matches > 1}, nil
}

// Resolve picks the shift for a punch timestamp.
func (r *Resolver) Resolve(ts time.Time) (Match, error) {
	return r.ResolveClock(ClockOf(ts.In(r.loc)))
}

// BusinessDate returns the calendar date of ts, or the previous date when ts
// is before the day cutoff. The date is returned as midnight UTC.
func (r *Resolver) BusinessDate(ts time.Time) time.Time {
	local := ts.In(r.loc)
	y, m, d := local.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if ClockOf(local) < r.dayCutoff {
		date = date.AddDate(0, 0, -1)
	}
	return date
}

// DayStart returns the instant the business day starts (its cutoff).
func (r *Resolver) DayStart(businessDate time.Time) time.Time {
	y, m, d := businessDate.Date()
	c := int(r.dayCutoff)
	return time.Date(y, m, d, c/60, c%60, 0, 0, r.loc)
}

// DayClosesAt returns the instant after which no punch can belong to businessDate.
func (r *Resolver) DayClosesAt(businessDate time.Time) time.Time {
	return r.DayStart(businessDate.AddDate(0, 0, 1))
}

// ScheduledStart returns the instant the shift starts on businessDate. Shifts
// starting before the cutoff belong to the following calendar day.
func (r *Resolver) ScheduledStart(s Definition, businessDate time.Time) time.Time {
	y, m, d := businessDate.Date()
	if s.Start < r.dayCutoff {
		d++
	}
	c := int(s.Start)
	return time.Date(y, m, d, c/60, c%60, 0, 0, r.loc)
}
