// Package workhours turns the punches of one business day into a daily
// attendance record.
package workhours

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kozaktomas/evoface/internal/config"
	"github.com/kozaktomas/evoface/internal/database"
	"github.com/kozaktomas/evoface/internal/shift"
)

// ErrRecordFinalized is returned when new punches would change a finalized record.
var ErrRecordFinalized = errors.New("record finalized")

// Rules are the work-hour policy settings.
type Rules struct {
	LateBufferMinutes     int
	BreakThresholdMinutes int
	BreakDeductionMinutes int
}

// RulesFromPolicy extracts the work-hour rules from the attendance policy.
func RulesFromPolicy(a config.AttendanceConfig) Rules {
	return Rules{
		LateBufferMinutes:     a.LateBufferMinutes,
		BreakThresholdMinutes: a.BreakDeductionThresholdMinutes,
		BreakDeductionMinutes: a.BreakDeductionMinutes,
	}
}

// BreakFor returns the break deducted from gross minutes: a single fixed
// deduction once gross reaches the threshold, never more than gross itself.
func (r Rules) BreakFor(gross int) int {
	if r.BreakDeductionMinutes <= 0 || gross < r.BreakThresholdMinutes {
		return 0
	}
	return min(r.BreakDeductionMinutes, gross)
}

// Calculator computes daily records.
type Calculator struct {
	rules  Rules
	shifts *shift.Resolver
	now    func() time.Time
}

// NewCalculator creates a calculator. shifts supplies the time zone and day cutoff.
func NewCalculator(rules Rules, shifts *shift.Resolver) *Calculator {
	return &Calculator{rules: rules, shifts: shifts, now: time.Now}
}

// Rules returns the configured rules.
func (c *Calculator) Rules() Rules {
	return c.rules
}

// UpdateRecord recomputes the record of employeeID for businessDate from all
// punches attributed to it so far. existing may be nil. A finalized record is
// returned unchanged for the same punch set; any other change is rejected.
func (c *Calculator) UpdateRecord(
	existing *database.DailyRecord,
	employeeID string,
	businessDate time.Time,
	s shift.Definition,
	punches []database.PunchRecord,
) (database.DailyRecord, error) {
	if len(punches) == 0 {
		return database.DailyRecord{}, fmt.Errorf("no punches for %s on %s", employeeID, businessDate.Format("2006-01-02"))
	}

	sorted := append([]database.PunchRecord(nil), punches...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	clockIn := sorted[0].Timestamp
	var clockOut *time.Time
	if len(sorted) > 1 {
		t := sorted[len(sorted)-1].Timestamp
		clockOut = &t
	}

	if existing != nil && existing.Status == database.StatusFinalized {
		if samePunchSet(*existing, len(sorted), clockIn, clockOut) {
			return *existing, nil
		}
		return *existing, fmt.Errorf("%w: %s on %s", ErrRecordFinalized, employeeID, businessDate.Format("2006-01-02"))
	}

	rec := database.DailyRecord{
		EmployeeID:   employeeID,
		BusinessDate: database.DateOf(businessDate),
		ShiftCode:    s.Code,
		ShiftName:    s.Name,
		ClockIn:      clockIn,
		ClockOut:     clockOut,
		PunchCount:   len(sorted),
		LateMinutes:  c.LateMinutes(s, businessDate, clockIn),
		Status:       database.StatusOpen,
		UpdatedAt:    c.now(),
	}

	if clockOut != nil {
		rec.Status = database.StatusClosed
		rec.GrossMinutes = int(clockOut.Sub(clockIn) / time.Minute)
		rec.BreakMinutes = c.rules.BreakFor(rec.GrossMinutes)
		rec.NetMinutes = max(0, rec.GrossMinutes-rec.BreakMinutes)
		rec.OvertimeMinutes = max(0, rec.NetMinutes-s.NominalPaidMinutes)
	}

	rec.Flags = flagsFor(rec, s)
	return rec, nil
}

// LateMinutes is how far clockIn is past the shift's scheduled start on
// businessDate, less the grace buffer. Early arrivals count as zero.
func (c *Calculator) LateMinutes(s shift.Definition, businessDate, clockIn time.Time) int {
	late := int(clockIn.Sub(c.shifts.ScheduledStart(s, businessDate)) / time.Minute)
	return max(0, late-c.rules.LateBufferMinutes)
}

// CanFinalize reports whether no further punch can belong to the record's business day.
func (c *Calculator) CanFinalize(rec database.DailyRecord, now time.Time) bool {
	return !now.Before(c.shifts.DayClosesAt(rec.BusinessDate))
}

// Finalize moves an open or closed record to finalized once its business day
// has ended. It reports whether the record changed.
func (c *Calculator) Finalize(rec database.DailyRecord, now time.Time) (database.DailyRecord, bool) {
	if rec.Status == database.StatusFinalized || !c.CanFinalize(rec, now) {
		return rec, false
	}
	rec.Status = database.StatusFinalized
	rec.UpdatedAt = now
	return rec, true
}

func flagsFor(rec database.DailyRecord, s shift.Definition) []string {
	flags := []string{}
	if rec.ClockOut == nil {
		flags = append(flags, database.FlagMissingClockOut)
	}
	if rec.LateMinutes > 0 {
		flags = append(flags, database.FlagLate)
	}
	if rec.ClockOut != nil && rec.NetMinutes < s.NominalPaidMinutes {
		flags = append(flags, database.FlagInsufficientHours)
	}
	return flags
}

func samePunchSet(rec database.DailyRecord, count int, clockIn time.Time, clockOut *time.Time) bool {
	if rec.PunchCount != count || !rec.ClockIn.Equal(clockIn) {
		return false
	}
	if rec.ClockOut == nil || clockOut == nil {
		return rec.ClockOut == nil && clockOut == nil
	}
	return rec.ClockOut.Equal(*clockOut)
}
