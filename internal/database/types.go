package database

import (
	"time"
)

// Employee is a registered person who may punch in.
type Employee struct {
	ID           string
	Name         string
	DefaultShift string // Shift code forced for this employee, empty for automatic resolution
	CreatedAt    time.Time
}

// EmployeeTemplate is the stored, evolving representative embedding of one employee.
// Mean is the running mean of every admitted sample, Embedding its L2-normalized form
// used for matching. BaseEmbedding is the registration sample and never changes.
type EmployeeTemplate struct {
	EmployeeID    string
	Slot          int
	Embedding     []float32
	Mean          []float32
	BaseEmbedding []float32
	SampleCount   int
	LastUpdated   time.Time
}

// Clone returns a deep copy so callers can mutate without aliasing the stored vectors.
func (t EmployeeTemplate) Clone() EmployeeTemplate {
	c := t
	c.Embedding = append([]float32(nil), t.Embedding...)
	c.Mean = append([]float32(nil), t.Mean...)
	c.BaseEmbedding = append([]float32(nil), t.BaseEmbedding...)
	return c
}

// PunchEvent is an authenticated attendance event. Immutable once created.
type PunchEvent struct {
	ID               string
	EmployeeID       string
	Timestamp        time.Time
	SourceConfidence float64
}

// PunchRecord is the persisted raw punch. An empty ShiftCode marks the punch as
// unmatched and awaiting manual resolution.
type PunchRecord struct {
	PunchEvent
	BusinessDate time.Time // date only, midnight UTC
	ShiftCode    string
	CreatedAt    time.Time
}

// Unmatched reports whether no shift has been attributed to the punch.
func (p PunchRecord) Unmatched() bool {
	return p.ShiftCode == ""
}

// RecordStatus is the lifecycle state of a daily attendance record.
type RecordStatus string

const (
	StatusOpen      RecordStatus = "open"
	StatusClosed    RecordStatus = "closed"
	StatusFinalized RecordStatus = "finalized"
)

// Anomaly flags carried on a daily record.
const (
	FlagMissingClockOut   = "missing_clock_out"
	FlagLate              = "late"
	FlagInsufficientHours = "insufficient_hours"
)

// DailyRecord is the aggregated attendance of one employee for one business date and shift.
type DailyRecord struct {
	EmployeeID      string
	BusinessDate    time.Time // date only, midnight UTC
	ShiftCode       string
	ShiftName       string
	ClockIn         time.Time
	ClockOut        *time.Time
	PunchCount      int
	LateMinutes     int
	GrossMinutes    int
	BreakMinutes    int
	NetMinutes      int
	OvertimeMinutes int
	Status          RecordStatus
	Flags           []string
	UpdatedAt       time.Time
}

// DateOf truncates t to its calendar date in t's location, returned as midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
