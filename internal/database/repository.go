package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by mutations addressing a row that does not exist.
var ErrNotFound = errors.New("not found")

// TemplateReader provides read access to the Identity Store
type TemplateReader interface {
	// GetTemplates returns the stored templates of one employee
	GetTemplates(ctx context.Context, employeeID string) ([]EmployeeTemplate, error)
	// GetAllCandidates returns every employee's templates keyed by employee ID
	GetAllCandidates(ctx context.Context) (map[string][]EmployeeTemplate, error)
}

// TemplateWriter provides write access to the Identity Store
type TemplateWriter interface {
	TemplateReader

	// CommitTemplate durably stores an evolved template (upsert by employee and slot)
	CommitTemplate(ctx context.Context, t EmployeeTemplate) error
}

// EmployeeReader provides read access to registered employees
type EmployeeReader interface {
	// GetEmployee returns nil if the employee does not exist
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	// ListEmployees returns all employees ordered by ID
	ListEmployees(ctx context.Context) ([]Employee, error)
	// SearchEmployees matches names ignoring case and diacritics
	SearchEmployees(ctx context.Context, name string) ([]Employee, error)
}

// EmployeeWriter registers and removes employees together with their initial template
type EmployeeWriter interface {
	EmployeeReader

	// RegisterEmployee creates (or replaces) the employee and seeds slot 0 with embedding
	RegisterEmployee(ctx context.Context, e Employee, embedding []float32) error
	// DeleteEmployee removes the employee, templates and raw punches
	DeleteEmployee(ctx context.Context, id string) error
}

// PunchReader provides read access to raw punches
type PunchReader interface {
	// GetPunch returns nil if the punch does not exist
	GetPunch(ctx context.Context, id string) (*PunchRecord, error)
	// ListPunches returns the punches of one business date ordered by timestamp
	ListPunches(ctx context.Context, employeeID string, businessDate time.Time) ([]PunchRecord, error)
	// ListPunchesInRange returns punches with business dates in [from, to]
	ListPunchesInRange(ctx context.Context, employeeID string, from, to time.Time) ([]PunchRecord, error)
	// ListRecentPunches returns the newest punches first
	ListRecentPunches(ctx context.Context, limit int) ([]PunchRecord, error)
	// ListUnmatchedPunches returns punches awaiting manual shift resolution
	ListUnmatchedPunches(ctx context.Context) ([]PunchRecord, error)
}

// PunchWriter is the audit trail of raw punches
type PunchWriter interface {
	PunchReader

	// AppendRawPunch stores a punch verbatim
	AppendRawPunch(ctx context.Context, p PunchRecord) error
	// AssignShift attributes an unmatched punch to a shift
	AssignShift(ctx context.Context, punchID, shiftCode string) error
}

// DailyRecordReader provides read access to aggregated attendance
type DailyRecordReader interface {
	// GetDailyRecord returns nil if no record exists for the employee and business date
	GetDailyRecord(ctx context.Context, employeeID string, businessDate time.Time) (*DailyRecord, error)
	// ListDailyRecords returns records with business dates in [from, to] ordered by date
	ListDailyRecords(ctx context.Context, employeeID string, from, to time.Time) ([]DailyRecord, error)
	// ListUnfinalized returns every open or closed record
	ListUnfinalized(ctx context.Context) ([]DailyRecord, error)
}

// DailyRecordStore persists aggregated attendance
type DailyRecordStore interface {
	DailyRecordReader

	// UpsertDailyRecord inserts or replaces the record keyed by employee and business date
	UpsertDailyRecord(ctx context.Context, r DailyRecord) error
}
