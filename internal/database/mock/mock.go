// Package mock provides in-memory implementations of database interfaces for testing.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/evoface/internal/database"
	"github.com/kozaktomas/evoface/internal/names"
)

// MockTemplateStore is a mock implementation of database.TemplateWriter
type MockTemplateStore struct {
	mu        sync.RWMutex
	templates map[string][]database.EmployeeTemplate
	commits   int

	// Error injection
	GetError    error
	CommitError error
}

// NewMockTemplateStore creates a new mock template store
func NewMockTemplateStore() *MockTemplateStore {
	return &MockTemplateStore{
		templates: make(map[string][]database.EmployeeTemplate),
	}
}

// AddTemplate adds a template to the mock store, replacing the same slot
func (m *MockTemplateStore) AddTemplate(t database.EmployeeTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(t.Clone())
}

func (m *MockTemplateStore) put(t database.EmployeeTemplate) {
	list := m.templates[t.EmployeeID]
	for i := range list {
		if list[i].Slot == t.Slot {
			list[i] = t
			return
		}
	}
	list = append(list, t)
	sort.Slice(list, func(i, j int) bool { return list[i].Slot < list[j].Slot })
	m.templates[t.EmployeeID] = list
}

func (m *MockTemplateStore) remove(employeeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.templates, employeeID)
}

// GetTemplates returns the templates of one employee
func (m *MockTemplateStore) GetTemplates(ctx context.Context, employeeID string) ([]database.EmployeeTemplate, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.EmployeeTemplate
	for _, t := range m.templates[employeeID] {
		out = append(out, t.Clone())
	}
	return out, nil
}

// GetAllCandidates returns copies of every stored template
func (m *MockTemplateStore) GetAllCandidates(ctx context.Context) (map[string][]database.EmployeeTemplate, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]database.EmployeeTemplate, len(m.templates))
	for id, list := range m.templates {
		for _, t := range list {
			out[id] = append(out[id], t.Clone())
		}
	}
	return out, nil
}

// CommitTemplate stores an evolved template
func (m *MockTemplateStore) CommitTemplate(ctx context.Context, t database.EmployeeTemplate) error {
	if m.CommitError != nil {
		return m.CommitError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(t.Clone())
	m.commits++
	return nil
}

// Commits returns how many CommitTemplate calls succeeded
func (m *MockTemplateStore) Commits() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commits
}

// MockEmployeeStore is a mock implementation of database.EmployeeWriter.
// Registrations seed slot 0 in the linked template store, if any.
type MockEmployeeStore struct {
	mu        sync.RWMutex
	employees map[string]database.Employee
	templates *MockTemplateStore

	// Error injection
	GetError      error
	ListError     error
	RegisterError error
	DeleteError   error
}

// NewMockEmployeeStore creates a new mock employee store
func NewMockEmployeeStore(templates *MockTemplateStore) *MockEmployeeStore {
	return &MockEmployeeStore{
		employees: make(map[string]database.Employee),
		templates: templates,
	}
}

// AddEmployee adds an employee without touching templates
func (m *MockEmployeeStore) AddEmployee(e database.Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
}

// GetEmployee returns nil if the employee does not exist
func (m *MockEmployeeStore) GetEmployee(ctx context.Context, id string) (*database.Employee, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// ListEmployees returns all employees ordered by ID
func (m *MockEmployeeStore) ListEmployees(ctx context.Context) ([]database.Employee, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SearchEmployees matches names ignoring case and diacritics
func (m *MockEmployeeStore) SearchEmployees(ctx context.Context, name string) ([]database.Employee, error) {
	all, err := m.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	var out []database.Employee
	for _, e := range all {
		if names.Matches(e.Name, name) {
			out = append(out, e)
		}
	}
	return out, nil
}

// RegisterEmployee stores the employee and seeds its template
func (m *MockEmployeeStore) RegisterEmployee(ctx context.Context, e database.Employee, embedding []float32) error {
	if m.RegisterError != nil {
		return m.RegisterError
	}
	if e.ID == "" {
		return errors.New("employee ID is required")
	}
	if len(embedding) == 0 {
		return errors.New("registration embedding is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.AddEmployee(e)

	if m.templates != nil {
		unit := database.L2Normalize(embedding)
		m.templates.remove(e.ID)
		m.templates.AddTemplate(database.EmployeeTemplate{
			EmployeeID:    e.ID,
			Embedding:     unit,
			Mean:          unit,
			BaseEmbedding: unit,
			SampleCount:   1,
			LastUpdated:   e.CreatedAt,
		})
	}
	return nil
}

// DeleteEmployee removes the employee and its templates
func (m *MockEmployeeStore) DeleteEmployee(ctx context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	_, ok := m.employees[id]
	delete(m.employees, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("employee %s: %w", id, database.ErrNotFound)
	}
	if m.templates != nil {
		m.templates.remove(id)
	}
	return nil
}

// MockPunchStore is a mock implementation of database.PunchWriter
type MockPunchStore struct {
	mu      sync.RWMutex
	punches []database.PunchRecord

	// Error injection
	AppendError error
	ListError   error
	AssignError error
}

// NewMockPunchStore creates a new mock punch store
func NewMockPunchStore() *MockPunchStore {
	return &MockPunchStore{}
}

// AppendRawPunch stores a punch verbatim
func (m *MockPunchStore) AppendRawPunch(ctx context.Context, p database.PunchRecord) error {
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.punches = append(m.punches, p)
	return nil
}

// AssignShift attributes a punch to a shift
func (m *MockPunchStore) AssignShift(ctx context.Context, punchID, shiftCode string) error {
	if m.AssignError != nil {
		return m.AssignError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.punches {
		if m.punches[i].ID == punchID {
			m.punches[i].ShiftCode = shiftCode
			return nil
		}
	}
	return fmt.Errorf("punch %s: %w", punchID, database.ErrNotFound)
}

// GetPunch returns nil if the punch does not exist
func (m *MockPunchStore) GetPunch(ctx context.Context, id string) (*database.PunchRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.punches {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *MockPunchStore) filter(keep func(database.PunchRecord) bool) []database.PunchRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.PunchRecord
	for _, p := range m.punches {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// ListPunches returns the punches of one business date ordered by timestamp
func (m *MockPunchStore) ListPunches(
	ctx context.Context, employeeID string, businessDate time.Time,
) ([]database.PunchRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	day := database.DateOf(businessDate)
	return m.filter(func(p database.PunchRecord) bool {
		return p.EmployeeID == employeeID && p.BusinessDate.Equal(day)
	}), nil
}

// ListPunchesInRange returns punches with business dates in [from, to]
func (m *MockPunchStore) ListPunchesInRange(
	ctx context.Context, employeeID string, from, to time.Time,
) ([]database.PunchRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	lo, hi := database.DateOf(from), database.DateOf(to)
	return m.filter(func(p database.PunchRecord) bool {
		return p.EmployeeID == employeeID && !p.BusinessDate.Before(lo) && !p.BusinessDate.After(hi)
	}), nil
}

// ListRecentPunches returns the newest punches first
func (m *MockPunchStore) ListRecentPunches(ctx context.Context, limit int) ([]database.PunchRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	all := m.filter(func(database.PunchRecord) bool { return true })
	out := make([]database.PunchRecord, 0, len(all))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// ListUnmatchedPunches returns punches awaiting manual shift resolution
func (m *MockPunchStore) ListUnmatchedPunches(ctx context.Context) ([]database.PunchRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	return m.filter(database.PunchRecord.Unmatched), nil
}

// Count returns the number of stored punches
func (m *MockPunchStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.punches)
}

// MockDailyRecordStore is a mock implementation of database.DailyRecordStore
type MockDailyRecordStore struct {
	mu      sync.RWMutex
	records map[string]database.DailyRecord

	// Error injection
	GetError    error
	UpsertError error
}

// NewMockDailyRecordStore creates a new mock daily record store
func NewMockDailyRecordStore() *MockDailyRecordStore {
	return &MockDailyRecordStore{
		records: make(map[string]database.DailyRecord),
	}
}

func recordKey(employeeID string, businessDate time.Time) string {
	return employeeID + "|" + database.DateOf(businessDate).Format("2006-01-02")
}

func cloneRecord(r database.DailyRecord) database.DailyRecord {
	r.Flags = append([]string(nil), r.Flags...)
	if r.ClockOut != nil {
		t := *r.ClockOut
		r.ClockOut = &t
	}
	return r
}

// UpsertDailyRecord inserts or replaces the record keyed by employee and business date
func (m *MockDailyRecordStore) UpsertDailyRecord(ctx context.Context, r database.DailyRecord) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r.BusinessDate = database.DateOf(r.BusinessDate)
	m.records[recordKey(r.EmployeeID, r.BusinessDate)] = cloneRecord(r)
	return nil
}

// GetDailyRecord returns nil if no record exists
func (m *MockDailyRecordStore) GetDailyRecord(
	ctx context.Context, employeeID string, businessDate time.Time,
) (*database.DailyRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[recordKey(employeeID, businessDate)]
	if !ok {
		return nil, nil
	}
	r = cloneRecord(r)
	return &r, nil
}

func (m *MockDailyRecordStore) list(keep func(database.DailyRecord) bool) []database.DailyRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.DailyRecord
	for _, r := range m.records {
		if keep(r) {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BusinessDate.Equal(out[j].BusinessDate) {
			return out[i].BusinessDate.Before(out[j].BusinessDate)
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return out
}

// ListDailyRecords returns records with business dates in [from, to] ordered by date
func (m *MockDailyRecordStore) ListDailyRecords(
	ctx context.Context, employeeID string, from, to time.Time,
) ([]database.DailyRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	lo, hi := database.DateOf(from), database.DateOf(to)
	return m.list(func(r database.DailyRecord) bool {
		return r.EmployeeID == employeeID && !r.BusinessDate.Before(lo) && !r.BusinessDate.After(hi)
	}), nil
}

// ListUnfinalized returns every open or closed record
func (m *MockDailyRecordStore) ListUnfinalized(ctx context.Context) ([]database.DailyRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	return m.list(func(r database.DailyRecord) bool {
		return r.Status != database.StatusFinalized
	}), nil
}

// Backend bundles one mock per repository interface.
type Backend struct {
	Templates *MockTemplateStore
	Employees *MockEmployeeStore
	Punches   *MockPunchStore
	Records   *MockDailyRecordStore
}

// NewBackend creates linked mocks sharing one template store.
func NewBackend() *Backend {
	templates := NewMockTemplateStore()
	return &Backend{
		Templates: templates,
		Employees: NewMockEmployeeStore(templates),
		Punches:   NewMockPunchStore(),
		Records:   NewMockDailyRecordStore(),
	}
}

// Register installs the mocks as the active database backend.
func (b *Backend) Register() {
	database.RegisterBackend(
		func() database.TemplateWriter { return b.Templates },
		func() database.EmployeeWriter { return b.Employees },
		func() database.PunchWriter { return b.Punches },
		func() database.DailyRecordStore { return b.Records },
	)
}
