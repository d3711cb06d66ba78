package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/kozaktomas/evoface/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) (*Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPoolFromDB(db), mock
}

var templateRowColumns = []string{
	"employee_id", "slot", "embedding", "mean", "base_embedding", "sample_count", "last_updated",
}

func TestTemplateRepository_GetAllCandidates(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewTemplateRepository(pool)
	now := time.Now()

	rows := sqlmock.NewRows(templateRowColumns).
		AddRow("alice", 0, "[1,0]", "[2,0]", "[1,0]", 3, now).
		AddRow("alice", 1, "[0.6,0.8]", "[0.6,0.8]", "[0.6,0.8]", 1, now).
		AddRow("bob", 0, "[0,1]", "[0,1]", "[0,1]", 1, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM employee_templates ORDER BY employee_id, slot")).
		WillReturnRows(rows)

	candidates, err := repo.GetAllCandidates(context.Background())
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
	assert.Len(t, candidates["alice"], 2)
	assert.Equal(t, []float32{2, 0}, candidates["alice"][0].Mean)
	assert.Equal(t, 3, candidates["alice"][0].SampleCount)
	assert.Equal(t, []float32{0, 1}, candidates["bob"][0].Embedding)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepository_CommitTemplate(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewTemplateRepository(pool)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO employee_templates")).
		WithArgs("alice", 0, "[1,0]", "[3,1]", "[1,0]", 4, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CommitTemplate(context.Background(), database.EmployeeTemplate{
		EmployeeID:    "alice",
		Embedding:     []float32{1, 0},
		Mean:          []float32{3, 1},
		BaseEmbedding: []float32{1, 0},
		SampleCount:   4,
		LastUpdated:   now,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepository_CommitTemplateErrors(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewTemplateRepository(pool)

	err := repo.CommitTemplate(context.Background(), database.EmployeeTemplate{EmployeeID: "alice", SampleCount: 0})
	assert.Error(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO employee_templates")).
		WillReturnError(errors.New("connection reset"))
	err = repo.CommitTemplate(context.Background(), database.EmployeeTemplate{
		EmployeeID: "alice", Embedding: []float32{1}, SampleCount: 1,
	})
	assert.ErrorContains(t, err, "upsert template")
}

func TestTemplateRepository_ShortlistRequiresIndex(t *testing.T) {
	pool, _ := newMockPool(t)
	repo := NewTemplateRepository(pool)

	_, err := repo.Shortlist([]float32{1, 0}, 3)
	assert.Error(t, err)
	assert.False(t, repo.IsHNSWEnabled())
	assert.Equal(t, 0, repo.IndexCount())
}

func TestTemplateRepository_EnableHNSW(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewTemplateRepository(pool)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM employee_templates ORDER BY employee_id, slot")).
		WillReturnRows(sqlmock.NewRows(templateRowColumns).
			AddRow("alice", 0, "[1,0,0]", "[1,0,0]", "[1,0,0]", 1, now).
			AddRow("bob", 0, "[0,1,0]", "[0,1,0]", "[0,1,0]", 1, now))

	require.NoError(t, repo.EnableHNSW(context.Background(), ""))
	assert.True(t, repo.IsHNSWEnabled())
	assert.Equal(t, 2, repo.IndexCount())

	ids, err := repo.Shortlist([]float32{0, 1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, ids)

	repo.DisableHNSW()
	assert.False(t, repo.IsHNSWEnabled())
}

var employeeRowColumns = []string{"id", "name", "default_shift", "created_at"}

func TestEmployeeRepository_GetEmployee(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewEmployeeRepository(pool, nil)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, default_shift, created_at FROM employees WHERE id = $1")).
		WithArgs("E001").
		WillReturnRows(sqlmock.NewRows(employeeRowColumns).AddRow("E001", "Jan Novák", "morning", time.Now()))

	e, err := repo.GetEmployee(ctx, "E001")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "Jan Novák", e.Name)
	assert.Equal(t, "morning", e.DefaultShift)

	mock.ExpectQuery(regexp.QuoteMeta("FROM employees WHERE id = $1")).
		WithArgs("E404").
		WillReturnRows(sqlmock.NewRows(employeeRowColumns))

	e, err = repo.GetEmployee(ctx, "E404")
	assert.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmployeeRepository_SearchEmployees(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewEmployeeRepository(pool, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM employees ORDER BY id")).
		WillReturnRows(sqlmock.NewRows(employeeRowColumns).
			AddRow("E001", "Jan Novák", "", time.Now()).
			AddRow("E002", "Petr Svoboda", "", time.Now()))

	found, err := repo.SearchEmployees(context.Background(), "NOVAK")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "E001", found[0].ID)
}

func TestEmployeeRepository_RegisterEmployee(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewEmployeeRepository(pool, NewTemplateRepository(pool))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO employees")).
		WithArgs("E001", "Jan", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM employee_templates WHERE employee_id = $1")).
		WithArgs("E001").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO employee_templates")).
		WithArgs("E001", 0, "[0.6,0.8]", "[0.6,0.8]", "[0.6,0.8]", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.RegisterEmployee(context.Background(), database.Employee{ID: "E001", Name: "Jan"}, []float32{3, 4})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmployeeRepository_RegisterEmployeeRollsBack(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewEmployeeRepository(pool, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO employees")).
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	err := repo.RegisterEmployee(context.Background(), database.Employee{ID: "E001", Name: "Jan"}, []float32{1})
	assert.ErrorContains(t, err, "upsert employee")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmployeeRepository_DeleteEmployee(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewEmployeeRepository(pool, nil)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM employees WHERE id = $1")).
		WithArgs("E001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.DeleteEmployee(ctx, "E001"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM employees WHERE id = $1")).
		WithArgs("E404").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.DeleteEmployee(ctx, "E404")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

var punchRowColumns = []string{"id", "employee_id", "ts", "confidence", "business_date", "shift_code", "created_at"}

func TestPunchRepository_AppendRawPunch(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewPunchRepository(pool)
	ts := time.Date(2024, 1, 2, 3, 15, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO punches")).
		WithArgs("p-1", "E001", ts, 0.82, "2024-01-01", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendRawPunch(context.Background(), database.PunchRecord{
		PunchEvent:   database.PunchEvent{ID: "p-1", EmployeeID: "E001", Timestamp: ts, SourceConfidence: 0.82},
		BusinessDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPunchRepository_AssignShift(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewPunchRepository(pool)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE punches SET shift_code = $2 WHERE id = $1")).
		WithArgs("p-1", "morning").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.AssignShift(ctx, "p-1", "morning"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE punches")).
		WithArgs("p-2", "morning").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.AssignShift(ctx, "p-2", "morning"), database.ErrNotFound)
}

func TestPunchRepository_ListUnmatchedPunches(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewPunchRepository(pool)
	ts := time.Date(2024, 1, 2, 13, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE shift_code = ''")).
		WillReturnRows(sqlmock.NewRows(punchRowColumns).
			AddRow("p-1", "E001", ts, 0.7, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "", ts))

	punches, err := repo.ListUnmatchedPunches(context.Background())
	require.NoError(t, err)
	require.Len(t, punches, 1)
	assert.True(t, punches[0].Unmatched())
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), punches[0].BusinessDate)
}

var recordRowColumns = []string{
	"employee_id", "business_date", "shift_code", "shift_name", "clock_in", "clock_out", "punch_count",
	"late_minutes", "gross_minutes", "break_minutes", "net_minutes", "overtime_minutes", "status", "flags", "updated_at",
}

func TestDailyRecordRepository_UpsertDailyRecord(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewDailyRecordRepository(pool)
	in := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO daily_records")).
		WithArgs("E001", "2024-01-02", "morning", "Morning", in, nil, 1,
			0, 0, 0, 0, 0, "open", "{\"missing_clock_out\"}", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertDailyRecord(context.Background(), database.DailyRecord{
		EmployeeID:   "E001",
		BusinessDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		ShiftCode:    "morning",
		ShiftName:    "Morning",
		ClockIn:      in,
		PunchCount:   1,
		Status:       database.StatusOpen,
		Flags:        []string{database.FlagMissingClockOut},
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyRecordRepository_GetDailyRecord(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewDailyRecordRepository(pool)
	ctx := context.Background()
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	in := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	out := time.Date(2024, 1, 2, 16, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM daily_records WHERE employee_id = $1 AND business_date = $2")).
		WithArgs("E001", "2024-01-02").
		WillReturnRows(sqlmock.NewRows(recordRowColumns).
			AddRow("E001", date, "morning", "Morning", in, out, 2, 0, 510, 60, 450, 0, "closed", "{insufficient_hours}", out))

	rec, err := repo.GetDailyRecord(ctx, "E001", date)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotNil(t, rec.ClockOut)
	assert.Equal(t, out, *rec.ClockOut)
	assert.Equal(t, 450, rec.NetMinutes)
	assert.Equal(t, database.StatusClosed, rec.Status)
	assert.Equal(t, []string{database.FlagInsufficientHours}, rec.Flags)

	mock.ExpectQuery(regexp.QuoteMeta("FROM daily_records WHERE employee_id = $1")).
		WithArgs("E001", "2024-01-03").
		WillReturnRows(sqlmock.NewRows(recordRowColumns))

	rec, err = repo.GetDailyRecord(ctx, "E001", date.AddDate(0, 0, 1))
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMigrationFiles(t *testing.T) {
	files, err := MigrationFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"001_create_employees.sql",
		"002_create_punches.sql",
		"003_create_daily_records.sql",
	}, files)
}
