package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/evoface/internal/database"
	"github.com/lib/pq"
)

const recordColumns = `employee_id, business_date, shift_code, shift_name, clock_in, clock_out, punch_count,
	late_minutes, gross_minutes, break_minutes, net_minutes, overtime_minutes, status, flags, updated_at`

// DailyRecordRepository persists aggregated attendance keyed by employee and business date.
type DailyRecordRepository struct {
	pool *Pool
}

// NewDailyRecordRepository creates a new PostgreSQL daily record repository.
func NewDailyRecordRepository(pool *Pool) *DailyRecordRepository {
	return &DailyRecordRepository{pool: pool}
}

// UpsertDailyRecord inserts or replaces the record keyed by employee and business date.
func (r *DailyRecordRepository) UpsertDailyRecord(ctx context.Context, rec database.DailyRecord) error {
	flags := rec.Flags
	if flags == nil {
		flags = []string{}
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO daily_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (employee_id, business_date) DO UPDATE SET
			shift_code = EXCLUDED.shift_code,
			shift_name = EXCLUDED.shift_name,
			clock_in = EXCLUDED.clock_in,
			clock_out = EXCLUDED.clock_out,
			punch_count = EXCLUDED.punch_count,
			late_minutes = EXCLUDED.late_minutes,
			gross_minutes = EXCLUDED.gross_minutes,
			break_minutes = EXCLUDED.break_minutes,
			net_minutes = EXCLUDED.net_minutes,
			overtime_minutes = EXCLUDED.overtime_minutes,
			status = EXCLUDED.status,
			flags = EXCLUDED.flags,
			updated_at = EXCLUDED.updated_at
	`,
		rec.EmployeeID, dateArg(rec.BusinessDate), rec.ShiftCode, rec.ShiftName,
		rec.ClockIn, nullableTime(rec.ClockOut), rec.PunchCount,
		rec.LateMinutes, rec.GrossMinutes, rec.BreakMinutes, rec.NetMinutes, rec.OvertimeMinutes,
		string(rec.Status), pq.Array(flags), updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert daily record: %w", err)
	}
	return nil
}

// GetDailyRecord returns nil if no record exists for the employee and business date.
func (r *DailyRecordRepository) GetDailyRecord(
	ctx context.Context, employeeID string, businessDate time.Time,
) (*database.DailyRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM daily_records WHERE employee_id = $1 AND business_date = $2`,
		employeeID, dateArg(businessDate),
	)
	if err != nil {
		return nil, fmt.Errorf("query daily record: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// ListDailyRecords returns records with business dates in [from, to] ordered by date.
func (r *DailyRecordRepository) ListDailyRecords(
	ctx context.Context, employeeID string, from, to time.Time,
) ([]database.DailyRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM daily_records
		WHERE employee_id = $1 AND business_date BETWEEN $2 AND $3
		ORDER BY business_date
	`, employeeID, dateArg(from), dateArg(to))
	if err != nil {
		return nil, fmt.Errorf("query daily records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListUnfinalized returns every open or closed record ordered by date.
func (r *DailyRecordRepository) ListUnfinalized(ctx context.Context) ([]database.DailyRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM daily_records
		WHERE status <> 'finalized'
		ORDER BY business_date, employee_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query unfinalized records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]database.DailyRecord, error) {
	var records []database.DailyRecord
	for rows.Next() {
		var rec database.DailyRecord
		var businessDate time.Time
		var clockOut sql.NullTime
		var status string
		var flags []string
		if err := rows.Scan(
			&rec.EmployeeID, &businessDate, &rec.ShiftCode, &rec.ShiftName,
			&rec.ClockIn, &clockOut, &rec.PunchCount,
			&rec.LateMinutes, &rec.GrossMinutes, &rec.BreakMinutes, &rec.NetMinutes, &rec.OvertimeMinutes,
			&status, pq.Array(&flags), &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan daily record: %w", err)
		}
		rec.BusinessDate = database.DateOf(businessDate)
		if clockOut.Valid {
			t := clockOut.Time
			rec.ClockOut = &t
		}
		rec.Status = database.RecordStatus(status)
		rec.Flags = flags
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily records: %w", err)
	}
	return records, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
