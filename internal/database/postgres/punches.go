package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/evoface/internal/database"
)

const punchColumns = `id, employee_id, ts, confidence, business_date, shift_code, created_at`

// PunchRepository is the append-only raw punch log.
type PunchRepository struct {
	pool *Pool
}

// NewPunchRepository creates a new PostgreSQL punch repository.
func NewPunchRepository(pool *Pool) *PunchRepository {
	return &PunchRepository{pool: pool}
}

// AppendRawPunch stores a punch verbatim.
func (r *PunchRepository) AppendRawPunch(ctx context.Context, p database.PunchRecord) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO punches (`+punchColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.EmployeeID, p.Timestamp, p.SourceConfidence, dateArg(p.BusinessDate), p.ShiftCode, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert punch: %w", err)
	}
	return nil
}

// AssignShift attributes a punch to a shift.
func (r *PunchRepository) AssignShift(ctx context.Context, punchID, shiftCode string) error {
	res, err := r.pool.Exec(ctx, "UPDATE punches SET shift_code = $2 WHERE id = $1", punchID, shiftCode)
	if err != nil {
		return fmt.Errorf("assign shift: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("assign shift: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("punch %s: %w", punchID, database.ErrNotFound)
	}
	return nil
}

// GetPunch returns nil if the punch does not exist.
func (r *PunchRepository) GetPunch(ctx context.Context, id string) (*database.PunchRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+punchColumns+` FROM punches WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query punch: %w", err)
	}
	defer rows.Close()

	punches, err := scanPunches(rows)
	if err != nil {
		return nil, err
	}
	if len(punches) == 0 {
		return nil, nil
	}
	return &punches[0], nil
}

// ListPunches returns the punches of one business date ordered by timestamp.
func (r *PunchRepository) ListPunches(
	ctx context.Context, employeeID string, businessDate time.Time,
) ([]database.PunchRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+punchColumns+` FROM punches
		WHERE employee_id = $1 AND business_date = $2
		ORDER BY ts, id
	`, employeeID, dateArg(businessDate))
	if err != nil {
		return nil, fmt.Errorf("query punches: %w", err)
	}
	defer rows.Close()

	return scanPunches(rows)
}

// ListPunchesInRange returns punches with business dates in [from, to].
func (r *PunchRepository) ListPunchesInRange(
	ctx context.Context, employeeID string, from, to time.Time,
) ([]database.PunchRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+punchColumns+` FROM punches
		WHERE employee_id = $1 AND business_date BETWEEN $2 AND $3
		ORDER BY ts, id
	`, employeeID, dateArg(from), dateArg(to))
	if err != nil {
		return nil, fmt.Errorf("query punches in range: %w", err)
	}
	defer rows.Close()

	return scanPunches(rows)
}

// ListRecentPunches returns the newest punches first.
func (r *PunchRepository) ListRecentPunches(ctx context.Context, limit int) ([]database.PunchRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+punchColumns+` FROM punches ORDER BY ts DESC, id LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent punches: %w", err)
	}
	defer rows.Close()

	return scanPunches(rows)
}

// ListUnmatchedPunches returns punches awaiting manual shift resolution, oldest first.
func (r *PunchRepository) ListUnmatchedPunches(ctx context.Context) ([]database.PunchRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+punchColumns+` FROM punches WHERE shift_code = '' ORDER BY ts, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query unmatched punches: %w", err)
	}
	defer rows.Close()

	return scanPunches(rows)
}

func scanPunches(rows *sql.Rows) ([]database.PunchRecord, error) {
	var punches []database.PunchRecord
	for rows.Next() {
		var p database.PunchRecord
		var businessDate time.Time
		if err := rows.Scan(
			&p.ID, &p.EmployeeID, &p.Timestamp, &p.SourceConfidence, &businessDate, &p.ShiftCode, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan punch: %w", err)
		}
		p.BusinessDate = database.DateOf(businessDate)
		punches = append(punches, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate punches: %w", err)
	}
	return punches, nil
}
