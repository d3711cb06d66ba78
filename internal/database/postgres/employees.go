package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/evoface/internal/database"
	"github.com/kozaktomas/evoface/internal/names"
	"github.com/pgvector/pgvector-go"
)

// EmployeeRepository stores employees and seeds their templates on registration.
type EmployeeRepository struct {
	pool      *Pool
	templates *TemplateRepository
}

// NewEmployeeRepository creates a new PostgreSQL employee repository. templates
// may be nil; when set, its HNSW index follows registrations and deletions.
func NewEmployeeRepository(pool *Pool, templates *TemplateRepository) *EmployeeRepository {
	return &EmployeeRepository{pool: pool, templates: templates}
}

// GetEmployee returns nil if the employee does not exist.
func (r *EmployeeRepository) GetEmployee(ctx context.Context, id string) (*database.Employee, error) {
	var e database.Employee
	err := r.pool.QueryRow(ctx,
		"SELECT id, name, default_shift, created_at FROM employees WHERE id = $1", id,
	).Scan(&e.ID, &e.Name, &e.DefaultShift, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return &e, nil
}

// ListEmployees returns all employees ordered by ID.
func (r *EmployeeRepository) ListEmployees(ctx context.Context) ([]database.Employee, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, name, default_shift, created_at FROM employees ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	var employees []database.Employee
	for rows.Next() {
		var e database.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.DefaultShift, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return employees, nil
}

// SearchEmployees matches names ignoring case and diacritics.
// Filtering happens in Go so the unaccent extension is not required.
func (r *EmployeeRepository) SearchEmployees(ctx context.Context, name string) ([]database.Employee, error) {
	all, err := r.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	var matched []database.Employee
	for _, e := range all {
		if names.Matches(e.Name, name) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// RegisterEmployee creates or replaces the employee and resets its templates to a
// single slot seeded with the registration embedding.
func (r *EmployeeRepository) RegisterEmployee(ctx context.Context, e database.Employee, embedding []float32) error {
	if e.ID == "" {
		return errors.New("employee ID is required")
	}
	if len(embedding) == 0 {
		return errors.New("registration embedding is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	unit := database.L2Normalize(embedding)
	template := database.EmployeeTemplate{
		EmployeeID:    e.ID,
		Slot:          0,
		Embedding:     unit,
		Mean:          unit,
		BaseEmbedding: unit,
		SampleCount:   1,
		LastUpdated:   e.CreatedAt,
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO employees (id, name, default_shift, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, default_shift = EXCLUDED.default_shift
	`, e.ID, e.Name, e.DefaultShift, e.CreatedAt); err != nil {
		return fmt.Errorf("upsert employee: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM employee_templates WHERE employee_id = $1", e.ID); err != nil {
		return fmt.Errorf("clear templates: %w", err)
	}

	vec := pgvector.NewVector(unit)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO employee_templates (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, 0, vec, vec, vec, 1, e.CreatedAt); err != nil {
		return fmt.Errorf("insert template: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit employee registration: %w", err)
	}

	if r.templates != nil {
		r.templates.indexRemove(e.ID)
		r.templates.indexUpsert(template)
	}
	return nil
}

// DeleteEmployee removes the employee; templates, punches and records cascade.
func (r *EmployeeRepository) DeleteEmployee(ctx context.Context, id string) error {
	res, err := r.pool.Exec(ctx, "DELETE FROM employees WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete employee: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete employee: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("employee %s: %w", id, database.ErrNotFound)
	}

	if r.templates != nil {
		r.templates.indexRemove(id)
	}
	return nil
}
