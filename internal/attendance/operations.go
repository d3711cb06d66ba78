package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/evoface/internal/biometric"
	"github.com/kozaktomas/evoface/internal/database"
	"github.com/kozaktomas/evoface/internal/shift"
	"github.com/kozaktomas/evoface/internal/workhours"
	"go.uber.org/zap"
)

// ErrUnknownEmployee is returned for operations addressing an unregistered employee.
var ErrUnknownEmployee = errors.New("unknown employee")

// ErrPunchAlreadyMatched is returned when resolving a punch that already has a shift.
var ErrPunchAlreadyMatched = errors.New("punch already has a shift")

// RegisterEmployee stores e with embedding as its first template and makes it
// available for matching.
func (p *Pipeline) RegisterEmployee(ctx context.Context, e database.Employee, embedding []float32) error {
	if e.ID == "" {
		return fmt.Errorf("%w: employee ID is required", biometric.ErrInvalidDetection)
	}
	if err := biometric.ValidateEmbedding(embedding, p.dim); err != nil {
		return err
	}
	if e.DefaultShift != "" {
		if _, ok := p.shifts.ByCode(e.DefaultShift); !ok {
			return fmt.Errorf("%w: %q", shift.ErrShiftUnresolved, e.DefaultShift)
		}
	}
	if err := p.stores.Employees.RegisterEmployee(ctx, e, embedding); err != nil {
		return fmt.Errorf("registering employee: %w", err)
	}
	p.logger.Info("employee registered", zap.String("employee_id", e.ID), zap.String("name", e.Name))
	return p.ReloadEmployee(ctx, e.ID)
}

// RemoveEmployee deletes the employee with templates and punches.
func (p *Pipeline) RemoveEmployee(ctx context.Context, employeeID string) error {
	if err := p.stores.Employees.DeleteEmployee(ctx, employeeID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownEmployee, employeeID)
		}
		return fmt.Errorf("deleting employee: %w", err)
	}
	p.arena.Remove(employeeID)
	p.logger.Info("employee removed", zap.String("employee_id", employeeID))
	return nil
}

// ResolvePunch attributes an unmatched punch to shiftCode and recomputes the
// daily record of its business date.
func (p *Pipeline) ResolvePunch(ctx context.Context, punchID, shiftCode string) (*database.DailyRecord, error) {
	if _, ok := p.shifts.ByCode(shiftCode); !ok {
		return nil, fmt.Errorf("%w: %q", shift.ErrShiftUnresolved, shiftCode)
	}
	punch, err := p.stores.Punches.GetPunch(ctx, punchID)
	if err != nil {
		return nil, fmt.Errorf("loading punch: %w", err)
	}
	if punch == nil {
		return nil, fmt.Errorf("punch %s: %w", punchID, database.ErrNotFound)
	}
	if !punch.Unmatched() {
		return nil, fmt.Errorf("%w: %s", ErrPunchAlreadyMatched, punch.ShiftCode)
	}
	if err := p.stores.Punches.AssignShift(ctx, punchID, shiftCode); err != nil {
		return nil, fmt.Errorf("assigning shift: %w", err)
	}
	p.logger.Info("punch resolved",
		zap.String("punch_id", punchID), zap.String("employee_id", punch.EmployeeID), zap.String("shift", shiftCode))
	return p.recomputeDay(ctx, punch.EmployeeID, punch.BusinessDate)
}

// Finalize marks every record whose business day has closed by now as
// finalized. It returns how many records changed.
func (p *Pipeline) Finalize(ctx context.Context, now time.Time) (int, error) {
	p.dayMu.Lock()
	defer p.dayMu.Unlock()

	records, err := p.stores.Records.ListUnfinalized(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing unfinalized records: %w", err)
	}

	finalized := 0
	for _, rec := range records {
		updated, changed := p.calculator.Finalize(rec, now)
		if !changed {
			continue
		}
		if err := p.stores.Records.UpsertDailyRecord(ctx, updated); err != nil {
			return finalized, fmt.Errorf("finalizing record of %s: %w", rec.EmployeeID, err)
		}
		finalized++
	}
	if finalized > 0 {
		p.logger.Info("daily records finalized", zap.Int("count", finalized))
	}
	return finalized, nil
}

// Recompute rebuilds the daily records of employeeID for business dates in
// [from, to] from the stored punches. Finalized records whose punches changed
// are skipped with a warning. It returns how many records were written.
func (p *Pipeline) Recompute(ctx context.Context, employeeID string, from, to time.Time) (int, error) {
	punches, err := p.stores.Punches.ListPunchesInRange(ctx, employeeID, from, to)
	if err != nil {
		return 0, fmt.Errorf("listing punches: %w", err)
	}

	seen := make(map[time.Time]bool)
	written := 0
	for _, pr := range punches {
		if seen[pr.BusinessDate] {
			continue
		}
		seen[pr.BusinessDate] = true

		rec, err := p.recomputeDay(ctx, employeeID, pr.BusinessDate)
		if errors.Is(err, workhours.ErrRecordFinalized) {
			p.logger.Warn("finalized record not recomputed",
				zap.String("employee_id", employeeID), zap.Time("business_date", pr.BusinessDate))
			continue
		}
		if err != nil {
			return written, err
		}
		if rec != nil {
			written++
		}
	}
	return written, nil
}

// Report returns the daily records of employeeID for business dates in [from, to].
func (p *Pipeline) Report(ctx context.Context, employeeID string, from, to time.Time) ([]database.DailyRecord, error) {
	employee, err := p.stores.Employees.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("loading employee: %w", err)
	}
	if employee == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEmployee, employeeID)
	}
	return p.stores.Records.ListDailyRecords(ctx, employeeID, database.DateOf(from), database.DateOf(to))
}

func (p *Pipeline) enqueueCommit(c pendingCommit) {
	p.retryMu.Lock()
	defer p.retryMu.Unlock()

	if len(p.pending) >= p.maxPending {
		p.logger.Warn("template commit queue full, dropping oldest",
			zap.String("employee_id", p.pending[0].employeeID))
		p.pending = p.pending[1:]
	}
	p.pending = append(p.pending, c)
}

// PendingCommits returns the number of evolutions awaiting a retried commit.
func (p *Pipeline) PendingCommits() int {
	p.retryMu.Lock()
	defer p.retryMu.Unlock()
	return len(p.pending)
}

// RetryPendingCommits replays queued evolutions against the current templates.
// Entries that fail again stay queued. It returns how many were committed.
func (p *Pipeline) RetryPendingCommits(ctx context.Context) (int, error) {
	p.retryMu.Lock()
	queue := p.pending
	p.pending = nil
	p.retryMu.Unlock()

	committed := 0
	var failed []pendingCommit
	var lastErr error
	for i, c := range queue {
		if ctx.Err() != nil {
			failed = append(failed, queue[i:]...)
			lastErr = ctx.Err()
			break
		}
		ok, err := p.evolver.MaybeUpdate(ctx, c.employeeID, c.embedding, c.outcome)
		if err != nil {
			lastErr = err
			if errors.Is(err, biometric.ErrTemplateCommit) {
				failed = append(failed, c)
			} else {
				p.logger.Warn("discarding pending template commit",
					zap.String("employee_id", c.employeeID), zap.Error(err))
			}
			continue
		}
		if ok {
			committed++
		}
	}

	if len(failed) > 0 {
		p.retryMu.Lock()
		p.pending = append(failed, p.pending...)
		if over := len(p.pending) - p.maxPending; over > 0 {
			p.pending = p.pending[over:]
		}
		p.retryMu.Unlock()
	}
	return committed, lastErr
}
