// Package debounce suppresses repeated punches of the same employee within a
// configured window.
package debounce

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/evoface/internal/biometric"
	"github.com/kozaktomas/evoface/internal/database"
	"go.uber.org/zap"
)

// State remembers the last emitted punch per employee.
type State interface {
	// TryAcquire records now as the employee's last punch and returns true when
	// there is no previous punch or it is at least window older than now.
	// Otherwise it returns false and leaves the state unchanged.
	TryAcquire(ctx context.Context, employeeID string, now time.Time, window time.Duration) (bool, error)
	// Last returns the last recorded punch time, if any.
	Last(ctx context.Context, employeeID string) (time.Time, bool, error)
	// Release forgets the employee's last punch if it is still emittedAt, so a
	// punch that could not be stored does not suppress the next detection.
	Release(ctx context.Context, employeeID string, emittedAt time.Time) error
}

// Debouncer turns accepted outcomes into punch events.
type Debouncer struct {
	state  State
	window time.Duration
	logger *zap.Logger
}

// New creates a debouncer. A nil state uses an in-memory state.
func New(state State, window time.Duration, logger *zap.Logger) *Debouncer {
	if state == nil {
		state = NewMemoryState()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Debouncer{state: state, window: window, logger: logger}
}

// Window returns the configured minimum spacing between punches.
func (d *Debouncer) Window() time.Duration {
	return d.window
}

// Debounce returns a new punch event, or nil when the outcome is not accepted
// for employeeID or a punch was already emitted within the window.
func (d *Debouncer) Debounce(
	ctx context.Context, employeeID string, outcome biometric.Outcome, now time.Time,
) (*database.PunchEvent, error) {
	if !outcome.Accepted() || outcome.EmployeeID == "" || outcome.EmployeeID != employeeID {
		return nil, nil
	}

	ok, err := d.state.TryAcquire(ctx, employeeID, now, d.window)
	if err != nil {
		return nil, fmt.Errorf("debounce state: %w", err)
	}
	if !ok {
		d.logger.Debug("punch suppressed", zap.String("employee_id", employeeID), zap.Time("at", now))
		return nil, nil
	}

	return &database.PunchEvent{
		ID:               uuid.NewString(),
		EmployeeID:       employeeID,
		Timestamp:        now,
		SourceConfidence: outcome.Similarity,
	}, nil
}

// Release gives back the window taken by ev after it failed to be stored.
func (d *Debouncer) Release(ctx context.Context, ev database.PunchEvent) error {
	if err := d.state.Release(ctx, ev.EmployeeID, ev.Timestamp); err != nil {
		return fmt.Errorf("debounce state: %w", err)
	}
	d.logger.Debug("punch window released", zap.String("employee_id", ev.EmployeeID), zap.Time("at", ev.Timestamp))
	return nil
}
