package biometric

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/evoface/internal/database"
	"go.uber.org/zap"
)

// ErrTemplateCommit is returned when the Identity Store rejects an evolved template.
// The in-memory template is left unchanged so the sample can be retried.
var ErrTemplateCommit = errors.New("template commit failed")

// Fuse folds one sample into a template as a running mean. Samples are
// normalized first so each contributes equally; Embedding is the normalized mean.
func Fuse(t database.EmployeeTemplate, sample []float32, now time.Time) database.EmployeeTemplate {
	out := t.Clone()

	n := t.SampleCount
	if n < 1 {
		n = 1
	}
	mean := t.Mean
	if len(mean) != len(sample) {
		mean = t.Embedding
	}

	x := database.L2Normalize(sample)
	fused := make([]float32, len(x))
	for i := range x {
		fused[i] = float32((float64(mean[i])*float64(n) + float64(x[i])) / float64(n+1))
	}

	out.Mean = fused
	out.Embedding = database.L2Normalize(fused)
	out.SampleCount = n + 1
	out.LastUpdated = now
	return out
}

// Evolver applies admitted samples to employee templates. Updates to the same
// employee are serialized through the arena's per-employee lock.
type Evolver struct {
	arena  *Arena
	store  database.TemplateWriter
	logger *zap.Logger
	now    func() time.Time
}

// NewEvolver creates an evolver committing to store before updating arena.
func NewEvolver(arena *Arena, store database.TemplateWriter, logger *zap.Logger) *Evolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evolver{arena: arena, store: store, logger: logger, now: time.Now}
}

// MaybeUpdate fuses embedding into the matched template when the outcome allows
// evolution. It reports whether a template was updated.
func (e *Evolver) MaybeUpdate(ctx context.Context, employeeID string, embedding []float32, outcome Outcome) (bool, error) {
	if !outcome.EvolutionAllowed() || outcome.EmployeeID != employeeID {
		return false, nil
	}

	unlock := e.arena.Lock(employeeID)
	defer unlock()

	current, ok := e.arena.Template(employeeID, outcome.Slot)
	if !ok {
		return false, fmt.Errorf("no template for employee %s slot %d", employeeID, outcome.Slot)
	}
	if len(current.Embedding) != len(embedding) {
		return false, fmt.Errorf("%w: template has %d dimensions, sample %d",
			ErrInvalidDetection, len(current.Embedding), len(embedding))
	}

	updated := Fuse(current, embedding, e.now())
	if err := e.store.CommitTemplate(ctx, updated); err != nil {
		return false, fmt.Errorf("%w for employee %s: %w", ErrTemplateCommit, employeeID, err)
	}
	e.arena.Replace(updated)

	e.logger.Debug("template evolved",
		zap.String("employee_id", employeeID),
		zap.Int("slot", updated.Slot),
		zap.Int("sample_count", updated.SampleCount),
		zap.Float64("similarity", outcome.Similarity),
	)
	return true, nil
}
