// Package attendance runs detections through recognition, template evolution,
// debouncing, shift attribution and work-hour computation.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/evoface/internal/biometric"
	"github.com/kozaktomas/evoface/internal/config"
	"github.com/kozaktomas/evoface/internal/constants"
	"github.com/kozaktomas/evoface/internal/database"
	"github.com/kozaktomas/evoface/internal/debounce"
	"github.com/kozaktomas/evoface/internal/shift"
	"github.com/kozaktomas/evoface/internal/workhours"
	"go.uber.org/zap"
)

// Stores are the persistence collaborators of the pipeline.
type Stores struct {
	Templates database.TemplateWriter
	Employees database.EmployeeWriter
	Punches   database.PunchWriter
	Records   database.DailyRecordStore
}

// Config configures a Pipeline.
type Config struct {
	Policy *config.PolicyConfig
	// Dim is the required embedding dimension; zero accepts any.
	Dim int
	// Shortlist, when set, narrows matching to ShortlistK employees.
	Shortlist  biometric.Shortlister
	ShortlistK int
	// DebounceState defaults to an in-memory state.
	DebounceState     debounce.State
	MaxPendingCommits int
}

// Result describes what happened to one detection.
type Result struct {
	Outcome        biometric.Outcome     `json:"outcome"`
	Evolved        bool                  `json:"evolved"`
	EvolutionError string                `json:"evolution_error,omitempty"`
	Suppressed     bool                  `json:"suppressed"`
	Punch          *database.PunchRecord `json:"punch,omitempty"`
	Unmatched      bool                  `json:"unmatched"`
	Record         *database.DailyRecord `json:"record,omitempty"`
	RecordError    string                `json:"record_error,omitempty"`
}

type pendingCommit struct {
	employeeID string
	embedding  []float32
	outcome    biometric.Outcome
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	policy     *config.PolicyConfig
	dim        int
	resolver   *biometric.Resolver
	arena      *biometric.Arena
	evolver    *biometric.Evolver
	debouncer  *debounce.Debouncer
	shifts     *shift.Resolver
	calculator *workhours.Calculator
	stores     Stores
	logger     *zap.Logger

	// dayMu serializes record recomputation; punches of one employee and day
	// must not be aggregated by two goroutines at once.
	dayMu sync.Mutex

	retryMu    sync.Mutex
	pending    []pendingCommit
	maxPending int
}

// New wires a pipeline from the policy. Call LoadTemplates before processing.
func New(cfg Config, stores Stores, logger *zap.Logger) (*Pipeline, error) {
	if cfg.Policy == nil {
		return nil, errors.New("policy is required")
	}
	if stores.Templates == nil || stores.Employees == nil || stores.Punches == nil || stores.Records == nil {
		return nil, errors.New("all stores are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	shifts, err := shift.FromPolicy(cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("building shift resolver: %w", err)
	}

	opts := []biometric.ResolverOption{biometric.WithDimension(cfg.Dim), biometric.WithLogger(logger)}
	if cfg.Shortlist != nil {
		opts = append(opts, biometric.WithShortlist(cfg.Shortlist, cfg.ShortlistK))
	}

	maxPending := cfg.MaxPendingCommits
	if maxPending <= 0 {
		maxPending = constants.MaxPendingCommits
	}

	arena := biometric.NewArena()
	window := time.Duration(cfg.Policy.Attendance.DebounceMinutes) * time.Minute
	return &Pipeline{
		policy:     cfg.Policy,
		dim:        cfg.Dim,
		resolver:   biometric.NewResolver(biometric.ThresholdsFromPolicy(cfg.Policy.Thresholds), opts...),
		arena:      arena,
		evolver:    biometric.NewEvolver(arena, stores.Templates, logger),
		debouncer:  debounce.New(cfg.DebounceState, window, logger),
		shifts:     shifts,
		calculator: workhours.NewCalculator(workhours.RulesFromPolicy(cfg.Policy.Attendance), shifts),
		stores:     stores,
		logger:     logger,
		maxPending: maxPending,
	}, nil
}

// Policy returns the effective policy.
func (p *Pipeline) Policy() *config.PolicyConfig {
	return p.policy
}

// Shifts returns the shift resolver.
func (p *Pipeline) Shifts() *shift.Resolver {
	return p.shifts
}

// Calculator returns the work-hour calculator.
func (p *Pipeline) Calculator() *workhours.Calculator {
	return p.calculator
}

// Stores returns the persistence collaborators.
func (p *Pipeline) Stores() Stores {
	return p.stores
}

// LoadTemplates replaces the in-memory templates with the stored ones.
func (p *Pipeline) LoadTemplates(ctx context.Context) (int, error) {
	candidates, err := p.stores.Templates.GetAllCandidates(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading templates: %w", err)
	}
	p.arena.Load(candidates)
	return len(candidates), nil
}

// ReloadEmployee refreshes one employee's templates from the store.
func (p *Pipeline) ReloadEmployee(ctx context.Context, employeeID string) error {
	templates, err := p.stores.Templates.GetTemplates(ctx, employeeID)
	if err != nil {
		return fmt.Errorf("loading templates of %s: %w", employeeID, err)
	}
	if len(templates) == 0 {
		p.arena.Remove(employeeID)
		return nil
	}
	p.arena.Set(employeeID, templates)
	return nil
}

// EmployeeCount returns the number of employees available for matching.
func (p *Pipeline) EmployeeCount() int {
	return p.arena.Len()
}

// Process runs one detection observed at now through the whole pipeline.
// Only invalid input and persistence failures of the punch itself are errors;
// rejections, suppressed punches and unmatched shifts are reported in Result.
func (p *Pipeline) Process(ctx context.Context, det biometric.Detection, now time.Time) (Result, error) {
	outcome, err := p.resolver.Resolve(det, p.arena.Snapshot())
	if err != nil {
		p.logger.Warn("detection dropped", zap.Error(err))
		return Result{}, err
	}
	res := Result{Outcome: outcome}

	if !outcome.Accepted() {
		if outcome.Reason == biometric.ReasonSpoofSuspected {
			p.logger.Warn("spoof suspected", zap.Float64("liveness", det.LivenessScore))
		} else {
			p.logger.Debug("detection rejected", zap.String("reason", string(outcome.Reason)),
				zap.Float64("similarity", outcome.Similarity))
		}
		return res, nil
	}
	employeeID := outcome.EmployeeID
	if outcome.LowBaseWarning {
		p.logger.Warn("low similarity to registration sample",
			zap.String("employee_id", employeeID), zap.Float64("base_similarity", outcome.BaseSimilarity))
	}

	res.Evolved, err = p.evolver.MaybeUpdate(ctx, employeeID, det.Embedding, outcome)
	if err != nil {
		res.EvolutionError = err.Error()
		p.logger.Error("template evolution failed", zap.String("employee_id", employeeID), zap.Error(err))
		if errors.Is(err, biometric.ErrTemplateCommit) {
			p.enqueueCommit(pendingCommit{
				employeeID: employeeID,
				embedding:  append([]float32(nil), det.Embedding...),
				outcome:    outcome,
			})
		}
	}

	ev, err := p.debouncer.Debounce(ctx, employeeID, outcome, now)
	if err != nil {
		return res, err
	}
	if ev == nil {
		res.Suppressed = true
		return res, nil
	}

	punch, record, err := p.recordPunch(ctx, *ev)
	if punch != nil {
		res.Punch = punch
		res.Unmatched = punch.Unmatched()
	}
	if err != nil {
		if punch == nil {
			if rerr := p.debouncer.Release(ctx, *ev); rerr != nil {
				p.logger.Error("punch window not released", zap.String("employee_id", employeeID), zap.Error(rerr))
			}
			return res, err
		}
		// The punch is stored; only the aggregate could not be updated.
		res.RecordError = err.Error()
		if errors.Is(err, workhours.ErrRecordFinalized) {
			p.logger.Warn("punch arrived after its day was finalized",
				zap.String("employee_id", employeeID), zap.String("punch_id", punch.ID))
		} else {
			p.logger.Error("daily record not updated", zap.String("employee_id", employeeID), zap.Error(err))
		}
	}
	res.Record = record
	return res, nil
}

// recordPunch stores the raw punch, then updates the daily record when a shift
// could be attributed. The returned punch is nil only if storing it failed.
func (p *Pipeline) recordPunch(ctx context.Context, ev database.PunchEvent) (*database.PunchRecord, *database.DailyRecord, error) {
	businessDate := p.shifts.BusinessDate(ev.Timestamp)

	code, err := p.attributeShift(ctx, ev, businessDate)
	if err != nil && !errors.Is(err, shift.ErrShiftUnresolved) {
		return nil, nil, err
	}

	punch := database.PunchRecord{PunchEvent: ev, BusinessDate: businessDate, ShiftCode: code}
	if err := p.stores.Punches.AppendRawPunch(ctx, punch); err != nil {
		return nil, nil, fmt.Errorf("appending raw punch: %w", err)
	}

	p.logger.Info("punch recorded",
		zap.String("punch_id", ev.ID),
		zap.String("employee_id", ev.EmployeeID),
		zap.Time("at", ev.Timestamp),
		zap.String("business_date", businessDate.Format(time.DateOnly)),
		zap.String("shift", code),
	)

	if code == "" {
		p.logger.Warn("punch matches no shift, awaiting manual resolution",
			zap.String("punch_id", ev.ID), zap.String("employee_id", ev.EmployeeID))
		return &punch, nil, nil
	}

	record, err := p.recomputeDay(ctx, ev.EmployeeID, businessDate)
	return &punch, record, err
}

// attributeShift picks the shift of a new punch: the shift already attributed
// to the employee's business day, else the employee's default shift, else the
// range match of the punch time.
func (p *Pipeline) attributeShift(ctx context.Context, ev database.PunchEvent, businessDate time.Time) (string, error) {
	existing, err := p.stores.Punches.ListPunches(ctx, ev.EmployeeID, businessDate)
	if err != nil {
		return "", fmt.Errorf("listing punches: %w", err)
	}
	if code := dayShift(existing); code != "" {
		if _, ok := p.shifts.ByCode(code); ok {
			return code, nil
		}
	}

	employee, err := p.stores.Employees.GetEmployee(ctx, ev.EmployeeID)
	if err != nil {
		return "", fmt.Errorf("loading employee: %w", err)
	}
	if employee != nil && employee.DefaultShift != "" {
		if _, ok := p.shifts.ByCode(employee.DefaultShift); ok {
			return employee.DefaultShift, nil
		}
		p.logger.Warn("employee default shift not configured",
			zap.String("employee_id", ev.EmployeeID), zap.String("shift", employee.DefaultShift))
	}

	m, err := p.shifts.Resolve(ev.Timestamp)
	if err != nil {
		return "", err
	}
	if m.Ambiguous {
		p.logger.Info("overlapping shift ranges, nearest start chosen",
			zap.String("employee_id", ev.EmployeeID), zap.String("shift", m.Shift.Code))
	}
	return m.Shift.Code, nil
}

// dayShift returns the shift of the earliest attributed punch.
func dayShift(punches []database.PunchRecord) string {
	var first *database.PunchRecord
	for i := range punches {
		if punches[i].Unmatched() {
			continue
		}
		if first == nil || punches[i].Timestamp.Before(first.Timestamp) {
			first = &punches[i]
		}
	}
	if first == nil {
		return ""
	}
	return first.ShiftCode
}

// recomputeDay rebuilds the daily record from the stored punches of the day.
// It returns nil without error when no punch of the day is attributed.
func (p *Pipeline) recomputeDay(ctx context.Context, employeeID string, businessDate time.Time) (*database.DailyRecord, error) {
	p.dayMu.Lock()
	defer p.dayMu.Unlock()

	punches, err := p.stores.Punches.ListPunches(ctx, employeeID, businessDate)
	if err != nil {
		return nil, fmt.Errorf("listing punches: %w", err)
	}
	code := dayShift(punches)
	if code == "" {
		return nil, nil
	}
	def, ok := p.shifts.ByCode(code)
	if !ok {
		return nil, fmt.Errorf("%w: shift %q is no longer configured", shift.ErrShiftUnresolved, code)
	}

	var attributed []database.PunchRecord
	for _, pr := range punches {
		if pr.ShiftCode == code {
			attributed = append(attributed, pr)
		}
	}

	existing, err := p.stores.Records.GetDailyRecord(ctx, employeeID, businessDate)
	if err != nil {
		return nil, fmt.Errorf("loading daily record: %w", err)
	}

	record, err := p.calculator.UpdateRecord(existing, employeeID, businessDate, def, attributed)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == database.StatusFinalized {
		return &record, nil
	}
	if err := p.stores.Records.UpsertDailyRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("upserting daily record: %w", err)
	}
	return &record, nil
}
