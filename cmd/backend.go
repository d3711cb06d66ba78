package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/evoface/internal/attendance"
	"github.com/kozaktomas/evoface/internal/config"
	"github.com/kozaktomas/evoface/internal/constants"
	"github.com/kozaktomas/evoface/internal/database"
	"github.com/kozaktomas/evoface/internal/database/postgres"
	"github.com/kozaktomas/evoface/internal/debounce"
	"github.com/kozaktomas/evoface/internal/logging"
	"go.uber.org/zap"
)

// app holds everything a command needs to run the attendance pipeline.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	repos    *postgres.Repositories
	pipeline *attendance.Pipeline
	redis    *debounce.RedisState
}

// registerBackends makes the PostgreSQL repositories the active database backend.
func registerBackends(repos *postgres.Repositories) {
	database.RegisterBackend(
		func() database.TemplateWriter { return repos.Templates },
		func() database.EmployeeWriter { return repos.Employees },
		func() database.PunchWriter { return repos.Punches },
		func() database.DailyRecordStore { return repos.Records },
	)
	database.RegisterTemplateIndexRebuilder(repos.Templates)
}

// backendStores resolves the pipeline stores from the registered backend.
func backendStores(ctx context.Context) (attendance.Stores, error) {
	var stores attendance.Stores
	var err error
	if stores.Templates, err = database.GetTemplateWriter(ctx); err != nil {
		return stores, err
	}
	if stores.Employees, err = database.GetEmployeeWriter(ctx); err != nil {
		return stores, err
	}
	if stores.Punches, err = database.GetPunchWriter(ctx); err != nil {
		return stores, err
	}
	if stores.Records, err = database.GetDailyRecordStore(ctx); err != nil {
		return stores, err
	}
	return stores, nil
}

// initTemplateHNSW builds or loads the template HNSW index used for shortlisting.
func initTemplateHNSW(ctx context.Context, a *app) {
	path := a.cfg.Database.HNSWIndexPath
	if err := a.repos.Templates.EnableHNSW(ctx, path); err != nil {
		a.logger.Warn("template HNSW index unavailable, matching exhaustively", zap.Error(err))
		return
	}
	a.logger.Info("template HNSW index ready",
		zap.Int("templates", a.repos.Templates.IndexCount()), zap.String("path", path))
}

// initDebounce picks Redis when REDIS_URL is set, otherwise in-memory state
// seeded from the most recent stored punches.
func initDebounce(ctx context.Context, a *app) (debounce.State, error) {
	if a.cfg.Redis.URL != "" {
		state, err := debounce.OpenRedis(a.cfg.Redis.URL, a.logger)
		if err != nil {
			return nil, err
		}
		a.redis = state
		a.logger.Info("debounce state in Redis")
		return state, nil
	}

	state := debounce.NewMemoryState()
	n, err := state.RestoreFromPunches(ctx, a.repos.Punches, constants.DebounceRestoreLimit)
	if err != nil {
		return nil, fmt.Errorf("restoring debounce state: %w", err)
	}
	a.logger.Info("debounce state in memory", zap.Int("restored_employees", n))
	return state, nil
}

// setupApp loads configuration, connects to PostgreSQL, applies migrations and
// builds the pipeline with every employee template loaded.
func setupApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	if err := postgres.Initialize(&cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, repos: postgres.NewRepositories(postgres.GetGlobalPool())}
	registerBackends(a.repos)

	stores, err := backendStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	pcfg := attendance.Config{Policy: &cfg.Policy, Dim: cfg.Embedding.Dim}
	if cfg.Database.HNSWEnabled {
		initTemplateHNSW(ctx, a)
		if a.repos.Templates.IsHNSWEnabled() {
			pcfg.Shortlist = a.repos.Templates
			pcfg.ShortlistK = cfg.Database.HNSWShortlist
		}
	}

	if pcfg.DebounceState, err = initDebounce(ctx, a); err != nil {
		a.Close()
		return nil, err
	}

	if a.pipeline, err = attendance.New(pcfg, stores, logger); err != nil {
		a.Close()
		return nil, err
	}
	n, err := a.pipeline.LoadTemplates(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("templates loaded", zap.Int("employees", n))
	return a, nil
}

// Close persists the HNSW index and releases connections.
func (a *app) Close() {
	if rebuilder := database.GetTemplateIndexRebuilder(); rebuilder != nil && a.cfg.Database.HNSWEnabled {
		if err := rebuilder.SaveIndex(); err != nil {
			a.logger.Warn("failed to save template HNSW index", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing Redis", zap.Error(err))
		}
	}
	if pool := postgres.GetGlobalPool(); pool != nil {
		pool.Close()
	}
	_ = a.logger.Sync()
}
