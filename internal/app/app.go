package app

import (
	"context"
	"errors"
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/gorm"

	"github.com/yungbote/lessonforge/internal/config"
	"github.com/yungbote/lessonforge/internal/data/db"
	genrepos "github.com/yungbote/lessonforge/internal/data/repos/generation"
	"github.com/yungbote/lessonforge/internal/generation/lessonunit"
	"github.com/yungbote/lessonforge/internal/generation/orchestrator"
	"github.com/yungbote/lessonforge/internal/generation/policy"
	"github.com/yungbote/lessonforge/internal/jobs/runtime"
	"github.com/yungbote/lessonforge/internal/jobs/worker"
	"github.com/yungbote/lessonforge/internal/observability"
	"github.com/yungbote/lessonforge/internal/platform/logger"
	"github.com/yungbote/lessonforge/internal/realtime/bus"
	"github.com/yungbote/lessonforge/internal/services"
	"github.com/yungbote/lessonforge/internal/temporalx/outlinerun"
)

// Version is stamped at build time.
var Version = "dev"

type App struct {
	Log          *logger.Logger
	Cfg          *config.Config
	DB           *gorm.DB
	Policy       policy.Policy
	Bus          bus.Bus
	Gateway      *services.Gateway
	Supervisor   *runtime.Supervisor
	Orchestrator *orchestrator.Orchestrator
	Temporal     temporalsdkclient.Client
	Dispatcher   worker.Dispatcher

	closers []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// New connects every dependency and wires the pipeline. Close releases them
// in reverse order, draining in-flight runs before the database goes away.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Log: log, Cfg: cfg}
	if err := a.wire(ctx); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, log := a.Cfg, a.Log

	a.onClose("otel", observability.InitOTel(ctx, log, cfg.Otel.Observability(Version)))

	pol := policy.Default()
	if cfg.Pipeline.PolicyPath != "" {
		loaded, err := policy.Load(cfg.Pipeline.PolicyPath)
		if err != nil {
			return fmt.Errorf("load policy: %w", err)
		}
		pol = loaded
	}
	a.Policy = pol
	log.Info("Pipeline policy loaded", "policy", pol.Name, "version", pol.Version,
		"max_retries", pol.Lessons.MaxRetries, "max_concurrency", pol.Lessons.MaxConcurrency)

	pg, err := db.NewPostgresService(log, cfg.Postgres.DB())
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.onClose("postgres", func(context.Context) error { return pg.Close() })
	if err := pg.AutoMigrateAll(); err != nil {
		return fmt.Errorf("postgres automigrate: %w", err)
	}
	a.DB = pg.DB()

	if cfg.Redis.Enabled() {
		a.Bus, err = bus.NewRedisBus(log, cfg.Redis.Bus())
		if err != nil {
			return fmt.Errorf("init redis bus: %w", err)
		}
	} else {
		a.Bus = bus.NewMemoryBus()
	}
	a.onClose("bus", func(context.Context) error { return a.Bus.Close() })

	artifacts, err := wireArtifacts(ctx, log, cfg.Artifacts)
	if err != nil {
		return err
	}
	var mirror services.ArtifactStore
	if artifacts != nil {
		mirror = artifacts
		a.onClose("artifacts", func(context.Context) error { return artifacts.Close() })
	}

	a.Gateway = services.NewGateway(a.DB, log, genrepos.New(a.DB, log), services.NewStatusNotifier(a.Bus, log), mirror)

	prov, closeProv, err := wireProvider(ctx, log, cfg.Provider)
	if err != nil {
		return err
	}
	if closeProv != nil {
		a.onClose("provider", func(context.Context) error { return closeProv() })
	}

	a.Supervisor = runtime.NewSupervisor(log).Limit(orchestrator.KindLesson, pol.Lessons.MaxConcurrency)
	validator, err := wireValidator(log, pol.Imports, cfg.TypeCheck)
	if err != nil {
		return err
	}
	units := lessonunit.NewWorkflow(a.Gateway, prov, validator, pol.Lessons.MaxRetries, log)
	a.Orchestrator = orchestrator.New(a.Gateway, prov, units, pol.Thresholds, a.Supervisor, log)

	a.Dispatcher = a.Orchestrator
	if cfg.UseTemporal() {
		tc, err := wireTemporal(ctx, log, cfg.Temporal)
		if err != nil {
			return err
		}
		a.Temporal = tc
		a.onClose("temporal", func(context.Context) error { tc.Close(); return nil })
		a.Dispatcher = outlinerun.NewDispatcher(tc, cfg.Temporal.TaskQueue)
		log.Info("Outline runs dispatched to Temporal", "task_queue", cfg.Temporal.TaskQueue)
	}
	// Registered last so it runs first: in-flight runs drain while every
	// store they write to is still open.
	a.onClose("supervisor", a.Supervisor.Shutdown)
	return nil
}

func (a *App) onClose(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases dependencies in reverse order of acquisition.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Log.Warn("Shutdown step failed", "step", c.name, "error", err)
		}
	}
	a.closers = nil
	a.Log.Sync()
}
