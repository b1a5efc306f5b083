package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/lessonforge/internal/generation/orchestrator"
	httpserver "github.com/yungbote/lessonforge/internal/http"
	httpH "github.com/yungbote/lessonforge/internal/http/handlers"
	"github.com/yungbote/lessonforge/internal/jobs/worker"
	"github.com/yungbote/lessonforge/internal/temporalx/temporalworker"
)

// Serve runs the HTTP API and the recovery sweeper until ctx ends, then
// shuts the server down within the configured timeout.
func (a *App) Serve(ctx context.Context) error {
	sweeper := worker.NewSweeper(a.Log, a.Gateway, a.Dispatcher, worker.Options{
		Interval:  a.Cfg.Pipeline.SweepInterval,
		BatchSize: a.Cfg.Pipeline.SweepBatch,
		MinAge:    a.Cfg.Pipeline.SweepMinAge,
	})
	sweeper.Start(ctx)

	srv := httpserver.NewServer(a.Cfg.Server.Addr, a.routerConfig())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()
	a.Log.Info("HTTP server listening", "addr", a.Cfg.Server.Addr, "version", Version)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Cfg.Server.ShutdownTimeout)
	defer cancel()
	a.Log.Info("HTTP server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (a *App) routerConfig() httpserver.RouterConfig {
	checks := map[string]httpH.Pinger{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	var serviceName string
	if a.Cfg.Otel.Enabled {
		serviceName = a.Cfg.Otel.ServiceName
	}
	return httpserver.RouterConfig{
		Log:            a.Log,
		ServiceName:    serviceName,
		CORSOrigins:    a.Cfg.Server.CORSOrigins,
		OutlineHandler: httpH.NewOutlineHandler(a.Log, a.Gateway, a.Dispatcher),
		EventsHandler:  httpH.NewEventsHandler(a.Log, a.Gateway, a.Bus),
		HealthHandler:  httpH.NewHealthHandler(checks),
	}
}

// RunWorker polls the Temporal task queue until ctx ends.
func (a *App) RunWorker(ctx context.Context) error {
	if a.Temporal == nil {
		return fmt.Errorf("worker requires temporal.address")
	}
	runner, err := temporalworker.NewRunner(a.Log, a.Temporal, a.Cfg.Temporal, a.Orchestrator)
	if err != nil {
		return err
	}
	if err := runner.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// Process runs one outline request to a terminal status in the foreground.
func (a *App) Process(ctx context.Context, id uuid.UUID) (orchestrator.Outcome, error) {
	return a.Orchestrator.ProcessOutlineRequest(ctx, id)
}
