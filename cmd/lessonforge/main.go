// Command lessonforge serves the outline-to-lesson pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/yungbote/lessonforge/internal/app"
	"github.com/yungbote/lessonforge/internal/config"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "lessonforge",
	Short:         "Turn teaching outlines into validated, compiled lesson components",
	Version:       app.Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("LESSONFORGE_CONFIG"), "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, workerCmd, processCmd, submitCmd, migrateCmd)
}

// bootstrap loads config and the logger shared by every command.
func bootstrap() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		log.Warn("automaxprocs failed", "error", err)
	}
	return cfg, log, nil
}

// withApp builds the app, runs fn under a signal-aware context and closes
// the app within the shutdown timeout.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Startup failed", "error", err)
		log.Sync()
		return err
	}
	runErr := fn(ctx, a)

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	a.Close(closeCtx)
	return runErr
}
