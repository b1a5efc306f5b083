package app

import (
	"context"
	"fmt"
	"strings"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/lessonforge/internal/config"
	"github.com/yungbote/lessonforge/internal/generation/policy"
	"github.com/yungbote/lessonforge/internal/generation/provider"
	"github.com/yungbote/lessonforge/internal/generation/staticcheck"
	"github.com/yungbote/lessonforge/internal/platform/gemini"
	"github.com/yungbote/lessonforge/internal/platform/logger"
	"github.com/yungbote/lessonforge/internal/platform/openai"
	"github.com/yungbote/lessonforge/internal/temporalx"
)

// wireProvider builds the LLM provider over the configured backend. The
// returned close func is nil when the backend holds no resources.
func wireProvider(ctx context.Context, log *logger.Logger, cfg config.ProviderConfig) (provider.Provider, func() error, error) {
	var (
		gen     provider.JSONGenerator
		closeFn func() error
	)
	switch cfg.Backend {
	case config.BackendGemini:
		gc := gemini.ConfigFromEnv()
		if m := strings.TrimSpace(cfg.Model); m != "" {
			gc.Model = m
		}
		client, err := gemini.NewClient(ctx, log, gc)
		if err != nil {
			return nil, nil, fmt.Errorf("init gemini client: %w", err)
		}
		gen, closeFn = client, client.Close
	default:
		oc := openai.ConfigFromEnv()
		if m := strings.TrimSpace(cfg.Model); m != "" {
			oc.Model = m
		}
		client, err := openai.NewClient(log, oc)
		if err != nil {
			return nil, nil, fmt.Errorf("init openai client: %w", err)
		}
		gen = client
	}
	llm, err := provider.NewLLM(gen, log, provider.Options{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	})
	if err != nil {
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, nil, err
	}
	log.Info("LLM provider ready", "backend", cfg.Backend, "rps", cfg.RequestsPerSecond)
	return llm, closeFn, nil
}

func wireTemporal(ctx context.Context, log *logger.Logger, cfg temporalx.Config) (temporalsdkclient.Client, error) {
	tc, err := temporalx.NewClient(ctx, log, cfg)
	if err != nil {
		return nil, fmt.Errorf("init temporal: %w", err)
	}
	if tc == nil {
		return nil, fmt.Errorf("init temporal: temporal.address is not set")
	}
	return tc, nil
}

// wireValidator builds the static validator, adding the tsc pass when it is
// enabled. A configured but missing tsc is a startup error.
func wireValidator(log *logger.Logger, imports policy.Imports, cfg config.TypeCheckConfig) (*staticcheck.Validator, error) {
	if !cfg.Enabled {
		log.Info("Lesson type checking disabled; validating syntax and imports only")
		return staticcheck.New(imports), nil
	}
	tsc, err := staticcheck.NewTSC(cfg.TSC())
	if err != nil {
		return nil, fmt.Errorf("typecheck: %w", err)
	}
	log.Info("Lesson type checking enabled", "command", cfg.Command, "project_dir", cfg.ProjectDir)
	return staticcheck.New(imports, staticcheck.WithTypeChecker(tsc)), nil
}
