package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/lessonforge/internal/config"
	"github.com/yungbote/lessonforge/internal/platform/gcp"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

var newArtifactBucket = gcp.NewArtifactBucket

type ArtifactBootstrapErrorCode string

const (
	ArtifactBootstrapErrorInvalidConfig ArtifactBootstrapErrorCode = "invalid_config"
	ArtifactBootstrapErrorConnectFailed ArtifactBootstrapErrorCode = "connect_failed"
)

type ArtifactBootstrapError struct {
	Code   ArtifactBootstrapErrorCode
	Bucket string
	Mode   string
	Cause  error
}

func (e *ArtifactBootstrapError) Error() string {
	return fmt.Sprintf("artifact mirror bootstrap failed (code=%s bucket=%q mode=%q): %v",
		e.Code, e.Bucket, e.Mode, e.Cause)
}

func (e *ArtifactBootstrapError) Unwrap() error { return e.Cause }

func classifyArtifactBootstrapError(cfg config.ArtifactsConfig, err error) error {
	code := ArtifactBootstrapErrorConnectFailed
	var cfgErr *gcp.StorageConfigError
	if errors.As(err, &cfgErr) {
		code = ArtifactBootstrapErrorInvalidConfig
	}
	return &ArtifactBootstrapError{Code: code, Bucket: cfg.Bucket, Mode: cfg.Mode, Cause: err}
}

// wireArtifacts opens the artifact mirror bucket, or returns nil when no
// bucket is configured.
func wireArtifacts(ctx context.Context, log *logger.Logger, cfg config.ArtifactsConfig) (*gcp.ArtifactBucket, error) {
	if !cfg.Enabled() {
		log.Info("Artifact mirror disabled; compiled artifacts stay in postgres only")
		return nil, nil
	}
	bucket, err := newArtifactBucket(ctx, log, cfg.Storage())
	if err != nil {
		err = classifyArtifactBootstrapError(cfg, err)
		log.Error("Artifact mirror bootstrap failed", "bucket", cfg.Bucket, "mode", cfg.Mode, "error", err)
		return nil, err
	}
	log.Info("Artifact mirror ready", "bucket", cfg.Bucket, "mode", cfg.Mode)
	return bucket, nil
}
