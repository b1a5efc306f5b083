package app

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/lessonforge/internal/config"
	"github.com/yungbote/lessonforge/internal/platform/gcp"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

func TestClassifyArtifactBootstrapErrorInvalidConfig(t *testing.T) {
	cfg := config.ArtifactsConfig{Bucket: "lessons", Mode: "ftp"}
	src := &gcp.StorageConfigError{Code: gcp.StorageConfigErrorInvalidMode, Value: "ftp"}

	err := classifyArtifactBootstrapError(cfg, src)

	var got *ArtifactBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected ArtifactBootstrapError, got=%T", err)
	}
	if got.Code != ArtifactBootstrapErrorInvalidConfig {
		t.Fatalf("code: want=%q got=%q", ArtifactBootstrapErrorInvalidConfig, got.Code)
	}
	if !errors.Is(err, src) {
		t.Fatalf("expected cause to unwrap")
	}
}

func TestClassifyArtifactBootstrapErrorConnectFailed(t *testing.T) {
	err := classifyArtifactBootstrapError(config.ArtifactsConfig{Bucket: "lessons"}, errors.New("dial tcp: refused"))

	var got *ArtifactBootstrapError
	if !errors.As(err, &got) || got.Code != ArtifactBootstrapErrorConnectFailed {
		t.Fatalf("expected connect_failed, got=%v", err)
	}
}

func TestWireArtifactsDisabled(t *testing.T) {
	b, err := wireArtifacts(context.Background(), logger.Nop(), config.ArtifactsConfig{})
	if err != nil || b != nil {
		t.Fatalf("expected disabled mirror, got=%v err=%v", b, err)
	}
}

func TestWireArtifactsSurfacesBootstrapFailure(t *testing.T) {
	orig := newArtifactBucket
	t.Cleanup(func() { newArtifactBucket = orig })
	newArtifactBucket = func(ctx context.Context, baseLog *logger.Logger, cfg gcp.StorageConfig) (*gcp.ArtifactBucket, error) {
		return nil, errors.New("credentials not found")
	}

	_, err := wireArtifacts(context.Background(), logger.Nop(), config.ArtifactsConfig{Bucket: "lessons"})
	var got *ArtifactBootstrapError
	if !errors.As(err, &got) || got.Code != ArtifactBootstrapErrorConnectFailed {
		t.Fatalf("expected connect_failed, got=%v", err)
	}
}
