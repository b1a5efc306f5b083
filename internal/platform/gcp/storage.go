package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/lessonforge/internal/platform/logger"
)

type StorageMode string

const (
	StorageModeGCS         StorageMode = "gcs"
	StorageModeGCSEmulator StorageMode = "gcs_emulator"
)

type StorageConfig struct {
	Bucket        string
	Prefix        string
	Mode          StorageMode
	EmulatorHost  string
	PublicBaseURL string
	Credentials   string
}

type StorageConfigErrorCode string

const (
	StorageConfigErrorMissingBucket       StorageConfigErrorCode = "missing_bucket"
	StorageConfigErrorInvalidMode         StorageConfigErrorCode = "invalid_mode"
	StorageConfigErrorMissingEmulatorHost StorageConfigErrorCode = "missing_emulator_host"
	StorageConfigErrorInvalidURL          StorageConfigErrorCode = "invalid_url"
)

type StorageConfigError struct {
	Code  StorageConfigErrorCode
	Value string
	Cause error
}

func (e *StorageConfigError) Error() string {
	switch e.Code {
	case StorageConfigErrorMissingBucket:
		return "artifacts.bucket is required"
	case StorageConfigErrorInvalidMode:
		return fmt.Sprintf("invalid storage mode %q (allowed: %q, %q)", e.Value, StorageModeGCS, StorageModeGCSEmulator)
	case StorageConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("storage mode %q requires an emulator host", StorageModeGCSEmulator)
	case StorageConfigErrorInvalidURL:
		return fmt.Sprintf("invalid URL %q; expected an absolute URL like http://fake-gcs:4443", e.Value)
	default:
		return "invalid storage config"
	}
}

func (e *StorageConfigError) Unwrap() error { return e.Cause }

// Validate normalizes the mode (empty means gcs) and checks the rest.
func (cfg *StorageConfig) Validate() error {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return &StorageConfigError{Code: StorageConfigErrorMissingBucket}
	}
	cfg.Mode = StorageMode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	switch cfg.Mode {
	case "":
		cfg.Mode = StorageModeGCS
	case StorageModeGCS, StorageModeGCSEmulator:
	default:
		return &StorageConfigError{Code: StorageConfigErrorInvalidMode, Value: string(cfg.Mode)}
	}
	if cfg.Mode == StorageModeGCSEmulator {
		if strings.TrimSpace(cfg.EmulatorHost) == "" {
			return &StorageConfigError{Code: StorageConfigErrorMissingEmulatorHost}
		}
		if err := checkAbsoluteURL(cfg.EmulatorHost); err != nil {
			return err
		}
	}
	if strings.TrimSpace(cfg.PublicBaseURL) != "" {
		if err := checkAbsoluteURL(cfg.PublicBaseURL); err != nil {
			return err
		}
	}
	return nil
}

func checkAbsoluteURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &StorageConfigError{Code: StorageConfigErrorInvalidURL, Value: raw, Cause: err}
	}
	return nil
}

// ArtifactBucket mirrors compiled lesson artifacts to a GCS bucket.
type ArtifactBucket struct {
	log    *logger.Logger
	client *storage.Client
	cfg    StorageConfig
}

func NewArtifactBucket(ctx context.Context, baseLog *logger.Logger, cfg StorageConfig) (*ArtifactBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := newStorageClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	log := baseLog.With("service", "ArtifactBucket")
	log.Info("Artifact bucket ready", "bucket", cfg.Bucket, "mode", cfg.Mode, "prefix", cfg.Prefix)
	return &ArtifactBucket{log: log, client: client, cfg: cfg}, nil
}

func newStorageClient(ctx context.Context, cfg StorageConfig) (*storage.Client, error) {
	switch cfg.Mode {
	case StorageModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		opts := ClientOptions(cfg.Credentials)
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	}
}

// Key returns the object key for a name under the configured prefix.
func (b *ArtifactBucket) Key(name string) string {
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	prefix := strings.Trim(strings.TrimSpace(b.cfg.Prefix), "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Put uploads data under name, replacing any existing object.
func (b *ArtifactBucket) Put(ctx context.Context, name string, data []byte, contentType string) error {
	key := b.Key(name)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := b.client.Bucket(b.cfg.Bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	b.log.Debug("Artifact uploaded", "key", key, "bytes", len(data))
	return nil
}

func (b *ArtifactBucket) PublicURL(name string) string {
	return publicURL(b.cfg, b.Key(name))
}

func publicURL(cfg StorageConfig, key string) string {
	base := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if base == "" && cfg.Mode == StorageModeGCSEmulator {
		base = strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	}
	if base != "" {
		return fmt.Sprintf("%s/%s/%s", base, cfg.Bucket, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", cfg.Bucket, key)
}

func (b *ArtifactBucket) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}
