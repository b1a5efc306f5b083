// Package config loads lessonforge configuration from an optional YAML file
// and LESSONFORGE_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/lessonforge/internal/data/db"
	"github.com/yungbote/lessonforge/internal/generation/staticcheck"
	"github.com/yungbote/lessonforge/internal/observability"
	"github.com/yungbote/lessonforge/internal/platform/gcp"
	"github.com/yungbote/lessonforge/internal/realtime/bus"
	"github.com/yungbote/lessonforge/internal/temporalx"
)

type Config struct {
	Log       LogConfig        `koanf:"log"`
	Server    ServerConfig     `koanf:"server"`
	Postgres  PostgresConfig   `koanf:"postgres"`
	Provider  ProviderConfig   `koanf:"provider"`
	Pipeline  PipelineConfig   `koanf:"pipeline"`
	TypeCheck TypeCheckConfig  `koanf:"typecheck"`
	Temporal  temporalx.Config `koanf:"temporal"`
	Redis     RedisConfig      `koanf:"redis"`
	Artifacts ArtifactsConfig  `koanf:"artifacts"`
	Otel      OtelConfig       `koanf:"otel"`
}

type LogConfig struct {
	Mode string `koanf:"mode"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"ssl_mode"`
}

func (c PostgresConfig) DB() db.PostgresConfig {
	return db.PostgresConfig{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		Name:     c.Name,
		SSLMode:  c.SSLMode,
	}
}

// Provider backends.
const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

// ProviderConfig selects the LLM backend. API keys are read by the backend
// clients from their own environment variables.
type ProviderConfig struct {
	Backend           string  `koanf:"backend"`
	Model             string  `koanf:"model"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// Runner modes for outline runs.
const (
	RunnerAuto     = "auto"
	RunnerLocal    = "local"
	RunnerTemporal = "temporal"
)

type PipelineConfig struct {
	PolicyPath    string        `koanf:"policy_path"`
	Runner        string        `koanf:"runner"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	SweepBatch    int           `koanf:"sweep_batch"`
	SweepMinAge   time.Duration `koanf:"sweep_min_age"`
}

// TypeCheckConfig enables the tsc pass of the static validator. Without it
// validation covers syntax and imports only.
type TypeCheckConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Command     string        `koanf:"command"`
	ProjectDir  string        `koanf:"project_dir"`
	Timeout     time.Duration `koanf:"timeout"`
	IgnoreCodes []string      `koanf:"ignore_codes"`
}

func (c TypeCheckConfig) TSC() staticcheck.TSCConfig {
	return staticcheck.TSCConfig{
		Command:     strings.Fields(c.Command),
		ProjectDir:  c.ProjectDir,
		Timeout:     c.Timeout,
		IgnoreCodes: c.IgnoreCodes,
	}
}

// UseTemporal reports whether outline runs go through Temporal.
func (c Config) UseTemporal() bool {
	switch c.Pipeline.Runner {
	case RunnerTemporal:
		return true
	case RunnerLocal:
		return false
	default:
		return c.Temporal.Enabled()
	}
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Channel  string `koanf:"channel"`
}

func (c RedisConfig) Enabled() bool { return strings.TrimSpace(c.Addr) != "" }

func (c RedisConfig) Bus() bus.RedisConfig {
	return bus.RedisConfig{Addr: c.Addr, Password: c.Password, DB: c.DB, Channel: c.Channel}
}

type ArtifactsConfig struct {
	Bucket        string `koanf:"bucket"`
	Prefix        string `koanf:"prefix"`
	Mode          string `koanf:"mode"`
	EmulatorHost  string `koanf:"emulator_host"`
	PublicBaseURL string `koanf:"public_base_url"`
	Credentials   string `koanf:"credentials"`
}

func (c ArtifactsConfig) Enabled() bool { return strings.TrimSpace(c.Bucket) != "" }

func (c ArtifactsConfig) Storage() gcp.StorageConfig {
	return gcp.StorageConfig{
		Bucket:        c.Bucket,
		Prefix:        c.Prefix,
		Mode:          gcp.StorageMode(c.Mode),
		EmulatorHost:  c.EmulatorHost,
		PublicBaseURL: c.PublicBaseURL,
		Credentials:   c.Credentials,
	}
}

type OtelConfig struct {
	Enabled     bool              `koanf:"enabled"`
	ServiceName string            `koanf:"service_name"`
	Environment string            `koanf:"environment"`
	Endpoint    string            `koanf:"endpoint"`
	Insecure    bool              `koanf:"insecure"`
	Headers     map[string]string `koanf:"headers"`
	SampleRatio float64           `koanf:"sample_ratio"`
}

func (c OtelConfig) Observability(version string) observability.OtelConfig {
	return observability.OtelConfig{
		Enabled:     c.Enabled,
		ServiceName: c.ServiceName,
		Environment: c.Environment,
		Version:     version,
		Endpoint:    c.Endpoint,
		Insecure:    c.Insecure,
		Headers:     c.Headers,
		SampleRatio: c.SampleRatio,
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Mode == "" {
		cfg.Log.Mode = "development"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.Name == "" {
		cfg.Postgres.Name = "lessonforge"
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Provider.Backend == "" {
		cfg.Provider.Backend = BackendOpenAI
	}
	if cfg.Provider.RequestsPerSecond == 0 {
		cfg.Provider.RequestsPerSecond = 2
	}
	if cfg.Provider.Burst == 0 {
		cfg.Provider.Burst = 4
	}
	if cfg.Pipeline.Runner == "" {
		cfg.Pipeline.Runner = RunnerAuto
	}
	if cfg.Pipeline.SweepInterval == 0 {
		cfg.Pipeline.SweepInterval = 30 * time.Second
	}
	if cfg.Pipeline.SweepBatch == 0 {
		cfg.Pipeline.SweepBatch = 50
	}
	if cfg.Pipeline.SweepMinAge == 0 {
		cfg.Pipeline.SweepMinAge = 2 * time.Minute
	}
	if cfg.TypeCheck.Command == "" {
		cfg.TypeCheck.Command = "tsc"
	}
	if cfg.TypeCheck.Timeout == 0 {
		cfg.TypeCheck.Timeout = 30 * time.Second
	}

	def := temporalx.DefaultConfig()
	if cfg.Temporal.Namespace == "" {
		cfg.Temporal.Namespace = def.Namespace
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = def.TaskQueue
	}
	if cfg.Temporal.RetentionDays == 0 {
		cfg.Temporal.RetentionDays = def.RetentionDays
	}
	if cfg.Temporal.DialTimeout == 0 {
		cfg.Temporal.DialTimeout = def.DialTimeout
	}
	if cfg.Temporal.DialMaxWait == 0 {
		cfg.Temporal.DialMaxWait = def.DialMaxWait
	}
	if cfg.Temporal.WorkerConcurrency == 0 {
		cfg.Temporal.WorkerConcurrency = def.WorkerConcurrency
	}

	if cfg.Artifacts.Mode == "" {
		cfg.Artifacts.Mode = string(gcp.StorageModeGCS)
	}
	if cfg.Otel.ServiceName == "" {
		cfg.Otel.ServiceName = "lessonforge"
	}
	if cfg.Otel.SampleRatio == 0 {
		cfg.Otel.SampleRatio = 1
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
		return fmt.Errorf("postgres.port %d out of range", c.Postgres.Port)
	}
	switch c.Provider.Backend {
	case BackendOpenAI, BackendGemini:
	default:
		return fmt.Errorf("provider.backend must be %q or %q, got %q", BackendOpenAI, BackendGemini, c.Provider.Backend)
	}
	if c.Provider.RequestsPerSecond < 0 || c.Provider.Burst < 0 {
		return fmt.Errorf("provider rate limits must not be negative")
	}
	switch c.Pipeline.Runner {
	case RunnerAuto, RunnerLocal:
	case RunnerTemporal:
		if !c.Temporal.Enabled() {
			return fmt.Errorf("pipeline.runner=temporal requires temporal.address")
		}
	default:
		return fmt.Errorf("pipeline.runner must be auto, local or temporal, got %q", c.Pipeline.Runner)
	}
	if c.TypeCheck.Enabled && c.TypeCheck.Timeout < 0 {
		return fmt.Errorf("typecheck.timeout must not be negative")
	}
	if c.Pipeline.SweepBatch < 0 {
		return fmt.Errorf("pipeline.sweep_batch must not be negative")
	}
	if c.Otel.SampleRatio < 0 || c.Otel.SampleRatio > 1 {
		return fmt.Errorf("otel.sample_ratio must be within [0,1]")
	}
	if c.Artifacts.Enabled() {
		storage := c.Artifacts.Storage()
		if err := storage.Validate(); err != nil {
			return err
		}
	}
	return nil
}
