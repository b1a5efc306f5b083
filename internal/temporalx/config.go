package temporalx

import (
	"strings"
	"time"
)

// Config describes the Temporal connection. An empty Address disables
// Temporal and outline runs are supervised in-process instead.
type Config struct {
	Address   string `koanf:"address"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`

	ClientCertPath string `koanf:"client_cert_path"`
	ClientKeyPath  string `koanf:"client_key_path"`
	ClientCAPath   string `koanf:"client_ca_path"`

	AutoRegisterNamespace bool          `koanf:"auto_register_namespace"`
	RetentionDays         int           `koanf:"retention_days"`
	DialTimeout           time.Duration `koanf:"dial_timeout"`
	DialMaxWait           time.Duration `koanf:"dial_max_wait"`
	WorkerConcurrency     int           `koanf:"worker_concurrency"`
}

func DefaultConfig() Config {
	return Config{
		Namespace:         "lessonforge",
		TaskQueue:         "lessonforge",
		RetentionDays:     7,
		DialTimeout:       5 * time.Second,
		DialMaxWait:       60 * time.Second,
		WorkerConcurrency: 4,
	}
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Address) != "" }

func (c Config) mTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
