// Package config provides configuration loading and management for the
// rotativa pipeline service.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pipeline configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Datastore DatastoreConfig `yaml:"datastore"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Events    EventsConfig    `yaml:"events"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// ServerConfig configures the HTTP surface and dispatch policy.
type ServerConfig struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port"`
	// SyncMaxBytesArticle is the largest article body processed inline.
	SyncMaxBytesArticle int `yaml:"sync_max_bytes_article"`
	// SyncMaxBytesFragment is the largest fragment body processed inline.
	SyncMaxBytesFragment int `yaml:"sync_max_bytes_fragment"`
	// SyncDeadline is the hard deadline for inline requests.
	SyncDeadline time.Duration `yaml:"sync_deadline"`
	// WorkerCount bounds concurrent background controllers (0 = min(32, 4×CPUs)).
	WorkerCount int `yaml:"worker_count"`
	// MinContentLength is the minimum accepted article/fragment text length.
	MinContentLength int `yaml:"min_content_length"`
	// ShutdownTimeout is the in-flight request drain budget on shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LLMConfig configures the LLM adapter.
type LLMConfig struct {
	// Provider selects the wire format ("openai" or "anthropic").
	Provider string `yaml:"provider"`
	// Endpoint is the provider base URL.
	Endpoint string `yaml:"endpoint"`
	// APIKey authenticates against the provider. Usually set via LLM_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the model identifier sent to the provider.
	Model string `yaml:"model"`
	// Timeout is the per-call timeout.
	Timeout time.Duration `yaml:"timeout"`
	// MaxRetries is the retry count after the first attempt.
	MaxRetries int `yaml:"max_retries"`
	// BackoffBase is the initial retry backoff.
	BackoffBase time.Duration `yaml:"backoff_base"`
	// MaxBackoff caps the retry backoff.
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// BreakerFailures opens the circuit after this many consecutive failures.
	BreakerFailures int `yaml:"breaker_failures"`
	// BreakerOpenFor is how long the circuit stays open before a probe.
	BreakerOpenFor time.Duration `yaml:"breaker_open_for"`
}

// DatastoreConfig configures the datastore RPC adapter.
type DatastoreConfig struct {
	// URL is the datastore RPC base URL.
	URL string `yaml:"url"`
	// Key authenticates against the datastore. Usually set via DATASTORE_KEY.
	Key string `yaml:"key"`
	// Timeout is the per-RPC timeout.
	Timeout time.Duration `yaml:"timeout"`
	// PoolSize bounds concurrent datastore connections.
	PoolSize int `yaml:"pool_size"`
	// PoolAcquireWait is the budget for acquiring a pool permit.
	PoolAcquireWait time.Duration `yaml:"pool_acquire_wait"`
	// SimilarityThreshold is the minimum match score for entity normalization.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// BreakerFailures opens the circuit after this many consecutive failures.
	BreakerFailures int `yaml:"breaker_failures"`
	// BreakerOpenFor is how long the circuit stays open before a probe.
	BreakerOpenFor time.Duration `yaml:"breaker_open_for"`
}

// JobsConfig configures the async job tracker.
type JobsConfig struct {
	// Retention is how long finished jobs remain queryable.
	Retention time.Duration `yaml:"retention"`
	// SweepInterval is how often expired jobs are evicted.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// AlertsConfig configures the in-process alert manager.
type AlertsConfig struct {
	// EvaluationInterval is how often alert rules are evaluated.
	EvaluationInterval time.Duration `yaml:"evaluation_interval"`
}

// EventsConfig configures the optional NATS event feed for the review backend.
type EventsConfig struct {
	// NATSURL is the NATS server URL (empty = events disabled).
	NATSURL string `yaml:"nats_url"`
	// Subject is the subject processed-fragment events are published to.
	Subject string `yaml:"subject"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                 8000,
			SyncMaxBytesArticle:  10240,
			SyncMaxBytesFragment: 5120,
			SyncDeadline:         60 * time.Second,
			WorkerCount:          0, // resolved to min(32, 4×CPUs)
			MinContentLength:     50,
			ShutdownTimeout:      30 * time.Second,
		},
		LLM: LLMConfig{
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			Timeout:         30 * time.Second,
			MaxRetries:      2,
			BackoffBase:     time.Second,
			MaxBackoff:      60 * time.Second,
			BreakerFailures: 5,
			BreakerOpenFor:  30 * time.Second,
		},
		Datastore: DatastoreConfig{
			Timeout:             10 * time.Second,
			PoolSize:            10,
			PoolAcquireWait:     200 * time.Millisecond,
			SimilarityThreshold: 0.85,
			BreakerFailures:     5,
			BreakerOpenFor:      30 * time.Second,
		},
		Jobs: JobsConfig{
			Retention:     24 * time.Hour,
			SweepInterval: time.Minute,
		},
		Alerts: AlertsConfig{
			EvaluationInterval: 30 * time.Second,
		},
		Events: EventsConfig{
			Subject: "rotativa.fragmentos.procesados",
		},
		LogLevel: "info",
	}
}

// EffectiveWorkerCount resolves WorkerCount=0 to min(32, 4×CPUs).
func (c *ServerConfig) EffectiveWorkerCount() int {
	if c.WorkerCount > 0 {
		return c.WorkerCount
	}
	n := 4 * runtime.NumCPU()
	if n > 32 {
		n = 32
	}
	return n
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if c.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint is required (LLM_ENDPOINT)")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (LLM_API_KEY)")
	}
	if c.Datastore.URL == "" {
		return fmt.Errorf("datastore.url is required (DATASTORE_URL)")
	}
	if c.Datastore.Key == "" {
		return fmt.Errorf("datastore.key is required (DATASTORE_KEY)")
	}
	if c.LLM.Provider != "openai" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}
	if c.Server.SyncMaxBytesArticle <= 0 || c.Server.SyncMaxBytesFragment <= 0 {
		return fmt.Errorf("sync size thresholds must be positive")
	}
	if c.Datastore.SimilarityThreshold < 0 || c.Datastore.SimilarityThreshold > 1 {
		return fmt.Errorf("datastore.similarity_threshold must be between 0 and 1")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return config, nil
}

// Load builds the effective configuration with layered precedence:
// defaults, then the optional YAML file, then environment variables.
func Load(path string) (*Config, error) {
	var cfg *Config
	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = DefaultConfig()
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overlays environment variables onto the config. Environment wins
// over file values.
func (c *Config) ApplyEnv() {
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.Endpoint, "LLM_ENDPOINT")
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setSeconds(&c.LLM.Timeout, "LLM_TIMEOUT_SECONDS")
	setInt(&c.LLM.MaxRetries, "LLM_MAX_RETRIES")

	setString(&c.Datastore.URL, "DATASTORE_URL")
	setString(&c.Datastore.Key, "DATASTORE_KEY")
	setSeconds(&c.Datastore.Timeout, "DATASTORE_TIMEOUT_SECONDS")
	setInt(&c.Datastore.PoolSize, "DATASTORE_POOL_SIZE")

	setInt(&c.Server.SyncMaxBytesArticle, "SYNC_MAX_BYTES_ARTICLE")
	setInt(&c.Server.SyncMaxBytesFragment, "SYNC_MAX_BYTES_FRAGMENT")
	setInt(&c.Server.WorkerCount, "WORKER_COUNT")
	setInt(&c.Server.Port, "PORT")

	setSeconds(&c.Jobs.Retention, "JOB_RETENTION_SECONDS")

	setString(&c.Events.NATSURL, "NATS_URL")

	setString(&c.LogLevel, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// setSeconds reads an integer number of seconds.
func setSeconds(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = time.Duration(n) * time.Second
		}
	}
}
