// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/contact-harvester/internal/collector"
	"github.com/JakeFAU/contact-harvester/internal/retry"
)

// Backend names accepted by cache.backend and storage.backend.
const (
	CacheMemory = "memory"
	CacheBadger = "badger"
	CacheNone   = "none"

	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// EnvPrefix namespaces environment overrides, e.g. HARVEST_SERVER_PORT.
const EnvPrefix = "HARVEST"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Progress   ProgressConfig   `mapstructure:"progress"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	// Collectors declares the platforms; empty selects the built-in catalog.
	Collectors []collector.Spec `mapstructure:"collectors"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                int `mapstructure:"port"`
	RequestTimeoutSec   int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSecs int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ExtractionConfig governs the coordinator and collector retries.
type ExtractionConfig struct {
	Concurrency   int `mapstructure:"concurrency"`
	QueueDepth    int `mapstructure:"queue_depth"`
	MaxAttempts   int `mapstructure:"max_attempts"`
	BackoffBaseMs int `mapstructure:"backoff_base_ms"`
	BackoffMaxMs  int `mapstructure:"backoff_max_ms"`
	JitterMs      int `mapstructure:"jitter_ms"`
}

// CacheConfig selects the result cache backend.
type CacheConfig struct {
	Backend    string `mapstructure:"backend"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	BadgerPath string `mapstructure:"badger_path"`
}

// RateLimitConfig throttles collector attempts per platform.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// ProgressConfig sizes the progress hub.
type ProgressConfig struct {
	BufferSize    int                 `mapstructure:"buffer_size"`
	Batch         ProgressBatchConfig `mapstructure:"batch"`
	SinkTimeoutMs int                 `mapstructure:"sink_timeout_ms"`
	LogEnabled    bool                `mapstructure:"log_enabled"`
}

// ProgressBatchConfig bounds hub batches.
type ProgressBatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// DatabaseConfig controls access to Postgres. An empty DSN selects the
// in-memory repository.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// StorageConfig selects where session archives are written.
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	Bucket  string             `mapstructure:"bucket"`
	Prefix  string             `mapstructure:"prefix"`
	Local   LocalStorageConfig `mapstructure:"local"`
}

// LocalStorageConfig configures the filesystem archive backend.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// PubSubConfig holds metadata for session notifications. Publishing is
// disabled unless both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether notifications should be published.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.TopicName != ""
}

// Load builds a Config from disk/environment. With an empty path the usual
// locations are searched and a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("harvester")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/harvester/")
		v.AddConfigPath("$HOME/.harvester")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Collectors) == 0 {
		cfg.Collectors = collector.DefaultSpecs()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("extraction.concurrency", 5)
	v.SetDefault("extraction.queue_depth", 16)
	v.SetDefault("extraction.max_attempts", 3)
	v.SetDefault("extraction.backoff_base_ms", 1000)
	v.SetDefault("extraction.backoff_max_ms", 30000)
	v.SetDefault("extraction.jitter_ms", 1000)
	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("cache.badger_path", "data/cache")
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.rps", 1.0)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch.max_events", 100)
	v.SetDefault("progress.batch.max_wait_ms", 250)
	v.SetDefault("progress.sink_timeout_ms", 5000)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.prefix", "sessions")
	v.SetDefault("storage.local.base_dir", "data/archive")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Extraction.Concurrency <= 0 {
		return fmt.Errorf("extraction.concurrency must be > 0")
	}
	if c.Extraction.QueueDepth < 0 {
		return fmt.Errorf("extraction.queue_depth must be >= 0")
	}
	if c.Extraction.MaxAttempts <= 0 {
		return fmt.Errorf("extraction.max_attempts must be > 0")
	}
	if c.Extraction.BackoffBaseMs < 0 || c.Extraction.JitterMs < 0 {
		return fmt.Errorf("extraction.backoff_base_ms and extraction.jitter_ms must be >= 0")
	}
	if c.Extraction.BackoffMaxMs < c.Extraction.BackoffBaseMs {
		return fmt.Errorf("extraction.backoff_max_ms must be >= extraction.backoff_base_ms")
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheNone:
	case CacheBadger:
		if c.Cache.BadgerPath == "" {
			return fmt.Errorf("cache.badger_path must be set for the badger backend")
		}
	default:
		return fmt.Errorf("cache.backend %q is not supported", c.Cache.Backend)
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("cache.ttl_seconds must be >= 0")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("ratelimit.rps and ratelimit.burst must be > 0 when rate limiting is enabled")
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	seen := make(map[string]struct{}, len(c.Collectors))
	for _, spec := range c.Collectors {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("collectors: %w", err)
		}
		if _, dup := seen[spec.ID]; dup {
			return fmt.Errorf("collectors: duplicate id %q", spec.ID)
		}
		seen[spec.ID] = struct{}{}
	}
	return nil
}

// RetryPolicy converts the extraction backoff settings.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Extraction.MaxAttempts,
		BaseDelay:   time.Duration(c.Extraction.BackoffBaseMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.Extraction.BackoffMaxMs) * time.Millisecond,
		MaxJitter:   time.Duration(c.Extraction.JitterMs) * time.Millisecond,
	}
}

// CacheTTL returns the configured cache expiry.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// RequestTimeout bounds non-streaming API handlers.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSecs) * time.Second
}
