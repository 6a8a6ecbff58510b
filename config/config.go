// Package config loads the orchestrator's configuration (§6
// "Configuration options"): environment variables via caarlos0/env,
// validated with go-playground/validator, with an optional YAML file
// layered underneath — env always takes precedence over YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds every recognised field from §6's Configuration table.
// Defaults live in defaultConfig(), not in envDefault tags: env.Parse
// only overwrites a field when its environment variable is actually
// set, so a value already populated by YAML (or a baseline default)
// survives untouched when the var is absent — the merge order Load
// relies on.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL" yaml:"database_url" validate:"required"`

	MaxAsyncConcurrent int `env:"MAX_ASYNC_CONCURRENT" yaml:"max_async_concurrent" validate:"min=1"`
	ThreadPoolSize     int `env:"THREAD_POOL_SIZE" yaml:"thread_pool_size" validate:"min=1"`
	// ProcessPoolSize absent (0) means "use CPU count", resolved by
	// the orchestratord entrypoint, not defaulted here.
	ProcessPoolSize int `env:"PROCESS_POOL_SIZE" yaml:"process_pool_size" validate:"min=0"`

	SchedulerTickSeconds int `env:"SCHEDULER_TICK_SECONDS" yaml:"scheduler_tick_seconds" validate:"min=1"`

	DefaultMaxRetries int     `env:"DEFAULT_MAX_RETRIES" yaml:"default_max_retries" validate:"min=0"`
	RetryBackoffBase  float64 `env:"RETRY_BACKOFF_BASE" yaml:"retry_backoff_base" validate:"gt=1"`
	RetryBackoffMax   int     `env:"RETRY_BACKOFF_MAX" yaml:"retry_backoff_max" validate:"min=1"`
	DefaultTimeout    int     `env:"DEFAULT_TIMEOUT" yaml:"default_timeout" validate:"min=0"`

	MetricsEnabled bool   `env:"METRICS_ENABLED" yaml:"metrics_enabled"`
	MetricsPort    int    `env:"METRICS_PORT" yaml:"metrics_port" validate:"min=1,max=65535"`
	MetricsHost    string `env:"METRICS_HOST" yaml:"metrics_host"`

	LogLevel  string `env:"LOG_LEVEL" yaml:"log_level" validate:"oneof=DEBUG INFO WARNING ERROR CRITICAL"`
	LogFormat string `env:"LOG_FORMAT" yaml:"log_format" validate:"oneof=json text"`

	RetentionDays   int    `env:"RETENTION_DAYS" yaml:"retention_days" validate:"min=0"`
	CleanupEnabled  bool   `env:"CLEANUP_ENABLED" yaml:"cleanup_enabled"`
	CleanupSchedule string `env:"CLEANUP_SCHEDULE" yaml:"cleanup_schedule"`
}

func defaultConfig() *Config {
	return &Config{
		DatabaseURL:          "orchestrator.db",
		MaxAsyncConcurrent:   10,
		ThreadPoolSize:       5,
		SchedulerTickSeconds: 1,
		DefaultMaxRetries:    0,
		RetryBackoffBase:     2.0,
		RetryBackoffMax:      300,
		DefaultTimeout:       0,
		MetricsEnabled:       true,
		MetricsPort:          9090,
		MetricsHost:          "0.0.0.0",
		LogLevel:             "INFO",
		LogFormat:            "text",
		RetentionDays:        30,
		CleanupEnabled:       false,
		CleanupSchedule:      "daily",
	}
}

// Load builds a Config: baseline defaults, then an optional YAML file
// (yamlPath == "" skips it), then environment variables, in that
// order of increasing precedence (§6: "loaded from YAML and/or
// environment with env taking precedence").
func Load(yamlPath string) (*Config, error) {
	cfg := defaultConfig()

	if yamlPath != "" {
		if err := loadYAML(yamlPath, cfg); err != nil {
			return nil, fmt.Errorf("load yaml config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// SlogLevel converts LogLevel to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
