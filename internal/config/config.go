// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	RateLimits RateLimitConfig `yaml:"rate_limits"`
	Calls      CallConfig      `yaml:"calls"`
	Cache      CacheConfig     `yaml:"cache"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RateLimitConfig holds the admission-control knobs for voice calls.
type RateLimitConfig struct {
	MaxConnsPerOrigin    int           `yaml:"max_connections_per_origin"`
	MaxMessagesPerSecond float64       `yaml:"max_messages_per_second"`
	MaxBytesPerSecond    int           `yaml:"max_bytes_per_second"`
	BucketCapacity       int           `yaml:"bucket_capacity"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval"`
	IdleBucketTimeout    time.Duration `yaml:"idle_bucket_timeout"`
}

// CallConfig holds per-session frame policy settings.
type CallConfig struct {
	MaxFrameBytes int `yaml:"max_frame_bytes"` // absolute single-frame ceiling
	QueueDepth    int `yaml:"queue_depth"`     // bounded downstream frame queue
}

// CacheConfig holds synthesized-audio cache settings.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxSize    int           `yaml:"max_size"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		RateLimits: RateLimitConfig{
			MaxConnsPerOrigin:    5,
			MaxMessagesPerSecond: 10.0,
			MaxBytesPerSecond:    200_000,
			BucketCapacity:       20,
			CleanupInterval:      5 * time.Minute,
			IdleBucketTimeout:    10 * time.Minute,
		},
		Calls: CallConfig{
			MaxFrameBytes: 1_000_000,
			QueueDepth:    16,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxSize:    1_000,
			DefaultTTL: 5 * time.Minute,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
