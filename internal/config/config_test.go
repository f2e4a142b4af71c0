package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  addr: ":9090"
  read_timeout: 10s
rate_limits:
  max_connections_per_origin: 3
  max_messages_per_second: 25
  max_bytes_per_second: 500000
calls:
  max_frame_bytes: 65536
  queue_depth: 4
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("read timeout = %v, want 10s", cfg.Server.ReadTimeout)
	}
	if cfg.RateLimits.MaxConnsPerOrigin != 3 {
		t.Errorf("max conns per origin = %d, want 3", cfg.RateLimits.MaxConnsPerOrigin)
	}
	if cfg.RateLimits.MaxMessagesPerSecond != 25 {
		t.Errorf("max messages per second = %v, want 25", cfg.RateLimits.MaxMessagesPerSecond)
	}
	if cfg.Calls.MaxFrameBytes != 65536 {
		t.Errorf("max frame bytes = %d, want 65536", cfg.Calls.MaxFrameBytes)
	}
	if cfg.Calls.QueueDepth != 4 {
		t.Errorf("queue depth = %d, want 4", cfg.Calls.QueueDepth)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("default addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.RateLimits.MaxConnsPerOrigin != 5 {
		t.Errorf("default max conns = %d, want 5", cfg.RateLimits.MaxConnsPerOrigin)
	}
	if cfg.RateLimits.BucketCapacity != 20 {
		t.Errorf("default bucket capacity = %d, want 20", cfg.RateLimits.BucketCapacity)
	}
	if cfg.RateLimits.CleanupInterval != 5*time.Minute {
		t.Errorf("default cleanup interval = %v, want 5m", cfg.RateLimits.CleanupInterval)
	}
	if cfg.RateLimits.IdleBucketTimeout != 10*time.Minute {
		t.Errorf("default idle timeout = %v, want 10m", cfg.RateLimits.IdleBucketTimeout)
	}
	if cfg.Calls.MaxFrameBytes != 1_000_000 {
		t.Errorf("default frame ceiling = %d, want 1000000", cfg.Calls.MaxFrameBytes)
	}
	if !cfg.Cache.Enabled {
		t.Error("cache should default to enabled")
	}
}

func TestExpandEnv(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv
	t.Setenv("TEST_OTLP_ENDPOINT", "collector:4317")

	yaml := `
telemetry:
  tracing:
    enabled: true
    endpoint: ${TEST_OTLP_ENDPOINT}
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telemetry.Tracing.Endpoint != "collector:4317" {
		t.Errorf("endpoint = %q, want expanded env value", cfg.Telemetry.Tracing.Endpoint)
	}

	// Unset variables are left untouched.
	result := expandEnv([]byte("key: ${TEST_UNSET_VAR_42}"))
	if string(result) != "key: ${TEST_UNSET_VAR_42}" {
		t.Errorf("expandEnv = %q, want pattern preserved", string(result))
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
