package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/voxgate/voxgate/internal/telemetry"
)

// entry wraps a cached audio payload with its expiration time.
type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-memory W-TinyLFU cache for synthesized audio, backed by
// otter. Every lookup is counted as a hit or a miss on the gateway metrics
// when metrics are configured.
type Memory struct {
	cache   *otter.Cache[string, entry]
	metrics *telemetry.Metrics
}

// NewMemory creates an in-memory cache with the given max entry count and
// default TTL. metrics may be nil.
func NewMemory(maxSize int, defaultTTL time.Duration, metrics *telemetry.Metrics) (*Memory, error) {
	c, err := otter.New[string, entry](&otter.Options[string, entry]{
		MaximumSize:      maxSize,
		ExpiryCalculator: otter.ExpiryWriting[string, entry](defaultTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Memory{cache: c, metrics: metrics}, nil
}

// Get retrieves a payload from the cache if present and not expired.
// An entry past its per-entry TTL is dropped and counted as a miss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := m.cache.GetIfPresent(key)
	if ok && time.Now().After(e.expiresAt) {
		m.cache.Invalidate(key)
		ok = false
	}
	if !ok {
		if m.metrics != nil {
			m.metrics.CacheMisses.Inc()
		}
		return nil, false
	}
	if m.metrics != nil {
		m.metrics.CacheHits.Inc()
	}
	return e.data, true
}

// Set stores a payload with a per-entry TTL. Empty payloads are not cached:
// a synthesis that produced no audio should be retried, not replayed.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	if len(val) == 0 {
		return
	}
	m.cache.Set(key, entry{
		data:      val,
		expiresAt: time.Now().Add(ttl),
	})
}

// Delete removes a payload from the cache.
func (m *Memory) Delete(_ context.Context, key string) {
	m.cache.Invalidate(key)
}

// Purge removes all payloads from the cache.
func (m *Memory) Purge(_ context.Context) {
	m.cache.InvalidateAll()
}
