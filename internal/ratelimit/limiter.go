package ratelimit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config holds the limiter knobs, fixed for the process lifetime.
type Config struct {
	MaxConnsPerOrigin    int           // concurrent connections per origin
	MaxMessagesPerSecond float64       // sustained inbound frame rate
	MaxBytesPerSecond    int           // sustained inbound bandwidth
	BucketCapacity       int           // message bucket burst size
	CleanupInterval      time.Duration // minimum time between sweeps
	IdleBucketTimeout    time.Duration // bucket age before eviction
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConnsPerOrigin:    5,
		MaxMessagesPerSecond: 10.0,
		MaxBytesPerSecond:    200_000,
		BucketCapacity:       20,
		CleanupInterval:      5 * time.Minute,
		IdleBucketTimeout:    10 * time.Minute,
	}
}

// Stats is a read-only snapshot of limiter state.
type Stats struct {
	ActiveConnections int `json:"active_connections"`
	UniqueOrigins     int `json:"unique_origins"`
	MessageBuckets    int `json:"message_buckets"`
	BandwidthBuckets  int `json:"bandwidth_buckets"`
}

// Limiter is the shared admission authority for all call sessions: it caps
// concurrent connections per origin and throttles message rate and bandwidth
// per session. Every operation is a bounded in-memory computation; the single
// mutex is never held across anything that blocks.
type Limiter struct {
	cfg Config

	mu          sync.Mutex
	conns       map[string]int            // origin -> active connection count
	messages    map[ClientKey]*bucket     // frame-rate buckets
	bandwidth   map[ClientKey]*bucket     // byte-rate buckets
	lastCleanup time.Time
}

// NewLimiter creates a Limiter with the given configuration.
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		cfg:         cfg,
		conns:       make(map[string]int),
		messages:    make(map[ClientKey]*bucket),
		bandwidth:   make(map[ClientKey]*bucket),
		lastCleanup: time.Now(),
	}
}

// CheckConnectionLimit admits or rejects a new connection for the key's
// origin. On success the origin's count is incremented and the caller owns
// exactly one matching ReleaseConnection on every exit path.
func (l *Limiter) CheckConnectionLimit(key ClientKey) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conns[key.Origin] >= l.cfg.MaxConnsPerOrigin {
		slog.Warn("connection limit exceeded", "origin", key.Origin)
		return false, fmt.Sprintf("Too many connections from %s", key.Origin)
	}
	l.conns[key.Origin]++
	return true, ""
}

// ReleaseConnection returns the origin's connection slot. Releasing an
// untracked origin is a no-op; the count never goes negative, and the entry
// is removed at zero so transient origins do not grow the map. The key's
// rate buckets are left in place: a quickly-reconnecting abusive client
// does not get a fresh allowance.
func (l *Limiter) ReleaseConnection(key ClientKey) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conns[key.Origin] > 0 {
		l.conns[key.Origin]--
		if l.conns[key.Origin] == 0 {
			delete(l.conns, key.Origin)
		}
	}
}

// CheckMessageRate consumes one frame token for the key, lazily creating the
// bucket at full capacity on first use.
func (l *Limiter) CheckMessageRate(key ClientKey) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.messages[key]
	if !ok {
		b = newBucket(float64(l.cfg.BucketCapacity), l.cfg.MaxMessagesPerSecond, now)
		l.messages[key] = b
	}
	if b.consume(1, now) {
		return true, ""
	}
	slog.Warn("message rate limit exceeded", "client", key.String())
	return false, "Message rate limit exceeded. Please slow down."
}

// CheckBandwidth consumes dataSize byte tokens for the key. The bucket holds
// a two-second burst allowance on top of the sustained rate.
func (l *Limiter) CheckBandwidth(key ClientKey, dataSize int) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.bandwidth[key]
	if !ok {
		b = newBucket(float64(l.cfg.MaxBytesPerSecond)*2, float64(l.cfg.MaxBytesPerSecond), now)
		l.bandwidth[key] = b
	}
	if b.consume(float64(dataSize), now) {
		return true, ""
	}
	slog.Warn("bandwidth limit exceeded", "client", key.String(), "bytes", dataSize)
	return false, fmt.Sprintf("Bandwidth limit exceeded (%d bytes)", dataSize)
}

// CleanupOldBuckets evicts rate buckets idle for longer than
// IdleBucketTimeout. It early-exits unless CleanupInterval has elapsed since
// the last sweep, so callers may invoke it unconditionally (the call loop
// does, once per inbound frame). lastCleanup advances whether or not
// anything was removed.
func (l *Limiter) CleanupOldBuckets() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastCleanup) < l.cfg.CleanupInterval {
		return
	}
	l.lastCleanup = now

	evictedMsg := l.evictIdle(l.messages, now)
	evictedBw := l.evictIdle(l.bandwidth, now)

	if evictedMsg > 0 || evictedBw > 0 {
		slog.Info("cleaned up idle rate buckets",
			"message_buckets", evictedMsg,
			"bandwidth_buckets", evictedBw,
		)
	}
}

// evictIdle removes buckets older than the idle timeout. Caller holds l.mu.
func (l *Limiter) evictIdle(buckets map[ClientKey]*bucket, now time.Time) int {
	evicted := 0
	for key, b := range buckets {
		if now.Sub(b.lastUpdate) > l.cfg.IdleBucketTimeout {
			delete(buckets, key)
			evicted++
		}
	}
	return evicted
}

// Stats returns a consistent snapshot of limiter state for observability.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	active := 0
	for _, n := range l.conns {
		active += n
	}
	return Stats{
		ActiveConnections: active,
		UniqueOrigins:     len(l.conns),
		MessageBuckets:    len(l.messages),
		BandwidthBuckets:  len(l.bandwidth),
	}
}
