package ratelimit

import "sync"

// OriginUsage accumulates lifetime traffic for a single origin.
type OriginUsage struct {
	Connections int64 `json:"connections"`
	Frames      int64 `json:"frames"`
	Bytes       int64 `json:"bytes"`
}

// UsageTracker records per-origin traffic totals since process start.
// Unlike the limiter's connection map, entries are never removed: the counts
// feed the admin stats endpoint and identify the most demanding origins.
type UsageTracker struct {
	mu     sync.Mutex
	totals map[string]*OriginUsage
}

// NewUsageTracker creates an empty UsageTracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{
		totals: make(map[string]*OriginUsage),
	}
}

// RecordConnection counts one accepted connection for the origin.
func (u *UsageTracker) RecordConnection(origin string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.entry(origin).Connections++
}

// RecordFrame counts one admitted frame of the given size for the origin.
func (u *UsageTracker) RecordFrame(origin string, size int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	e := u.entry(origin)
	e.Frames++
	e.Bytes += int64(size)
}

// entry returns the origin's usage record, creating it if absent.
// Caller holds u.mu.
func (u *UsageTracker) entry(origin string) *OriginUsage {
	e, ok := u.totals[origin]
	if !ok {
		e = &OriginUsage{}
		u.totals[origin] = e
	}
	return e
}

// TopOrigin returns the origin with the most lifetime connections, or ""
// when nothing has been recorded yet.
func (u *UsageTracker) TopOrigin() (origin string, connections int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for o, e := range u.totals {
		if e.Connections > connections {
			connections = e.Connections
			origin = o
		}
	}
	return origin, connections
}

// Snapshot copies the per-origin totals for the admin endpoint.
func (u *UsageTracker) Snapshot() map[string]OriginUsage {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]OriginUsage, len(u.totals))
	for o, e := range u.totals {
		out[o] = *e
	}
	return out
}
