// Package ratelimit implements per-call admission control for WebSocket voice
// traffic: a per-origin connection cap plus lazy-refill token buckets for
// message rate and bandwidth.
package ratelimit

import "time"

// ClientKey identifies a single call session. Origin is the network identity
// (source IP) used for connection capping; Session distinguishes concurrent
// calls from the same origin. A structured key instead of an "ip:session"
// string keeps IPv6 origins unambiguous.
type ClientKey struct {
	Origin  string
	Session string
}

// String renders the key for logs.
func (k ClientKey) String() string {
	return k.Origin + ":" + k.Session
}

// bucket is a token bucket with lazy refill (no background goroutine).
// Refill is continuous: fractional tokens accumulate, so burst absorption
// is smooth rather than stepped.
type bucket struct {
	tokens     float64
	capacity   float64
	rate       float64 // tokens per second
	lastUpdate time.Time
}

func newBucket(capacity, rate float64, now time.Time) *bucket {
	return &bucket{
		tokens:     capacity,
		capacity:   capacity,
		rate:       rate,
		lastUpdate: now,
	}
}

// consume refills from elapsed time, then attempts to take n tokens.
// lastUpdate always advances, even on a failed consume, so unused capacity
// is not lost between checks. 0 <= tokens <= capacity holds afterwards.
func (b *bucket) consume(n float64, now time.Time) bool {
	if elapsed := now.Sub(b.lastUpdate).Seconds(); elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.rate)
	}
	b.lastUpdate = now
	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}
