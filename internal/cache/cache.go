// Package cache provides caching for synthesized speech audio.
package cache

import (
	"context"
	"time"

	voice "github.com/voxgate/voxgate/internal"
)

// Cache is the interface for audio payload caching.
type Cache interface {
	// Get retrieves a cached payload by key.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores a payload with the given TTL.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	// Delete removes a cached payload.
	Delete(ctx context.Context, key string)
	// Purge removes all cached payloads.
	Purge(ctx context.Context)
}

// synthesizer serves repeated lines from the cache, keyed by the input text.
type synthesizer struct {
	next  voice.Synthesizer
	cache Cache
	ttl   time.Duration
}

// NewSynthesizer wraps next with a cache keyed by the input text. Repeated
// lines (the greeting above all) skip the vendor TTS round-trip entirely.
// A nil next yields nil, so an unregistered stage stays unregistered; a nil
// cache delegates directly.
func NewSynthesizer(next voice.Synthesizer, c Cache, ttl time.Duration) voice.Synthesizer {
	if next == nil {
		return nil
	}
	return &synthesizer{next: next, cache: c, ttl: ttl}
}

// Synthesize returns cached audio for text when present, otherwise
// synthesizes and stores the result.
func (s *synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.cache == nil {
		return s.next.Synthesize(ctx, text)
	}
	if audio, ok := s.cache.Get(ctx, text); ok {
		return audio, nil
	}
	audio, err := s.next.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, text, audio, s.ttl)
	return audio, nil
}
