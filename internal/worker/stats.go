package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxgate/voxgate/internal/ratelimit"
)

// StatsReporter periodically logs limiter and usage snapshots so operators
// can see load without scraping the admin endpoint.
type StatsReporter struct {
	limiter  *ratelimit.Limiter
	usage    *ratelimit.UsageTracker
	interval time.Duration
}

// NewStatsReporter creates a StatsReporter. usage may be nil.
func NewStatsReporter(limiter *ratelimit.Limiter, usage *ratelimit.UsageTracker, interval time.Duration) *StatsReporter {
	return &StatsReporter{limiter: limiter, usage: usage, interval: interval}
}

// Run logs snapshots until ctx is cancelled.
func (w *StatsReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.report(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *StatsReporter) report(ctx context.Context) {
	s := w.limiter.Stats()
	attrs := []slog.Attr{
		slog.Int("active_connections", s.ActiveConnections),
		slog.Int("unique_origins", s.UniqueOrigins),
		slog.Int("message_buckets", s.MessageBuckets),
		slog.Int("bandwidth_buckets", s.BandwidthBuckets),
	}
	if w.usage != nil {
		if origin, conns := w.usage.TopOrigin(); origin != "" {
			attrs = append(attrs,
				slog.String("top_origin", origin),
				slog.Int64("top_origin_connections", conns),
			)
		}
	}
	slog.LogAttrs(ctx, slog.LevelInfo, "rate limiter stats", attrs...)
}
