package worker

import (
	"context"
	"time"

	"github.com/voxgate/voxgate/internal/ratelimit"
)

// BucketSweeper periodically evicts idle rate buckets. The call loop already
// sweeps opportunistically on inbound traffic; this worker covers quiet
// periods where no frames arrive to trigger it.
type BucketSweeper struct {
	limiter  *ratelimit.Limiter
	interval time.Duration
}

// NewBucketSweeper creates a BucketSweeper ticking at interval.
func NewBucketSweeper(limiter *ratelimit.Limiter, interval time.Duration) *BucketSweeper {
	return &BucketSweeper{limiter: limiter, interval: interval}
}

// Run sweeps idle buckets until ctx is cancelled.
func (w *BucketSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.limiter.CleanupOldBuckets()
		case <-ctx.Done():
			return nil
		}
	}
}
