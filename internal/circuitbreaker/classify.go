package circuitbreaker

import (
	"context"
	"errors"
	"net"
	"os"
)

// ClassifyError returns the error weight for circuit breaker tracking.
//
// Weights:
//   - nil -> 0.0
//   - cancelled context -> 0.0 (caller hung up, not a stage fault)
//   - timeout (deadline exceeded) -> 1.5
//   - network errors -> 1.0
//   - anything else -> 1.0
func ClassifyError(err error) float64 {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return 0
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return 1.5
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return 1.0
	}
	return 1.0
}
