package dispatcher

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is the process-wide outbound gate: calls are spaced at least interval apart no matter
// which rule or workspace makes them.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter returns a gate with the given minimum spacing; interval <= 0 disables it.
func NewLimiter(interval time.Duration) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Limiter{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next call may go out or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
