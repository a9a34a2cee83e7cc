// Package resilience provides request pacing for crawlers that must stay
// under a site's tolerated request rate.
package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum spacing between successive calls to Wait.
// The first call returns immediately. A Pacer is safe for concurrent use;
// parallel callers are released one interval apart.
type Pacer struct {
	lim *rate.Limiter
}

// NewPacer creates a Pacer. A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{lim: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call is allowed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.lim.Wait(ctx)
}
