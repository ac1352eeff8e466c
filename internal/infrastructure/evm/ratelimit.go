package evm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/yukia3e/evm-balance-sweeper/internal/metrics"
)

// Limiter is a token bucket shared by all calls of one client. A nil Limiter never waits.
type Limiter struct {
	limiter *rate.Limiter
}

func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or ctx is done. Reserve guarantees one token per call.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay > 0 {
		metrics.RPCRateLimitWaits.Inc()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		}
	}
	return nil
}
