// Package ratelimit paces sensor polling and throttles observer relay traffic.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket refilled at a fixed rate per second. A rate of 0
// disables limiting entirely: Wait never blocks and Allow always succeeds.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter allowing perSecond events per second with a burst of
// the same size.
func New(perSecond int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

func (l *Limiter) unlimited() (*rate.Limiter, bool) {
	if l == nil {
		return nil, true
	}
	return l.limiter, l.limiter.Limit() == 0
}

// Wait blocks until an event may happen or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	limiter, off := l.unlimited()
	if off {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}

// Allow reports whether an event may happen now, consuming a token if so.
func (l *Limiter) Allow() bool {
	limiter, off := l.unlimited()
	if off {
		return true
	}
	return limiter.Allow()
}
