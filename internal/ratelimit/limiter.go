// Package ratelimit gates outbound requests to the market-data
// provider. A Limiter is constructed per pipeline run and injected into
// the client that needs it; there is no process-wide instance.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket limiter for one provider.
type Limiter struct {
	rl *rate.Limiter
}

// New creates a Limiter allowing perSecond requests with the given
// burst. A non-positive perSecond disables limiting entirely, which is
// what tests and fake-provider runs want.
func New(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return &Limiter{rl: rate.NewLimiter(rate.Inf, 1)}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until the limiter permits an event. It returns an error
// if the context is canceled before the event can proceed.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.rl.Wait(ctx)
}

// Allow reports whether an event may happen now without blocking.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.rl.Allow()
}
