package resilience

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned by non-blocking calls when no token is
// available.
var ErrRateLimited = errors.New("rate limited")

// Limiter is a token bucket rate limiter over golang.org/x/time/rate.
type Limiter struct {
	l *rate.Limiter
}

// NewLimiter creates a limiter adding rps tokens per second with the
// given burst capacity.
func NewLimiter(rps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{l: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Allow reports whether a call may proceed now.
func (l *Limiter) Allow() bool { return l.l.Allow() }

// Wait blocks until a token is available or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error { return l.l.Wait(ctx) }

// Call executes f if a token is available, otherwise returns
// ErrRateLimited.
func (l *Limiter) Call(ctx context.Context, f func(context.Context) error) error {
	if !l.Allow() {
		return ErrRateLimited
	}
	return f(ctx)
}
