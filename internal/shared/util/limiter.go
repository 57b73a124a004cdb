package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces process starts with a token bucket. A nil *Limiter
// never blocks.
type Limiter struct {
	inner *rate.Limiter
}

// NewLimiter returns a limiter refilling perSecond tokens with the given
// burst. A non-positive rate yields nil, i.e. no limit.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{inner: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether n tokens are available right now and consumes them.
func (l *Limiter) Allow(n int) bool {
	if l == nil {
		return true
	}
	return l.inner.AllowN(time.Now(), n)
}

// Wait blocks until n tokens are available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	if l == nil {
		return ctx.Err()
	}
	return l.inner.WaitN(ctx, n)
}
