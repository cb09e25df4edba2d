// Package ratelimit implements the per-gateway token bucket on top of
// golang.org/x/time/rate: capacity maps to burst size, tokensPerInterval
// to the refill rate, TryRemoveTokens to a non-blocking AllowN, and
// RemoveTokens to a blocking WaitN.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Bucket wraps a rate.Limiter in token-bucket vocabulary.
type Bucket struct {
	limiter *rate.Limiter
}

// New creates a bucket with the given capacity and refill rate (tokens
// added per interval). Content starts empty and fills on the elapsed-time
// drip; rate.NewLimiter starts full, so the initial burst is drained here.
func New(capacity int, tokensPerInterval float64, interval time.Duration) *Bucket {
	perSecond := tokensPerInterval / interval.Seconds()
	l := rate.NewLimiter(rate.Limit(perSecond), capacity)
	l.AllowN(time.Now(), capacity)
	return &Bucket{limiter: l}
}

// TryRemove is the non-blocking tryRemoveTokens: it reports whether n
// tokens were available and, if so, removes them immediately.
func (b *Bucket) TryRemove(n int) bool {
	return b.limiter.AllowN(time.Now(), n)
}

// Remove is the suspending removeTokens: it blocks until n tokens are
// available or ctx is cancelled.
func (b *Bucket) Remove(ctx context.Context, n int) error {
	return b.limiter.WaitN(ctx, n)
}
