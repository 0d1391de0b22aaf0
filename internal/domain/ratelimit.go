package domain

import (
	"context"
	"time"
)

// RateLimitDecision is the outcome of one fixed-window admission check.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter rounds the time left in the window up to whole seconds.
func (d RateLimitDecision) RetryAfter(now time.Time) int64 {
	if d.ResetAt.IsZero() || !d.ResetAt.After(now) {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	secs := int64(wait / time.Second)
	if wait%time.Second != 0 {
		secs++
	}
	return secs
}

// RateLimiter admits at most limit calls per key within window. Keys are
// built by the transport and never contain raw caller identities when
// subject hashing is enabled.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}
