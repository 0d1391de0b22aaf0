package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestMemoryLimiterWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)}
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: clock.Now})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		decision, err := limiter.Allow(ctx, "check:0xowner", 2, time.Minute)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !decision.Allowed || decision.Remaining != 1-i {
			t.Fatalf("request %d: unexpected decision %+v", i, decision)
		}
	}
	decision, err := limiter.Allow(ctx, "check:0xowner", 2, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed || !decision.ResetAt.Equal(clock.now.Add(time.Minute)) {
		t.Fatalf("expected denial until window end, got %+v", decision)
	}

	other, _ := limiter.Allow(ctx, "check:0xother", 2, time.Minute)
	if !other.Allowed {
		t.Fatal("keys must be limited independently")
	}

	clock.now = clock.now.Add(time.Minute + time.Second)
	decision, _ = limiter.Allow(ctx, "check:0xowner", 2, time.Minute)
	if !decision.Allowed || decision.Remaining != 1 {
		t.Fatalf("expected fresh window, got %+v", decision)
	}
}

func TestMemoryLimiterDisabled(t *testing.T) {
	limiter := NewMemoryLimiter(MemoryLimiterConfig{})
	decision, err := limiter.Allow(context.Background(), "k", 0, time.Minute)
	if err != nil || !decision.Allowed {
		t.Fatalf("zero limit must allow: %+v %v", decision, err)
	}
	if limiter.Len() != 0 {
		t.Fatal("disabled limiter must not track keys")
	}
}

func TestMemoryLimiterCapacity(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)}
	limiter := NewMemoryLimiter(MemoryLimiterConfig{Now: clock.Now, MaxKeys: 2})
	ctx := context.Background()
	for _, key := range []string{"a", "b"} {
		if _, err := limiter.Allow(ctx, key, 1, time.Minute); err != nil {
			t.Fatalf("allow %s: %v", key, err)
		}
	}
	if _, err := limiter.Allow(ctx, "c", 1, time.Minute); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	clock.now = clock.now.Add(2 * time.Minute)
	if _, err := limiter.Allow(ctx, "c", 1, time.Minute); err != nil {
		t.Fatalf("expired keys must be swept: %v", err)
	}
	if limiter.Len() != 1 {
		t.Fatalf("expected 1 tracked key after sweep, got %d", limiter.Len())
	}
}
