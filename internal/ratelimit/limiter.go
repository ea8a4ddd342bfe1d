package ratelimit

import (
	"context"
	"fmt"
	"time"

	"streakboard/internal/cache"
)

// Result reports one rate-limit decision.
type Result struct {
	Allowed   bool
	Remaining int64
	// ResetIn is the fixed-window upper bound, not the exact time left on
	// an already-open window.
	ResetIn time.Duration
}

// Limiter is a fixed-window counter on top of the cache store. The
// check-and-increment is a single atomic store operation, so a denied call
// never advances the counter and concurrent callers cannot overshoot the
// limit.
type Limiter struct {
	store cache.Store
}

func NewLimiter(store cache.Store) *Limiter {
	return &Limiter{store: store}
}

func (l *Limiter) Check(ctx context.Context, key string, limit int64, window time.Duration) (Result, error) {
	count, incremented, err := l.store.CheckAndIncr(ctx, key, limit, window)
	if err != nil {
		return Result{}, fmt.Errorf("rate counter %q: %w", key, err)
	}

	if !incremented {
		return Result{Allowed: false, Remaining: 0, ResetIn: window}, nil
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Result{Allowed: true, Remaining: remaining, ResetIn: window}, nil
}
