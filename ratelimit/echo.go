package ratelimit

import (
	"context"

	"github.com/labstack/echo/v4/middleware"
)

// LimiterAdapter plugs the dual-mode Store into echo's rate-limiting
// middleware. The middleware stays oblivious to fallback behavior: Allow
// never returns an error because the store never surfaces one.
type LimiterAdapter struct {
	store *Store
	limit int64
}

var _ middleware.RateLimiterStore = (*LimiterAdapter)(nil)

// NewLimiterAdapter wraps store with a per-window request limit.
func NewLimiterAdapter(store *Store, limit int64) *LimiterAdapter {
	return &LimiterAdapter{store: store, limit: limit}
}

// Allow counts a hit for identifier and reports whether it is still within
// the limit for the current window.
func (a *LimiterAdapter) Allow(identifier string) (bool, error) {
	result := a.store.Increment(context.Background(), identifier)
	return result.HitCount <= a.limit, nil
}
