package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/veracitylab/analysis-backend/internal/tracking"
	"github.com/veracitylab/analysis-backend/logger"
	"github.com/veracitylab/analysis-backend/store"
)

// keyPrefix namespaces rate-limit counters inside the shared cache store.
const keyPrefix = "rl:"

// DefaultWindow is the counting window applied when Init is never called.
const DefaultWindow = time.Minute

// Backend is the networked counter surface the store routes to while the
// cache store is connected. Implemented by *redis.Manager.
type Backend interface {
	// IncrWindow atomically increments key and returns the new count with
	// the remaining window, starting the window when the key is new.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	DecrCount(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
	GetCount(ctx context.Context, key string) (int64, time.Duration, bool, error)
}

// Result is the outcome of a counter operation, in either mode.
type Result struct {
	HitCount  int64
	ResetTime time.Time
}

// Store is the dual-mode rate-limit store. Every operation routes to the
// networked backend while the connection manager reports connected, and to
// the in-memory fallback otherwise; a failure on the networked path is caught
// and retried on the fallback within the same call, so callers never observe
// an error. Counts are not reconciled across a backend switch: a flap starts
// a fresh count for keys touched during it. That is an accepted trade-off,
// not a bug.
type Store struct {
	conn     store.Conn
	backend  Backend
	fallback *MemoryStore
	log      logger.Logger

	window        atomic.Int64 // nanoseconds
	usingFallback atomic.Bool

	now func() time.Time
}

// NewStore composes the connection manager, networked backend, and fallback
// store into one rate-limit store with the given counting window.
func NewStore(conn store.Conn, backend Backend, fallback *MemoryStore, window time.Duration, log logger.Logger) *Store {
	s := &Store{
		conn:     conn,
		backend:  backend,
		fallback: fallback,
		log:      log,
		now:      time.Now,
	}
	s.Init(window)
	return s
}

// Init sets the counting window. Part of the generic middleware store
// contract; safe to call at any time.
func (s *Store) Init(window time.Duration) {
	if window <= 0 {
		window = DefaultWindow
	}
	s.window.Store(int64(window))
}

// UsingFallback reports whether the last operation was served by the
// in-memory fallback.
func (s *Store) UsingFallback() bool {
	return s.usingFallback.Load()
}

// Increment counts a hit for key and returns the running total with the time
// the window resets. Never returns an error: networked failures fall back to
// the in-memory store within the same call.
func (s *Store) Increment(ctx context.Context, key string) Result {
	namespaced := keyPrefix + key
	window := s.windowDuration()

	if !s.conn.IsConnected() {
		s.setFallback(ctx, true)
		return s.fallbackIncrement(namespaced, window)
	}

	hits, remaining, err := s.backend.IncrWindow(ctx, namespaced, window)
	if err != nil {
		s.setFallback(ctx, true)
		return s.fallbackIncrement(namespaced, window)
	}

	s.setFallback(ctx, false)
	return Result{HitCount: hits, ResetTime: s.now().Add(remaining)}
}

// Decrement un-counts a hit for key, mirroring Increment's routing. Never
// returns an error.
func (s *Store) Decrement(ctx context.Context, key string) {
	namespaced := keyPrefix + key

	if !s.conn.IsConnected() {
		s.setFallback(ctx, true)
		s.fallback.Decrement(namespaced)
		return
	}

	if err := s.backend.DecrCount(ctx, namespaced); err != nil {
		s.setFallback(ctx, true)
		s.fallback.Decrement(namespaced)
		return
	}
	s.setFallback(ctx, false)
}

// ResetKey removes the counter for key in whichever backend is active.
func (s *Store) ResetKey(ctx context.Context, key string) {
	namespaced := keyPrefix + key

	if !s.conn.IsConnected() {
		s.setFallback(ctx, true)
		s.fallback.ResetKey(namespaced)
		return
	}

	if err := s.backend.Delete(ctx, namespaced); err != nil {
		s.setFallback(ctx, true)
		s.fallback.ResetKey(namespaced)
		return
	}
	s.setFallback(ctx, false)
}

// Get reads the current count for key without incrementing. found is false
// when no live counter exists.
func (s *Store) Get(ctx context.Context, key string) (result Result, found bool) {
	namespaced := keyPrefix + key

	if !s.conn.IsConnected() {
		s.setFallback(ctx, true)
		return s.fallbackGet(namespaced)
	}

	hits, remaining, ok, err := s.backend.GetCount(ctx, namespaced)
	if err != nil {
		s.setFallback(ctx, true)
		return s.fallbackGet(namespaced)
	}

	s.setFallback(ctx, false)
	if !ok {
		return Result{}, false
	}
	return Result{HitCount: hits, ResetTime: s.now().Add(remaining)}, true
}

func (s *Store) fallbackIncrement(key string, window time.Duration) Result {
	entry := s.fallback.Increment(key, window)
	return Result{HitCount: entry.HitCount, ResetTime: entry.ExpiresAt}
}

func (s *Store) fallbackGet(key string) (Result, bool) {
	entry := s.fallback.Get(key)
	if entry == nil {
		return Result{}, false
	}
	return Result{HitCount: entry.HitCount, ResetTime: entry.ExpiresAt}, true
}

// setFallback flips the mode flag, logging and counting the transition on the
// edge only.
func (s *Store) setFallback(ctx context.Context, active bool) {
	if s.usingFallback.Swap(active) == active {
		return
	}

	if active {
		s.log.Warn().Msg("Rate-limit store switched to in-memory fallback")
	} else {
		s.log.Info().Msg("Rate-limit store resumed networked backend")
	}
	tracking.RecordFallbackTransition(ctx, active)
}

func (s *Store) windowDuration() time.Duration {
	return time.Duration(s.window.Load())
}
