// Package cache provides the TTL'd result cache over the Redis connection
// manager. Every operation degrades gracefully while the store is
// disconnected: reads become misses, writes become no-ops, and no error ever
// reaches the caller. A cache failure must not fail the request it serves.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/veracitylab/analysis-backend/internal/tracking"
	"github.com/veracitylab/analysis-backend/logger"
	"github.com/veracitylab/analysis-backend/store"
)

const (
	// DefaultTTL applies when no expiration is configured or the configured
	// value is unusable.
	DefaultTTL = 3600 * time.Second

	// TTLMissing mirrors the store's own "key absent" reply to a TTL query,
	// so callers handle connected and disconnected lookups uniformly.
	TTLMissing = -2 * time.Second
)

// Store is the connection-checked key-value surface the service is built on.
// Implemented by *redis.Manager.
type Store interface {
	IsConnected() bool
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Service is the cache-with-TTL abstraction consumed by the analysis
// orchestration logic. Key conventions (e.g. "analysis:"+id) are owned by
// callers, not enforced here.
type Service struct {
	store Store
	log   logger.Logger

	defaultTTL atomic.Int64 // nanoseconds

	hits   atomic.Int64
	misses atomic.Int64
}

// NewService creates a cache service with the given default expiration.
// A non-positive defaultTTL selects DefaultTTL.
func NewService(st Store, defaultTTL time.Duration, log logger.Logger) *Service {
	s := &Service{store: st, log: log}
	s.SetDefaultTTL(defaultTTL)
	return s
}

// SetDefaultTTL overrides the default expiration at runtime. Non-positive
// values reset it to DefaultTTL.
func (s *Service) SetDefaultTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.defaultTTL.Store(int64(ttl))
}

// DefaultTTL returns the expiration applied when Set receives no explicit TTL.
func (s *Service) DefaultTTL() time.Duration {
	return time.Duration(s.defaultTTL.Load())
}

// Get fetches the raw bytes for key. Misses, disconnected stores, and
// transport failures all return ok=false; nothing propagates.
func (s *Service) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := s.fetch(ctx, key)
	if err != nil {
		s.recordMiss(ctx)
		return nil, false
	}
	s.recordHit(ctx)
	return data, true
}

// Set writes value with an atomic set-with-expiration. ttl <= 0 selects the
// configured default. Failures are logged and swallowed: a cache write
// failure must not fail the caller's request.
func (s *Service) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if !s.store.IsConnected() {
		return
	}
	if ttl <= 0 {
		ttl = s.DefaultTTL()
	}
	if err := s.store.SetWithTTL(ctx, key, value, ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

// Delete removes key. A no-op when disconnected; failures are swallowed.
func (s *Service) Delete(ctx context.Context, key string) {
	if !s.store.IsConnected() {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Cache delete failed")
	}
}

// Exists reports whether key is present; false when disconnected.
func (s *Service) Exists(ctx context.Context, key string) bool {
	if !s.store.IsConnected() {
		return false
	}
	ok, err := s.store.Exists(ctx, key)
	if err != nil {
		return false
	}
	return ok
}

// TTL returns the remaining time-to-live of key, or TTLMissing when the key
// is absent, the store is disconnected, or the query fails.
func (s *Service) TTL(ctx context.Context, key string) time.Duration {
	if !s.store.IsConnected() {
		return TTLMissing
	}
	ttl, err := s.store.TTL(ctx, key)
	if err != nil {
		return TTLMissing
	}
	return ttl
}

// Stats returns the hit/miss counts accumulated since construction.
func (s *Service) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

// fetch performs the raw lookup without touching the counters, so typed and
// untyped reads account hits and misses consistently.
func (s *Service) fetch(ctx context.Context, key string) ([]byte, error) {
	if !s.store.IsConnected() {
		return nil, store.ErrNotConnected
	}
	return s.store.GetBytes(ctx, key)
}

func (s *Service) recordHit(ctx context.Context) {
	s.hits.Add(1)
	tracking.RecordCacheHit(ctx)
}

func (s *Service) recordMiss(ctx context.Context) {
	s.misses.Add(1)
	tracking.RecordCacheMiss(ctx)
}

// GetTyped fetches and deserializes the value at key. Any transport or
// decoding failure is treated as a miss and never propagates.
func GetTyped[T any](ctx context.Context, s *Service, key string) (T, bool) {
	var zero T

	data, err := s.fetch(ctx, key)
	if err != nil {
		s.recordMiss(ctx)
		return zero, false
	}

	value, err := Unmarshal[T](data)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cache value")
		s.recordMiss(ctx)
		return zero, false
	}

	s.recordHit(ctx)
	return value, true
}

// SetTyped serializes value and stores it under key. Serialization failures
// are logged and swallowed like any other cache write failure.
func SetTyped[T any](ctx context.Context, s *Service, key string, value T, ttl time.Duration) {
	data, err := Marshal(value)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Cache serialization failed")
		return
	}
	s.Set(ctx, key, data, ttl)
}
