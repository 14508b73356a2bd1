// Package ratelimit provides the store backing the HTTP rate-limiting
// middleware: a Redis-backed counter store that transparently fails over to
// an in-process map when the cache store is unreachable, and back again when
// it recovers.
package ratelimit

import (
	"sync"
	"time"
)

// defaultSweepInterval is how often the background sweep evicts expired
// entries left behind by abandoned keys.
const defaultSweepInterval = time.Minute

// Entry is one key's counter inside the in-memory fallback store.
type Entry struct {
	HitCount  int64
	ExpiresAt time.Time
}

// MemoryStore is a local, self-expiring key-to-counter map used while the
// networked cache store is unreachable. All methods are synchronous and safe
// for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	closed  bool
	stop    chan struct{}

	// now is an injectable clock for tests.
	now func() time.Time
}

// NewMemoryStore creates a store and starts its background sweep.
// sweepInterval <= 0 selects the default (one minute).
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}

	s := &MemoryStore{
		entries: make(map[string]Entry),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go s.sweep(sweepInterval)
	return s
}

// Increment bumps the counter for key. The expiration window is anchored to
// the first hit: a live entry keeps its ExpiresAt unchanged, a dead or absent
// one starts a fresh window from now.
func (s *MemoryStore) Increment(key string, window time.Duration) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if entry, ok := s.entries[key]; ok && entry.ExpiresAt.After(now) {
		entry.HitCount++
		s.entries[key] = entry
		return entry
	}

	entry := Entry{HitCount: 1, ExpiresAt: now.Add(window)}
	s.entries[key] = entry
	return entry
}

// Decrement lowers the counter for key, floored at zero. A no-op when the key
// is absent.
func (s *MemoryStore) Decrement(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return
	}
	if entry.HitCount > 0 {
		entry.HitCount--
	}
	s.entries[key] = entry
}

// ResetKey deletes the entry for key unconditionally.
func (s *MemoryStore) ResetKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Get returns the live entry for key, or nil when absent or expired. An
// expired entry is evicted on read.
func (s *MemoryStore) Get(key string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !entry.ExpiresAt.After(s.now()) {
		delete(s.entries, key)
		return nil
	}
	return &entry
}

// Len reports the number of entries currently held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Shutdown stops the background sweep and clears all entries. Safe to call
// multiple times.
func (s *MemoryStore) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.stop)
	}
	s.entries = make(map[string]Entry)
}

func (s *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *MemoryStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, entry := range s.entries {
		if !entry.ExpiresAt.After(now) {
			delete(s.entries, key)
		}
	}
}
