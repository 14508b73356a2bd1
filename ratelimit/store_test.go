package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veracitylab/analysis-backend/logger"
	"github.com/veracitylab/analysis-backend/store"
)

type fakeConn struct {
	connected atomic.Bool
}

func (f *fakeConn) IsConnected() bool { return f.connected.Load() }

func (f *fakeConn) State() store.State {
	if f.connected.Load() {
		return store.Connected
	}
	return store.Disconnected
}

type fakeBackend struct {
	mu     sync.Mutex
	counts map[string]int64
	fail   bool
	calls  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{counts: make(map[string]int64)}
}

func (b *fakeBackend) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.fail {
		return 0, 0, errors.New("connection reset by peer")
	}
	b.counts[key]++
	return b.counts[key], window, nil
}

func (b *fakeBackend) DecrCount(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("connection reset by peer")
	}
	b.counts[key]--
	return nil
}

func (b *fakeBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("connection reset by peer")
	}
	delete(b.counts, key)
	return nil
}

func (b *fakeBackend) GetCount(_ context.Context, key string) (int64, time.Duration, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return 0, 0, false, errors.New("connection reset by peer")
	}
	hits, ok := b.counts[key]
	return hits, time.Minute, ok, nil
}

func newTestDualStore(t *testing.T) (*Store, *fakeConn, *fakeBackend) {
	t.Helper()
	conn := &fakeConn{}
	backend := newFakeBackend()
	fallback := NewMemoryStore(time.Hour)
	t.Cleanup(fallback.Shutdown)

	s := NewStore(conn, backend, fallback, time.Minute, logger.New("disabled", false))
	return s, conn, backend
}

func TestIncrementRoutesToFallbackWhenDisconnected(t *testing.T) {
	s, conn, backend := newTestDualStore(t)
	conn.connected.Store(false)

	for i := int64(1); i <= 5; i++ {
		result := s.Increment(context.Background(), "client-1")
		assert.Equal(t, i, result.HitCount)
		assert.True(t, s.UsingFallback())
	}
	assert.Zero(t, backend.calls)
}

func TestIncrementUsesNetworkedPathWhenConnected(t *testing.T) {
	s, conn, backend := newTestDualStore(t)
	conn.connected.Store(true)

	result := s.Increment(context.Background(), "client-1")
	assert.Equal(t, int64(1), result.HitCount)
	assert.False(t, s.UsingFallback())

	// Counters are namespaced inside the shared store.
	backend.mu.Lock()
	_, ok := backend.counts["rl:client-1"]
	backend.mu.Unlock()
	assert.True(t, ok)
}

func TestIncrementFallsBackWithinSameCallOnError(t *testing.T) {
	s, conn, backend := newTestDualStore(t)
	conn.connected.Store(true)
	backend.fail = true

	// The caller must never observe an error; the failed networked attempt
	// is retried on the fallback in the same call.
	result := s.Increment(context.Background(), "client-1")
	assert.Equal(t, int64(1), result.HitCount)
	assert.True(t, s.UsingFallback())

	result = s.Increment(context.Background(), "client-1")
	assert.Equal(t, int64(2), result.HitCount)
}

func TestReconnectResumesNetworkedPathWithFreshCount(t *testing.T) {
	s, conn, _ := newTestDualStore(t)

	conn.connected.Store(false)
	for i := 0; i < 4; i++ {
		s.Increment(context.Background(), "client-1")
	}
	require.True(t, s.UsingFallback())

	// After the store reports connected again the next call resumes the
	// networked path; the count starts fresh rather than being reconciled.
	conn.connected.Store(true)
	result := s.Increment(context.Background(), "client-1")
	assert.Equal(t, int64(1), result.HitCount)
	assert.False(t, s.UsingFallback())
}

func TestDecrementAndResetMirrorRouting(t *testing.T) {
	s, conn, _ := newTestDualStore(t)
	conn.connected.Store(true)

	s.Increment(context.Background(), "k")
	s.Increment(context.Background(), "k")
	s.Decrement(context.Background(), "k")

	result, found := s.Get(context.Background(), "k")
	require.True(t, found)
	assert.Equal(t, int64(1), result.HitCount)

	s.ResetKey(context.Background(), "k")
	_, found = s.Get(context.Background(), "k")
	assert.False(t, found)

	// Same sequence against the fallback.
	conn.connected.Store(false)
	s.Increment(context.Background(), "k")
	s.Increment(context.Background(), "k")
	s.Decrement(context.Background(), "k")

	result, found = s.Get(context.Background(), "k")
	require.True(t, found)
	assert.Equal(t, int64(1), result.HitCount)

	s.ResetKey(context.Background(), "k")
	_, found = s.Get(context.Background(), "k")
	assert.False(t, found)
}

func TestGetErrorFallsBack(t *testing.T) {
	s, conn, backend := newTestDualStore(t)
	conn.connected.Store(true)
	backend.fail = true

	_, found := s.Get(context.Background(), "k")
	assert.False(t, found)
	assert.True(t, s.UsingFallback())
}

func TestInitClampsWindow(t *testing.T) {
	s, conn, _ := newTestDualStore(t)
	conn.connected.Store(false)

	s.Init(0)
	result := s.Increment(context.Background(), "k")
	assert.WithinDuration(t, time.Now().Add(DefaultWindow), result.ResetTime, time.Second)
}

func TestLimiterAdapterAllow(t *testing.T) {
	s, conn, _ := newTestDualStore(t)
	conn.connected.Store(false) // fallback path keeps the test hermetic

	adapter := NewLimiterAdapter(s, 2)

	allowed, err := adapter.Allow("10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _ = adapter.Allow("10.0.0.1")
	assert.True(t, allowed)

	allowed, _ = adapter.Allow("10.0.0.1")
	assert.False(t, allowed)

	// Independent identifiers get independent windows.
	allowed, _ = adapter.Allow("10.0.0.2")
	assert.True(t, allowed)
}
