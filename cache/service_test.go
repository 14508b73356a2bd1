package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veracitylab/analysis-backend/logger"
	"github.com/veracitylab/analysis-backend/store"
)

type fakeStore struct {
	mu        sync.Mutex
	connected bool
	values    map[string][]byte
	ttls      map[string]time.Duration
	failOps   bool
	setCalls  int
}

func newFakeStore(connected bool) *fakeStore {
	return &fakeStore{
		connected: connected,
		values:    make(map[string][]byte),
		ttls:      make(map[string]time.Duration),
	}
}

func (f *fakeStore) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeStore) GetBytes(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOps {
		return nil, errors.New("i/o timeout")
	}
	value, ok := f.values[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return value, nil
}

func (f *fakeStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	if f.failOps {
		return errors.New("i/o timeout")
	}
	f.values[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOps {
		return errors.New("i/o timeout")
	}
	delete(f.values, key)
	delete(f.ttls, key)
	return nil
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOps {
		return false, errors.New("i/o timeout")
	}
	_, ok := f.values[key]
	return ok, nil
}

func (f *fakeStore) TTL(_ context.Context, key string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOps {
		return TTLMissing, errors.New("i/o timeout")
	}
	ttl, ok := f.ttls[key]
	if !ok {
		return TTLMissing, nil
	}
	return ttl, nil
}

func testLogger() logger.Logger {
	return logger.New("disabled", false)
}

func TestDisconnectedStoreDegradesGracefully(t *testing.T) {
	st := newFakeStore(false)
	svc := NewService(st, 0, testLogger())
	ctx := context.Background()

	// Get is a miss, not an error.
	_, ok := svc.Get(ctx, "analysis:1")
	assert.False(t, ok)

	// Set and Delete are no-ops.
	svc.Set(ctx, "analysis:1", []byte("v"), 0)
	assert.Zero(t, st.setCalls)
	svc.Delete(ctx, "analysis:1")

	assert.False(t, svc.Exists(ctx, "analysis:1"))
	assert.Equal(t, TTLMissing, svc.TTL(ctx, "analysis:1"))

	_, misses := svc.Stats()
	assert.Equal(t, int64(1), misses)
}

func TestGetHitAndMissAccounting(t *testing.T) {
	st := newFakeStore(true)
	svc := NewService(st, 0, testLogger())
	ctx := context.Background()

	svc.Set(ctx, "k", []byte("value"), 0)

	data, ok := svc.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), data)

	_, ok = svc.Get(ctx, "absent")
	assert.False(t, ok)

	hits, misses := svc.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestTransportErrorIsTreatedAsMiss(t *testing.T) {
	st := newFakeStore(true)
	st.failOps = true
	svc := NewService(st, 0, testLogger())

	_, ok := svc.Get(context.Background(), "k")
	assert.False(t, ok)

	_, misses := svc.Stats()
	assert.Equal(t, int64(1), misses)
}

func TestSetAppliesDefaultAndExplicitTTL(t *testing.T) {
	st := newFakeStore(true)
	svc := NewService(st, 120*time.Second, testLogger())
	ctx := context.Background()

	svc.Set(ctx, "default", []byte("v"), 0)
	assert.Equal(t, 120*time.Second, svc.TTL(ctx, "default"))

	svc.Set(ctx, "explicit", []byte("v"), 30*time.Second)
	assert.Equal(t, 30*time.Second, svc.TTL(ctx, "explicit"))
}

func TestSetFailureIsSwallowed(t *testing.T) {
	st := newFakeStore(true)
	st.failOps = true
	svc := NewService(st, 0, testLogger())

	// Must not panic or propagate.
	svc.Set(context.Background(), "k", []byte("v"), 0)
	svc.Delete(context.Background(), "k")
	assert.False(t, svc.Exists(context.Background(), "k"))
	assert.Equal(t, TTLMissing, svc.TTL(context.Background(), "k"))
}

func TestDefaultTTLFallsBackWhenUnusable(t *testing.T) {
	svc := NewService(newFakeStore(true), -5*time.Second, testLogger())
	assert.Equal(t, DefaultTTL, svc.DefaultTTL())

	svc.SetDefaultTTL(10 * time.Second)
	assert.Equal(t, 10*time.Second, svc.DefaultTTL())

	svc.SetDefaultTTL(0)
	assert.Equal(t, DefaultTTL, svc.DefaultTTL())
}

type verdictRecord struct {
	ID      string   `cbor:"1,keyasint"`
	Score   float64  `cbor:"2,keyasint"`
	Labels  []string `cbor:"3,keyasint"`
	Credit  int64    `cbor:"4,keyasint"`
	Partial bool     `cbor:"5,keyasint"`
}

func TestTypedRoundTrip(t *testing.T) {
	st := newFakeStore(true)
	svc := NewService(st, 0, testLogger())
	ctx := context.Background()

	want := verdictRecord{
		ID:     "a1",
		Score:  0.93,
		Labels: []string{"phishing", "urgent-language"},
		Credit: 42,
	}
	SetTyped(ctx, svc, "analysis:a1", want, 0)

	got, ok := GetTyped[verdictRecord](ctx, svc, "analysis:a1")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestTypedDecodeFailureIsAMiss(t *testing.T) {
	st := newFakeStore(true)
	svc := NewService(st, 0, testLogger())
	ctx := context.Background()

	svc.Set(ctx, "k", []byte{0xff, 0x00, 0x01}, 0)

	_, ok := GetTyped[verdictRecord](ctx, svc, "k")
	assert.False(t, ok)

	_, misses := svc.Stats()
	assert.Equal(t, int64(1), misses)
}
