package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/veracitylab/analysis-backend/store"
)

// TTL sentinels returned by the store itself. Exposed so callers can hand
// them through uniformly instead of inventing their own.
const (
	// TTLMissing is the store's "key absent" reply to a TTL query.
	TTLMissing = -2 * time.Second
	// TTLNoExpiry is the store's "key exists but has no expiration" reply.
	TTLNoExpiry = -1 * time.Second
)

// normalizeTTL maps the driver's raw sentinel replies onto the package
// sentinels. go-redis hands the protocol-level -2/-1 integers through as
// unscaled time.Duration values (-2ns, -1ns), so without this callers would
// see different sentinels depending on whether the query reached the store.
func normalizeTTL(d time.Duration) time.Duration {
	switch d {
	case time.Duration(-2):
		return TTLMissing
	case time.Duration(-1):
		return TTLNoExpiry
	}
	return d
}

// GetBytes fetches the raw value for key. A missing key maps to
// store.ErrNotFound.
func (m *Manager) GetBytes(ctx context.Context, key string) ([]byte, error) {
	client, err := m.Handle()
	if err != nil {
		return nil, err
	}

	value, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// SetWithTTL writes key atomically with its expiration applied in the same
// command, so no window exists where the key is visible without a TTL.
func (m *Manager) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	client, err := m.Handle()
	if err != nil {
		return err
	}
	return client.Set(ctx, key, value, ttl).Err()
}

// Delete removes key. Deleting an absent key is not an error.
func (m *Manager) Delete(ctx context.Context, key string) error {
	client, err := m.Handle()
	if err != nil {
		return err
	}
	return client.Del(ctx, key).Err()
}

// Exists reports whether key is present.
func (m *Manager) Exists(ctx context.Context, key string) (bool, error) {
	client, err := m.Handle()
	if err != nil {
		return false, err
	}

	n, err := client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TTL returns the remaining time-to-live of key, or the store's negative
// sentinels (TTLMissing, TTLNoExpiry).
func (m *Manager) TTL(ctx context.Context, key string) (time.Duration, error) {
	client, err := m.Handle()
	if err != nil {
		return TTLMissing, err
	}
	ttl, err := client.TTL(ctx, key).Result()
	return normalizeTTL(ttl), err
}

// IncrWindow atomically increments the counter at key and reads back its
// remaining TTL in a single batched round trip. If the key was just created
// (no TTL yet), its expiration is set to window. Returns the new count and
// the remaining window.
func (m *Manager) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	client, err := m.Handle()
	if err != nil {
		return 0, 0, err
	}

	var (
		incr *goredis.IntCmd
		pttl *goredis.DurationCmd
	)
	if _, err = client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pttl = pipe.PTTL(ctx, key)
		return nil
	}); err != nil {
		return 0, 0, err
	}

	remaining := pttl.Val()
	if remaining < 0 {
		if err = client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		remaining = window
	}

	return incr.Val(), remaining, nil
}

// DecrCount decrements the counter at key.
func (m *Manager) DecrCount(ctx context.Context, key string) error {
	client, err := m.Handle()
	if err != nil {
		return err
	}
	return client.Decr(ctx, key).Err()
}

// GetCount reads the counter at key together with its remaining window.
// found is false when the key is absent.
func (m *Manager) GetCount(ctx context.Context, key string) (hits int64, remaining time.Duration, found bool, err error) {
	client, err := m.Handle()
	if err != nil {
		return 0, 0, false, err
	}

	var (
		get  *goredis.StringCmd
		pttl *goredis.DurationCmd
	)
	if _, err = client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		get = pipe.Get(ctx, key)
		pttl = pipe.PTTL(ctx, key)
		return nil
	}); err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}

	hits, err = get.Int64()
	if err != nil {
		return 0, 0, false, err
	}
	return hits, normalizeTTL(pttl.Val()), true, nil
}
