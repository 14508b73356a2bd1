package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/veracitylab/analysis-backend/logger"
	"github.com/veracitylab/analysis-backend/store"
)

const (
	// defaultMonitorInterval is how often the monitor pings the store to
	// detect lost connections.
	defaultMonitorInterval = 15 * time.Second

	// defaultPingTimeout bounds each monitor ping.
	defaultPingTimeout = 2 * time.Second
)

// Test seams mirroring the transport construction and ready check, so the
// state machine can be exercised without a live server.
var (
	newRedisClient = func(uri *StoreURI, cfg *store.ConnectionConfig) goredis.UniversalClient {
		poolSize := cfg.PoolSize
		if poolSize <= 0 {
			poolSize = store.DefaultPoolSize
		}

		var tlsConfig *tls.Config
		if uri.TLSEnabled {
			tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}

		maxBackoff := cfg.RetryDelay
		if maxBackoff <= 0 {
			maxBackoff = 512 * time.Millisecond
		}

		if uri.Cluster {
			return goredis.NewClusterClient(&goredis.ClusterOptions{
				Addrs:           []string{uri.Address()},
				Password:        uri.Password,
				PoolSize:        poolSize,
				TLSConfig:       tlsConfig,
				MaxRetries:      cfg.MaxRetries,
				MaxRetryBackoff: maxBackoff,
			})
		}

		database := 0
		if uri.DatabaseIndex != nil {
			database = *uri.DatabaseIndex
		}

		return goredis.NewClient(&goredis.Options{
			Addr:            uri.Address(),
			Password:        uri.Password,
			DB:              database,
			PoolSize:        poolSize,
			TLSConfig:       tlsConfig,
			MaxRetries:      cfg.MaxRetries,
			MaxRetryBackoff: maxBackoff,
		})
	}

	pingRedis = func(ctx context.Context, client goredis.UniversalClient) error {
		return client.Ping(ctx).Err()
	}
)

// Manager owns the lifecycle of the single long-lived Redis connection pool.
// One instance exists per process, constructed at startup and injected into
// the layers that need it.
type Manager struct {
	log logger.Logger

	mu     sync.Mutex
	state  atomic.Int32
	client goredis.UniversalClient
	cfg    *store.ConnectionConfig
	uri    *StoreURI

	monitorCancel context.CancelFunc
	monitorDone   chan struct{}

	monitorInterval time.Duration
	pingTimeout     time.Duration
}

var _ store.Conn = (*Manager)(nil)

// NewManager creates a disconnected manager owning cfg. Call Connect to
// establish the connection.
func NewManager(cfg *store.ConnectionConfig, log logger.Logger) *Manager {
	return &Manager{
		log:             log,
		cfg:             cfg,
		monitorInterval: defaultMonitorInterval,
		pingTimeout:     defaultPingTimeout,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() store.State {
	return store.State(m.state.Load())
}

// IsConnected reports whether the latest known state is Connected, including
// asynchronous lost-connection detection by the monitor.
func (m *Manager) IsConnected() bool {
	return m.State() == store.Connected
}

// Connect validates the configuration, parses the URI, constructs the
// transport client (single-node or cluster, with TLS when enabled), and
// awaits the ready check under a hard timeout. Idempotent: a no-op when
// already Connected or Connecting. Configuration errors are fatal and not
// retried; a timed-out ready check returns an error matching
// store.ErrConnectTimeout so callers can continue startup degraded.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch store.State(m.state.Load()) {
	case store.Connected, store.Connecting:
		m.mu.Unlock()
		return nil
	}
	m.state.Store(int32(store.Connecting))
	cfg := m.cfg
	stale := m.client
	staleCancel := m.monitorCancel
	staleDone := m.monitorDone
	m.client = nil
	m.uri = nil
	m.monitorCancel = nil
	m.monitorDone = nil
	m.mu.Unlock()

	// A previous pool may linger after the monitor exhausted its retries;
	// release it before building a replacement.
	if staleCancel != nil {
		staleCancel()
	}
	if staleDone != nil {
		<-staleDone
	}
	if stale != nil {
		if err := stale.Close(); err != nil {
			m.log.Warn().Err(err).Msg("Failed to close stale Redis client before reconnect")
		}
	}

	client, uri, err := m.establish(ctx, cfg)
	if err != nil {
		m.state.Store(int32(store.Disconnected))
		return err
	}

	m.mu.Lock()
	m.client = client
	m.uri = uri
	monitorCtx, cancel := context.WithCancel(context.Background())
	m.monitorCancel = cancel
	m.monitorDone = make(chan struct{})
	m.state.Store(int32(store.Connected))
	go m.monitor(monitorCtx, client, cfg, m.monitorDone)
	m.mu.Unlock()

	m.log.Info().
		Str("address", uri.Address()).
		Bool("tls", uri.TLSEnabled).
		Bool("cluster", uri.Cluster).
		Msg("Connected to Redis")

	return nil
}

// establish performs the fatal-on-config-error part of Connect.
func (m *Manager) establish(ctx context.Context, cfg *store.ConnectionConfig) (goredis.UniversalClient, *StoreURI, error) {
	if cfg == nil {
		return nil, nil, store.NewConfigError("redis", "no configuration provided", nil)
	}

	if result := store.ValidateConfig(cfg); !result.Valid {
		return nil, nil, store.NewConfigError("redis", strings.Join(result.Errors, "; "), nil)
	}

	parsed := Parse(cfg.URI)
	if parsed == nil {
		return nil, nil, store.NewConfigError("redis.uri", "connection string is not parseable", nil)
	}

	// Explicit overrides win over scheme-derived signals.
	resolved := *parsed
	if cfg.TLSEnabled != nil {
		resolved.TLSEnabled = *cfg.TLSEnabled
	}
	if cfg.ClusterMode != nil {
		resolved.Cluster = *cfg.ClusterMode
	}
	if cfg.Password != "" {
		resolved.Password = cfg.Password
	}

	client := newRedisClient(&resolved, cfg)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = store.DefaultConnectTimeout
	}

	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := pingRedis(readyCtx, client); err != nil {
		_ = client.Close()
		if errors.Is(readyCtx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w after %s", store.ErrConnectTimeout, timeout)
		}
		return nil, nil, store.NewConnectionError("ping", resolved.Address(), err)
	}

	return client, &resolved, nil
}

// Disconnect stops the monitor, closes the client gracefully, and clears the
// handle. Safe to call when already disconnected.
func (m *Manager) Disconnect(_ context.Context) error {
	m.mu.Lock()
	client := m.client
	cancel := m.monitorCancel
	done := m.monitorDone
	m.client = nil
	m.uri = nil
	m.monitorCancel = nil
	m.monitorDone = nil
	m.state.Store(int32(store.Disconnected))
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return store.NewConnectionError("close", "", err)
	}

	m.log.Info().Msg("Disconnected from Redis")
	return nil
}

// Handle returns the live transport client. It fails with
// store.ErrNotConnected when no connected handle exists; callers on
// non-blocking paths should check IsConnected first.
func (m *Manager) Handle() (goredis.UniversalClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if store.State(m.state.Load()) != store.Connected || m.client == nil {
		return nil, store.ErrNotConnected
	}
	return m.client, nil
}

// monitor detects lost connections and drives the reconnect backoff: attempt
// n waits min(n*RetryDelay, MaxRetryDelay); once n exceeds MaxRetries the
// manager surfaces as permanently disconnected until an explicit Connect.
func (m *Manager) monitor(ctx context.Context, client goredis.UniversalClient, cfg *store.ConnectionConfig, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if m.healthy(ctx, client) {
			continue
		}

		m.state.Store(int32(store.Disconnected))
		m.log.Warn().Msg("Redis connection lost; retrying with backoff")

		if m.reconnect(ctx, client, cfg) {
			m.state.Store(int32(store.Connected))
			m.log.Info().Msg("Redis connection restored")
			continue
		}

		if ctx.Err() != nil {
			return
		}
		m.log.Error().
			Int("max_retries", cfg.MaxRetries).
			Msg("Redis reconnect attempts exhausted; disconnected until explicit connect")
		return
	}
}

func (m *Manager) healthy(ctx context.Context, client goredis.UniversalClient) bool {
	pingCtx, cancel := context.WithTimeout(ctx, m.pingTimeout)
	defer cancel()
	return pingRedis(pingCtx, client) == nil
}

func (m *Manager) reconnect(ctx context.Context, client goredis.UniversalClient, cfg *store.ConnectionConfig) bool {
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		delay := time.Duration(attempt) * cfg.RetryDelay
		if delay > store.MaxRetryDelay {
			delay = store.MaxRetryDelay
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		if m.healthy(ctx, client) {
			return true
		}
	}
	return false
}
