// Package mongodb implements the connection manager for the MongoDB document
// store. The driver maintains its own topology monitoring; the manager folds
// those heartbeat signals into the shared lifecycle state machine.
package mongodb

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/event"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/veracitylab/analysis-backend/logger"
	"github.com/veracitylab/analysis-backend/store"
)

// Test seams mirroring the transport construction and ready check.
var (
	connectMongo = func(opts *options.ClientOptions) (*mongo.Client, error) {
		return mongo.Connect(opts)
	}
	pingMongo = func(ctx context.Context, client *mongo.Client) error {
		return client.Ping(ctx, readpref.Primary())
	}
)

// Manager owns the lifecycle of the single long-lived MongoDB client. One
// instance exists per process, constructed at startup and injected into the
// repository layer.
type Manager struct {
	log    logger.Logger
	dbName string

	mu     sync.Mutex
	state  atomic.Int32
	client *mongo.Client
	db     *mongo.Database
	cfg    *store.ConnectionConfig

	// closed suppresses heartbeat callbacks after an explicit Disconnect.
	closed atomic.Bool
	// heartbeatFailures counts consecutive failed heartbeats; once it
	// exceeds MaxRetries the manager stays disconnected until an explicit
	// Connect.
	heartbeatFailures atomic.Int32
	exhausted         atomic.Bool
}

var _ store.Conn = (*Manager)(nil)

// NewManager creates a disconnected manager owning cfg. dbName selects the
// database the handle is bound to.
func NewManager(cfg *store.ConnectionConfig, dbName string, log logger.Logger) *Manager {
	return &Manager{
		log:    log,
		dbName: dbName,
		cfg:    cfg,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() store.State {
	return store.State(m.state.Load())
}

// IsConnected reports whether the latest known state is Connected, including
// heartbeat-driven lost-connection detection.
func (m *Manager) IsConnected() bool {
	return m.State() == store.Connected
}

// Connect validates the configuration, builds the client options, and awaits
// the ready check under a hard timeout. Idempotent when already Connected or
// Connecting. Configuration errors are fatal and not retried.
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
	m.client = nil
	m.db = nil
	// Silence heartbeats from the stale client while it is torn down.
	m.closed.Store(true)
	m.mu.Unlock()

	// A previous client may linger after heartbeat exhaustion; release its
	// pool before building a replacement.
	if stale != nil {
		if err := stale.Disconnect(ctx); err != nil {
			m.log.Warn().Err(err).Msg("Failed to disconnect stale MongoDB client before reconnect")
		}
	}

	client, err := m.establish(ctx, cfg)
	if err != nil {
		m.state.Store(int32(store.Disconnected))
		return err
	}

	m.mu.Lock()
	m.client = client
	m.db = client.Database(m.dbName)
	m.closed.Store(false)
	m.exhausted.Store(false)
	m.heartbeatFailures.Store(0)
	m.state.Store(int32(store.Connected))
	m.mu.Unlock()

	m.log.Info().Str("database", m.dbName).Msg("Connected to MongoDB")
	return nil
}

func (m *Manager) establish(ctx context.Context, cfg *store.ConnectionConfig) (*mongo.Client, error) {
	if cfg == nil {
		return nil, store.NewConfigError("mongodb", "no configuration provided", nil)
	}

	if result := store.ValidateConfig(cfg); !result.Valid {
		return nil, store.NewConfigError("mongodb", strings.Join(result.Errors, "; "), nil)
	}

	if strings.TrimSpace(cfg.URI) == "" {
		return nil, store.NewConfigError("mongodb.uri", "connection string is empty", nil)
	}

	opts, err := m.clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client, err := connectMongo(opts)
	if err != nil {
		return nil, store.NewConnectionError("dial", cfg.URI, err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = store.DefaultConnectTimeout
	}

	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := pingMongo(readyCtx, client); err != nil {
		if closeErr := client.Disconnect(context.Background()); closeErr != nil {
			m.log.Error().Err(closeErr).Msg("Failed to disconnect MongoDB client after ping failure")
		}
		if errors.Is(readyCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", store.ErrConnectTimeout, timeout)
		}
		return nil, store.NewConnectionError("ping", cfg.URI, err)
	}

	return client, nil
}

// clientOptions maps the shared ConnectionConfig onto driver options.
func (m *Manager) clientOptions(cfg *store.ConnectionConfig) (*options.ClientOptions, error) {
	opts := options.Client().ApplyURI(cfg.URI)

	if cfg.PoolSize > 0 {
		opts.SetMaxPoolSize(uint64(cfg.PoolSize))
	}

	if cfg.TLSEnabled != nil && *cfg.TLSEnabled {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	if cfg.ReadPreference != "" {
		pref, err := parseReadPreference(cfg.ReadPreference)
		if err != nil {
			return nil, store.NewConfigError("mongodb.readPreference", err.Error(), nil)
		}
		opts.SetReadPreference(pref)
	}

	// The driver's own heartbeat loop is the reconnect mechanism; RetryDelay
	// sets its cadence.
	if cfg.RetryDelay > 0 {
		opts.SetHeartbeatInterval(minDuration(cfg.RetryDelay, store.MaxRetryDelay))
	}

	opts.SetServerMonitor(&event.ServerMonitor{
		ServerHeartbeatSucceeded: func(*event.ServerHeartbeatSucceededEvent) {
			m.onHeartbeatSucceeded()
		},
		ServerHeartbeatFailed: func(e *event.ServerHeartbeatFailedEvent) {
			m.onHeartbeatFailed(e.Failure)
		},
	})

	return opts, nil
}

func (m *Manager) onHeartbeatSucceeded() {
	if m.closed.Load() || m.exhausted.Load() {
		return
	}
	m.heartbeatFailures.Store(0)
	if m.state.CompareAndSwap(int32(store.Disconnected), int32(store.Connected)) {
		m.log.Info().Msg("MongoDB connection restored")
	}
}

func (m *Manager) onHeartbeatFailed(cause error) {
	if m.closed.Load() || m.exhausted.Load() {
		return
	}

	failures := m.heartbeatFailures.Add(1)
	if m.state.CompareAndSwap(int32(store.Connected), int32(store.Disconnected)) {
		m.log.Warn().Err(cause).Msg("MongoDB connection lost")
	}

	maxRetries := 0
	if m.cfg != nil {
		maxRetries = m.cfg.MaxRetries
	}
	if maxRetries > 0 && int(failures) > maxRetries {
		m.exhausted.Store(true)
		m.state.Store(int32(store.Disconnected))
		m.log.Error().
			Int("max_retries", maxRetries).
			Msg("MongoDB reconnect attempts exhausted; disconnected until explicit connect")
	}
}

// Disconnect closes the client gracefully and clears the handle. Safe to call
// when already disconnected.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.db = nil
	m.closed.Store(true)
	m.state.Store(int32(store.Disconnected))
	m.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := client.Disconnect(ctx); err != nil {
		return store.NewConnectionError("close", "", err)
	}

	m.log.Info().Msg("Disconnected from MongoDB")
	return nil
}

// Database returns the live database handle. It fails with
// store.ErrNotConnected when no connected handle exists.
func (m *Manager) Database() (*mongo.Database, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if store.State(m.state.Load()) != store.Connected || m.db == nil {
		return nil, store.ErrNotConnected
	}
	return m.db, nil
}

func parseReadPreference(pref string) (*readpref.ReadPref, error) {
	switch strings.ToLower(pref) {
	case "primary":
		return readpref.Primary(), nil
	case "primarypreferred":
		return readpref.PrimaryPreferred(), nil
	case "secondary":
		return readpref.Secondary(), nil
	case "secondarypreferred":
		return readpref.SecondaryPreferred(), nil
	case "nearest":
		return readpref.Nearest(), nil
	default:
		return nil, fmt.Errorf("unknown read preference %q", pref)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
