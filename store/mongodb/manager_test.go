package mongodb

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/veracitylab/analysis-backend/logger"
	"github.com/veracitylab/analysis-backend/store"
)

func testLogger() logger.Logger {
	return logger.New("disabled", false)
}

// stubMongoClient builds a client without reaching a server; the ready check
// is stubbed out alongside it.
func stubMongoClient(t *testing.T) *mongo.Client {
	t.Helper()
	client, err := mongo.Connect(options.Client().
		ApplyURI("mongodb://127.0.0.1:27017").
		SetServerSelectionTimeout(10 * time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

func restoreSeams(t *testing.T) {
	t.Helper()
	origConnect, origPing := connectMongo, pingMongo
	t.Cleanup(func() {
		connectMongo = origConnect
		pingMongo = origPing
	})
}

func testConfig() *store.ConnectionConfig {
	return &store.ConnectionConfig{URI: "mongodb://localhost:27017"}
}

func TestConnectTransitionsToConnected(t *testing.T) {
	restoreSeams(t)
	stub := stubMongoClient(t)
	connectMongo = func(*options.ClientOptions) (*mongo.Client, error) { return stub, nil }
	pingMongo = func(context.Context, *mongo.Client) error { return nil }

	m := NewManager(testConfig(), "analysis", testLogger())
	require.Equal(t, store.Disconnected, m.State())

	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.IsConnected())

	db, err := m.Database()
	require.NoError(t, err)
	assert.Equal(t, "analysis", db.Name())

	// Idempotent.
	require.NoError(t, m.Connect(context.Background()))
}

func TestConnectInvalidConfigIsFatal(t *testing.T) {
	restoreSeams(t)
	dialed := false
	connectMongo = func(*options.ClientOptions) (*mongo.Client, error) {
		dialed = true
		return nil, nil
	}

	m := NewManager(&store.ConnectionConfig{
		URI:      "mongodb://localhost",
		PoolSize: 500,
	}, "analysis", testLogger())

	err := m.Connect(context.Background())
	var cfgErr *store.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.False(t, dialed)
	assert.Equal(t, store.Disconnected, m.State())
}

func TestConnectEmptyURI(t *testing.T) {
	restoreSeams(t)
	m := NewManager(&store.ConnectionConfig{URI: "  "}, "analysis", testLogger())
	err := m.Connect(context.Background())

	var cfgErr *store.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "mongodb.uri", cfgErr.Field)
}

func TestConnectPingFailure(t *testing.T) {
	restoreSeams(t)
	stub := stubMongoClient(t)
	connectMongo = func(*options.ClientOptions) (*mongo.Client, error) { return stub, nil }
	pingMongo = func(context.Context, *mongo.Client) error {
		return errors.New("server selection error")
	}

	m := NewManager(testConfig(), "analysis", testLogger())
	err := m.Connect(context.Background())

	var connErr *store.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "ping", connErr.Op)
	assert.Equal(t, store.Disconnected, m.State())
}

func TestConnectTimeoutIsDistinguishable(t *testing.T) {
	restoreSeams(t)
	stub := stubMongoClient(t)
	connectMongo = func(*options.ClientOptions) (*mongo.Client, error) { return stub, nil }
	pingMongo = func(ctx context.Context, _ *mongo.Client) error {
		<-ctx.Done()
		return ctx.Err()
	}

	cfg := testConfig()
	cfg.ConnectTimeout = 20 * time.Millisecond
	m := NewManager(cfg, "analysis", testLogger())

	err := m.Connect(context.Background())
	require.ErrorIs(t, err, store.ErrConnectTimeout)
	assert.Equal(t, store.Disconnected, m.State())
}

func TestHeartbeatDrivenStateTransitions(t *testing.T) {
	restoreSeams(t)
	stub := stubMongoClient(t)
	connectMongo = func(*options.ClientOptions) (*mongo.Client, error) { return stub, nil }
	pingMongo = func(context.Context, *mongo.Client) error { return nil }

	cfg := testConfig()
	cfg.MaxRetries = 3
	m := NewManager(cfg, "analysis", testLogger())
	require.NoError(t, m.Connect(context.Background()))

	m.onHeartbeatFailed(errors.New("socket closed"))
	assert.False(t, m.IsConnected())

	m.onHeartbeatSucceeded()
	assert.True(t, m.IsConnected())
}

func TestHeartbeatExhaustionIsSticky(t *testing.T) {
	restoreSeams(t)
	stub := stubMongoClient(t)
	connectMongo = func(*options.ClientOptions) (*mongo.Client, error) { return stub, nil }
	pingMongo = func(context.Context, *mongo.Client) error { return nil }

	cfg := testConfig()
	cfg.MaxRetries = 2
	m := NewManager(cfg, "analysis", testLogger())
	require.NoError(t, m.Connect(context.Background()))

	for i := 0; i < 3; i++ {
		m.onHeartbeatFailed(errors.New("socket closed"))
	}
	assert.False(t, m.IsConnected())

	// A late heartbeat success must not restore a manager that exhausted
	// its retry budget; only an explicit Connect may.
	m.onHeartbeatSucceeded()
	assert.False(t, m.IsConnected())

	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.IsConnected())
}

func TestConnectAfterExhaustionReleasesStaleClient(t *testing.T) {
	restoreSeams(t)
	first := stubMongoClient(t)
	second := stubMongoClient(t)
	var built atomic.Int32
	connectMongo = func(*options.ClientOptions) (*mongo.Client, error) {
		if built.Add(1) == 1 {
			return first, nil
		}
		return second, nil
	}
	pingMongo = func(context.Context, *mongo.Client) error { return nil }

	cfg := testConfig()
	cfg.MaxRetries = 2
	m := NewManager(cfg, "analysis", testLogger())
	require.NoError(t, m.Connect(context.Background()))

	for i := 0; i < 3; i++ {
		m.onHeartbeatFailed(errors.New("socket closed"))
	}
	require.False(t, m.IsConnected())

	// Reconnecting must release the abandoned client, not leak it.
	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.IsConnected())
	assert.ErrorIs(t, first.Disconnect(context.Background()), mongo.ErrClientDisconnected)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	restoreSeams(t)
	stub := stubMongoClient(t)
	connectMongo = func(*options.ClientOptions) (*mongo.Client, error) { return stub, nil }
	pingMongo = func(context.Context, *mongo.Client) error { return nil }

	m := NewManager(testConfig(), "analysis", testLogger())
	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Disconnect(context.Background()))
	assert.False(t, m.IsConnected())

	_, err := m.Database()
	assert.ErrorIs(t, err, store.ErrNotConnected)

	// Callbacks after an explicit disconnect are ignored.
	m.onHeartbeatSucceeded()
	assert.False(t, m.IsConnected())

	require.NoError(t, m.Disconnect(context.Background()))
}

func TestParseReadPreference(t *testing.T) {
	for _, pref := range []string{"primary", "primaryPreferred", "secondary", "secondaryPreferred", "nearest"} {
		_, err := parseReadPreference(pref)
		assert.NoError(t, err, pref)
	}

	_, err := parseReadPreference("fastest")
	assert.Error(t, err)
}
