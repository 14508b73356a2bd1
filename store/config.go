package store

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Defaults applied by connection managers when a field is left unset.
const (
	// DefaultPoolSize is the connection pool size used when none is configured.
	DefaultPoolSize = 10

	// DefaultConnectTimeout is the hard wall-clock limit on the initial ready
	// check. Exceeding it is treated as a connection failure.
	DefaultConnectTimeout = 30 * time.Second

	// MaxRetryDelay caps the per-attempt reconnect backoff.
	MaxRetryDelay = 30 * time.Second

	// MaxPoolSize bounds the configurable pool size.
	MaxPoolSize = 100
)

// Read preferences accepted for the document store.
var ValidReadPreferences = []string{
	"primary",
	"primaryPreferred",
	"secondary",
	"secondaryPreferred",
	"nearest",
}

// Replication modes accepted for the document store.
var ValidReplicationModes = []string{
	"standalone",
	"replicaSet",
	"sharded",
}

// ConnectionConfig holds the validated, fully-resolved settings for one
// stateful dependency. It is built once at startup and owned by the
// connection manager for its lifetime.
type ConnectionConfig struct {
	// URI is the raw connection string for the dependency.
	URI string

	// TLSEnabled, when non-nil, overrides the TLS signal derived from the
	// URI scheme. The explicit override always wins.
	TLSEnabled *bool

	// ClusterMode, when non-nil, overrides the cluster signal derived from
	// the URI scheme.
	ClusterMode *bool

	// Password, when non-empty, overrides any password embedded in the URI.
	Password string

	// PoolSize is the maximum number of pooled connections. Zero means use
	// the manager default. Valid range is [1,100].
	PoolSize int

	// RetryDelay is the base delay of the reconnect backoff: attempt n waits
	// min(n*RetryDelay, MaxRetryDelay).
	RetryDelay time.Duration

	// MaxRetries bounds reconnect attempts after a lost connection. Once
	// exceeded the manager stays disconnected until an explicit Connect.
	MaxRetries int

	// ConnectTimeout is the hard limit on the initial ready check. Zero
	// means DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// ReadPreference selects the document-store read preference. Empty means
	// the driver default.
	ReadPreference string

	// ReplicationMode describes the document-store topology. Empty means
	// standalone.
	ReplicationMode string
}

// ValidationResult reports the outcome of configuration validation.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// ValidateConfig checks a partially-or-fully populated configuration for
// out-of-range or malformed values. Only fields that are set are validated,
// which supports incremental config building. The input is never mutated and
// validation never fails with an error of its own; problems are reported in
// the result.
func ValidateConfig(cfg *ConnectionConfig) ValidationResult {
	result := ValidationResult{Valid: true}
	if cfg == nil {
		return result
	}

	if cfg.PoolSize != 0 && (cfg.PoolSize < 1 || cfg.PoolSize > MaxPoolSize) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Pool size must be between 1 and %d, got %d", MaxPoolSize, cfg.PoolSize))
	}

	if cfg.RetryDelay < 0 {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Retry delay cannot be negative, got %s", cfg.RetryDelay))
	}

	if cfg.MaxRetries < 0 {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Max retries cannot be negative, got %d", cfg.MaxRetries))
	}

	if cfg.ReadPreference != "" && !slices.Contains(ValidReadPreferences, cfg.ReadPreference) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Invalid read preference %q (must be one of: %s)",
				cfg.ReadPreference, strings.Join(ValidReadPreferences, ", ")))
	}

	if cfg.ReplicationMode != "" && !slices.Contains(ValidReplicationModes, cfg.ReplicationMode) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Invalid replication mode %q (must be one of: %s)",
				cfg.ReplicationMode, strings.Join(ValidReplicationModes, ", ")))
	}

	result.Valid = len(result.Errors) == 0
	return result
}
