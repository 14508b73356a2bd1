package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for connection lifecycle handling.
// Use errors.Is() to check for these specific conditions.
var (
	// ErrNotConnected is returned when a handle is requested from a manager
	// that has no live connection. Callers on non-blocking paths should check
	// IsConnected() first; requesting the handle anyway is the escape hatch
	// for code already holding a connected guarantee.
	ErrNotConnected = errors.New("store: not connected")

	// ErrConnectTimeout is returned when the initial ready check does not
	// complete within the hard connect timeout. Callers can match on it to
	// continue startup in a degraded state.
	ErrConnectTimeout = errors.New("store: connect timed out")

	// ErrNotFound is returned when a key doesn't exist or has expired.
	// A cache miss, not a fault.
	ErrNotFound = errors.New("store: key not found")
)

// ConfigError represents a configuration failure during connection setup.
// Configuration errors are fatal for the attempt and are never retried.
type ConfigError struct {
	Field   string // Configuration field that failed validation
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store configuration error: %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("store configuration error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new configuration error.
func NewConfigError(field, message string, err error) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// ConnectionError represents a network-level connection failure.
// These may be transient; the manager's monitor retries them with backoff.
type ConnectionError struct {
	Op      string // Operation that failed (e.g., "dial", "ping")
	Address string // Store address
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("store connection error: %s failed for %s: %v", e.Op, e.Address, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NewConnectionError creates a new connection error.
func NewConnectionError(op, address string, err error) *ConnectionError {
	return &ConnectionError{
		Op:      op,
		Address: address,
		Err:     err,
	}
}
