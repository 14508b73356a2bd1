// Package store defines the shared configuration, validation, and lifecycle
// types for the service's stateful dependencies (the Redis cache store and
// the MongoDB document store). Vendor-specific connection managers live in
// the store/redis and store/mongodb subpackages.
package store

// State describes the lifecycle of a single long-lived store connection.
//
// Valid transitions:
//
//	Disconnected -> Connecting   (Connect called)
//	Connecting   -> Connected    (ready check succeeded)
//	Connecting   -> Disconnected (validation failure, exhausted retries, timeout)
//	Connected    -> Disconnected (explicit Disconnect or lost-connection event)
type State int32

const (
	// Disconnected means no usable connection exists.
	Disconnected State = iota
	// Connecting means a connection attempt is in flight.
	Connecting
	// Connected means the ready check succeeded and the handle is usable.
	Connected
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Conn is the minimal introspection surface a connection manager exposes to
// code that only needs to know whether the dependency is usable.
type Conn interface {
	// IsConnected reflects the latest known state, including asynchronous
	// lost-connection notifications, not just the result of the last Connect.
	IsConnected() bool
	// State returns the current lifecycle state.
	State() State
}
