// Package redis implements the connection manager for the Redis cache store,
// including the connection-string parser and the key-value and counter
// operations the cache and rate-limit layers are built on.
package redis

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Recognized scheme families.
const (
	SchemePlain   = "redis"
	SchemeTLS     = "rediss"
	SchemeCluster = "redis-cluster"

	// DefaultPort is the well-known Redis port, used when the URI omits one.
	DefaultPort = 6379
)

// StoreURI is a parsed Redis connection string. It is an immutable value
// produced once per connection attempt.
type StoreURI struct {
	Scheme   string
	Host     string
	Port     int
	Password string

	// DatabaseIndex is the numeric path segment, when present. Nil means
	// unspecified; callers must not conflate that with index 0.
	DatabaseIndex *int

	// TLSEnabled is derived from the scheme. An explicit configuration
	// override, when set, wins over this value.
	TLSEnabled bool

	// Cluster is true for the cluster-implying scheme. Cluster-ness is not
	// a TLS signal.
	Cluster bool
}

// Address returns the host:port pair for the transport client.
func (u *StoreURI) Address() string {
	return fmt.Sprintf("%s:%d", u.Host, u.Port)
}

// Parse parses an arbitrary string into a StoreURI. It returns nil for empty,
// whitespace-only, or malformed input and never panics; callers treat nil as
// "not parseable".
func Parse(raw string) *StoreURI {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	cluster := false
	switch {
	case strings.HasPrefix(trimmed, SchemeCluster+"://"):
		// Rewrite to the plain wire form before generic parsing. Cluster-ness
		// is tracked separately.
		trimmed = SchemePlain + "://" + strings.TrimPrefix(trimmed, SchemeCluster+"://")
		cluster = true
	case strings.HasPrefix(trimmed, SchemePlain+"://"), strings.HasPrefix(trimmed, SchemeTLS+"://"):
	case strings.Contains(trimmed, "://"):
		// Unrecognized scheme.
		return nil
	default:
		// Bare host[:port] form.
		trimmed = SchemePlain + "://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Hostname() == "" {
		return nil
	}

	port := DefaultPort
	if p := parsed.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil
		}
	}

	uri := &StoreURI{
		Scheme:     parsed.Scheme,
		Host:       parsed.Hostname(),
		Port:       port,
		TLSEnabled: parsed.Scheme == SchemeTLS,
		Cluster:    cluster,
	}

	if parsed.User != nil {
		// Extracted verbatim: case-sensitive, no normalization.
		if password, ok := parsed.User.Password(); ok {
			uri.Password = password
		}
	}

	if path := strings.TrimPrefix(parsed.Path, "/"); path != "" {
		if index, convErr := strconv.Atoi(path); convErr == nil {
			uri.DatabaseIndex = &index
		}
	}

	return uri
}
