package config

import (
	"time"

	"github.com/veracitylab/analysis-backend/store"
)

// Config is the root configuration for the analysis backend.
type Config struct {
	Server ServerConfig `koanf:"server"`
	Log    LogConfig    `koanf:"log"`
	Mongo  MongoConfig  `koanf:"mongodb"`
	Redis  RedisConfig  `koanf:"redis"`
	Cache  CacheConfig  `koanf:"cache"`
	ML     MLConfig     `koanf:"ml"`
}

// ServerConfig holds the HTTP listener and rate-limit settings.
type ServerConfig struct {
	Host            string `koanf:"host"`
	Port            int    `koanf:"port"`
	RateLimit       int64  `koanf:"ratelimit"`
	RateWindowMS    int    `koanf:"ratewindowms"`
	ShutdownSeconds int    `koanf:"shutdownseconds"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

// MongoConfig holds the document-store connection settings. An empty URI is
// allowed: the manager stays disconnected and the service runs degraded.
type MongoConfig struct {
	URI            string `koanf:"uri"`
	Database       string `koanf:"database"`
	PoolSize       int    `koanf:"poolsize"`
	RetryDelayMS   int    `koanf:"retrydelayms"`
	MaxRetries     int    `koanf:"maxretries"`
	ReadPreference string `koanf:"readpreference"`
}

// RedisConfig holds the cache-store connection settings. TLS and Cluster are
// pointers so an unset value defers to the connection-string scheme.
type RedisConfig struct {
	URL          string `koanf:"url"`
	TLS          *bool  `koanf:"tls"`
	Cluster      *bool  `koanf:"cluster"`
	Password     string `koanf:"password"`
	PoolSize     int    `koanf:"poolsize"`
	RetryDelayMS int    `koanf:"retrydelayms"`
	MaxRetries   int    `koanf:"maxretries"`
}

// CacheConfig holds cache-service settings.
type CacheConfig struct {
	DefaultTTLSeconds int `koanf:"defaultttlseconds"`
}

// MLConfig points at the external scoring service.
type MLConfig struct {
	URL       string `koanf:"url"`
	TimeoutMS int    `koanf:"timeoutms"`
}

// RateWindow returns the rate-limit window as a duration.
func (c *ServerConfig) RateWindow() time.Duration {
	return time.Duration(c.RateWindowMS) * time.Millisecond
}

// ShutdownTimeout returns the graceful-shutdown budget as a duration.
func (c *ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownSeconds) * time.Second
}

// DefaultTTL returns the cache default TTL as a duration. Unusable values are
// handled downstream by the cache service.
func (c *CacheConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

// Timeout returns the ML client timeout as a duration.
func (c *MLConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Connection maps the Redis section onto the shared connection config
// consumed by the cache-store manager.
func (c *RedisConfig) Connection() *store.ConnectionConfig {
	return &store.ConnectionConfig{
		URI:         c.URL,
		TLSEnabled:  c.TLS,
		ClusterMode: c.Cluster,
		Password:    c.Password,
		PoolSize:    c.PoolSize,
		RetryDelay:  time.Duration(c.RetryDelayMS) * time.Millisecond,
		MaxRetries:  c.MaxRetries,
	}
}

// Connection maps the MongoDB section onto the shared connection config
// consumed by the document-store manager.
func (c *MongoConfig) Connection() *store.ConnectionConfig {
	return &store.ConnectionConfig{
		URI:            c.URI,
		PoolSize:       c.PoolSize,
		RetryDelay:     time.Duration(c.RetryDelayMS) * time.Millisecond,
		MaxRetries:     c.MaxRetries,
		ReadPreference: c.ReadPreference,
	}
}
