// Package config loads and validates service configuration from defaults, an
// optional YAML file, and environment variables, in increasing priority.
package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envKeys maps the flat environment variables the deployment sets onto dotted
// koanf keys. Variables outside this table are ignored so unrelated process
// environment never leaks into the config tree.
var envKeys = map[string]string{
	"SERVER_HOST":               "server.host",
	"SERVER_PORT":               "server.port",
	"RATE_LIMIT":                "server.ratelimit",
	"RATE_WINDOW_MS":            "server.ratewindowms",
	"LOG_LEVEL":                 "log.level",
	"LOG_PRETTY":                "log.pretty",
	"MONGODB_URI":               "mongodb.uri",
	"MONGODB_DATABASE":          "mongodb.database",
	"MONGODB_POOL_SIZE":         "mongodb.poolsize",
	"MONGODB_RETRY_DELAY_MS":    "mongodb.retrydelayms",
	"MONGODB_MAX_RETRIES":       "mongodb.maxretries",
	"MONGODB_READ_PREFERENCE":   "mongodb.readpreference",
	"REDIS_URL":                 "redis.url",
	"REDIS_TLS":                 "redis.tls",
	"REDIS_CLUSTER":             "redis.cluster",
	"REDIS_PASSWORD":            "redis.password",
	"REDIS_POOL_SIZE":           "redis.poolsize",
	"REDIS_RETRY_DELAY_MS":      "redis.retrydelayms",
	"REDIS_MAX_RETRIES":         "redis.maxretries",
	"CACHE_DEFAULT_TTL_SECONDS": "cache.defaultttlseconds",
	"ML_SERVICE_URL":            "ml.url",
	"ML_TIMEOUT_MS":             "ml.timeoutms",
}

// Load builds the configuration with priority:
// 1. Environment variables (highest)
// 2. config.yaml, when present
// 3. Built-in defaults (lowest)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// The YAML file is optional.
	if err := k.Load(file.Provider("config.yaml"), yaml.Parser()); err != nil {
		fmt.Printf("Warning: could not load config.yaml: %v\n", err)
	}

	if err := k.Load(envprovider.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"server.host":            "0.0.0.0",
		"server.port":            3000,
		"server.ratelimit":       100,
		"server.ratewindowms":    60000,
		"server.shutdownseconds": 10,

		"log.level":  "info",
		"log.pretty": false,

		// Store URIs have no defaults: the managers start disconnected and
		// the service runs degraded until they are configured.
		"mongodb.database":     "analysis",
		"mongodb.poolsize":     10,
		"mongodb.retrydelayms": 1000,
		"mongodb.maxretries":   3,

		"redis.poolsize":     10,
		"redis.retrydelayms": 1000,
		"redis.maxretries":   3,

		"cache.defaultttlseconds": 3600,

		"ml.timeoutms": 5000,
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
