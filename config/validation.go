package config

import (
	"fmt"
	"slices"
	"strings"
)

var validLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "disabled"}

// Validate checks the fields that must be sane for the process to start.
// Store URIs are deliberately not required here: a missing URI means the
// corresponding manager starts disconnected and the service runs degraded.
func Validate(cfg *Config) error {
	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateLog(&cfg.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	if cfg.Mongo.URI != "" && cfg.Mongo.Database == "" {
		return fmt.Errorf("mongodb config: database name is required when a URI is set")
	}

	if cfg.ML.TimeoutMS <= 0 {
		return fmt.Errorf("ml config: timeout must be positive")
	}

	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", cfg.Port)
	}

	if cfg.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}

	if cfg.RateWindowMS <= 0 {
		return fmt.Errorf("rate window must be positive")
	}

	return nil
}

func validateLog(cfg *LogConfig) error {
	if !slices.Contains(validLogLevels, strings.ToLower(cfg.Level)) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)",
			cfg.Level, strings.Join(validLogLevels, ", "))
	}

	return nil
}
