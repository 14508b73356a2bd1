package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateConfigEmptyIsValid(t *testing.T) {
	result := ValidateConfig(&ConnectionConfig{})
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateConfigNilIsValid(t *testing.T) {
	result := ValidateConfig(nil)
	assert.True(t, result.Valid)
}

func TestValidateConfigPoolSizeBounds(t *testing.T) {
	tests := []struct {
		name     string
		poolSize int
		valid    bool
	}{
		{"lower bound", 1, true},
		{"upper bound", 100, true},
		{"typical", 10, true},
		{"unset", 0, true},
		{"negative", -1, false},
		{"too large", 101, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateConfig(&ConnectionConfig{PoolSize: tt.poolSize})
			assert.Equal(t, tt.valid, result.Valid)
			if !tt.valid {
				assert.Contains(t, result.Errors[0], "Pool size")
			}
		})
	}
}

func TestValidateConfigNegativeRetrySettings(t *testing.T) {
	result := ValidateConfig(&ConnectionConfig{
		RetryDelay: -1 * time.Second,
		MaxRetries: -3,
	})
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Retry delay")
	assert.Contains(t, result.Errors[1], "Max retries")
}

func TestValidateConfigReadPreference(t *testing.T) {
	for _, pref := range ValidReadPreferences {
		result := ValidateConfig(&ConnectionConfig{ReadPreference: pref})
		assert.True(t, result.Valid, "expected %q to be valid", pref)
	}

	result := ValidateConfig(&ConnectionConfig{ReadPreference: "fastest"})
	assert.False(t, result.Valid)
	// The message should enumerate the valid set so operators can self-serve.
	for _, pref := range ValidReadPreferences {
		assert.Contains(t, result.Errors[0], pref)
	}
}

func TestValidateConfigReplicationMode(t *testing.T) {
	result := ValidateConfig(&ConnectionConfig{ReplicationMode: "multi-master"})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "replication mode")
	for _, mode := range ValidReplicationModes {
		assert.Contains(t, result.Errors[0], mode)
	}
}

func TestValidateConfigAccumulatesErrors(t *testing.T) {
	result := ValidateConfig(&ConnectionConfig{
		PoolSize:       500,
		RetryDelay:     -1,
		ReadPreference: "bogus",
	})
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 3)
}

func TestValidateConfigDoesNotMutateInput(t *testing.T) {
	cfg := &ConnectionConfig{PoolSize: 101, ReadPreference: "bogus"}
	before := *cfg
	_ = ValidateConfig(cfg)
	assert.Equal(t, before, *cfg)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "unknown", State(99).String())
}
