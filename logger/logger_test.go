package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestInfoEmitsStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info")

	log.Info().
		Str("component", "cache").
		Int("attempt", 3).
		Bool("fallback", true).
		Msg("connected")

	entry := logLine(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "cache", entry["component"])
	assert.Equal(t, float64(3), entry["attempt"])
	assert.Equal(t, true, entry["fallback"])
	assert.Equal(t, "connected", entry["message"])
}

func TestErrAttachesError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug")

	log.Error().Err(errors.New("boom")).Msg("operation failed")

	entry := logLine(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")

	log.Debug().Msg("suppressed")
	log.Info().Msg("also suppressed")
	assert.Zero(t, buf.Len())

	log.Warn().Dur("elapsed", 50*time.Millisecond).Msg("kept")
	assert.NotZero(t, buf.Len())
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "nonsense")

	log.Debug().Msg("suppressed")
	assert.Zero(t, buf.Len())

	log.Info().Msg("kept")
	assert.NotZero(t, buf.Len())
}

func TestWithFieldsPersistAcrossEvents(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").WithFields(map[string]any{"service": "analysis-backend"})

	log.Info().Msg("first")

	entry := logLine(t, &buf)
	assert.Equal(t, "analysis-backend", entry["service"])
}
