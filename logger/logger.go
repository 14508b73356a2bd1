package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZeroLogger implements Logger on top of zerolog.
type ZeroLogger struct {
	zlog *zerolog.Logger
}

// Ensure ZeroLogger implements the interface
var _ Logger = (*ZeroLogger)(nil)

// New creates a ZeroLogger writing JSON to stdout at the given level.
// If pretty is true, output is formatted for human readability instead.
// An unparseable level falls back to info.
func New(level string, pretty bool) *ZeroLogger {
	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	l := zerolog.New(out).With().Timestamp().Logger()

	zLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zLevel = zerolog.InfoLevel
	}
	l = l.Level(zLevel)

	return &ZeroLogger{zlog: &l}
}

// NewWriter creates a ZeroLogger writing to an arbitrary writer.
// Used by tests to capture output.
func NewWriter(w io.Writer, level string) *ZeroLogger {
	l := zerolog.New(w).With().Timestamp().Logger()

	zLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zLevel = zerolog.InfoLevel
	}
	l = l.Level(zLevel)

	return &ZeroLogger{zlog: &l}
}

// Debug starts a debug-level event.
func (l *ZeroLogger) Debug() LogEvent {
	return &logEvent{event: l.zlog.Debug()}
}

// Info starts an info-level event.
func (l *ZeroLogger) Info() LogEvent {
	return &logEvent{event: l.zlog.Info()}
}

// Warn starts a warn-level event.
func (l *ZeroLogger) Warn() LogEvent {
	return &logEvent{event: l.zlog.Warn()}
}

// Error starts an error-level event.
func (l *ZeroLogger) Error() LogEvent {
	return &logEvent{event: l.zlog.Error()}
}

// Fatal starts a fatal-level event; Msg terminates the process.
func (l *ZeroLogger) Fatal() LogEvent {
	return &logEvent{event: l.zlog.Fatal()}
}

// WithFields returns a logger with additional fields attached to all entries.
func (l *ZeroLogger) WithFields(fields map[string]any) Logger {
	log := l.zlog.With().Fields(fields).Logger()
	return &ZeroLogger{zlog: &log}
}
