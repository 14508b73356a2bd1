// Package logger defines the structured logging contract used throughout the
// service and provides a zerolog-backed implementation.
package logger

import "time"

// Logger is the logging contract shared by every component. It produces
// LogEvent builders at the usual severity levels and supports attaching
// persistent fields.
type Logger interface {
	Debug() LogEvent
	Info() LogEvent
	Warn() LogEvent
	Error() LogEvent
	Fatal() LogEvent
	WithFields(fields map[string]any) Logger
}

// LogEvent is a structured log event under construction. Field methods return
// the event for chaining; Msg/Msgf finalize and emit it.
type LogEvent interface {
	Msg(msg string)
	Msgf(format string, args ...any)
	Err(err error) LogEvent
	Str(key, value string) LogEvent
	Int(key string, value int) LogEvent
	Int64(key string, value int64) LogEvent
	Bool(key string, value bool) LogEvent
	Dur(key string, d time.Duration) LogEvent
	Interface(key string, i any) LogEvent
}
