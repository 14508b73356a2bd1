package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// logEvent adapts a zerolog event to the LogEvent interface.
type logEvent struct {
	event *zerolog.Event
}

func (e *logEvent) Msg(msg string) {
	e.event.Msg(msg)
}

func (e *logEvent) Msgf(format string, args ...any) {
	e.event.Msgf(format, args...)
}

func (e *logEvent) Err(err error) LogEvent {
	return &logEvent{event: e.event.Err(err)}
}

func (e *logEvent) Str(key, value string) LogEvent {
	return &logEvent{event: e.event.Str(key, value)}
}

func (e *logEvent) Int(key string, value int) LogEvent {
	return &logEvent{event: e.event.Int(key, value)}
}

func (e *logEvent) Int64(key string, value int64) LogEvent {
	return &logEvent{event: e.event.Int64(key, value)}
}

func (e *logEvent) Bool(key string, value bool) LogEvent {
	return &logEvent{event: e.event.Bool(key, value)}
}

func (e *logEvent) Dur(key string, d time.Duration) LogEvent {
	return &logEvent{event: e.event.Dur(key, d)}
}

func (e *logEvent) Interface(key string, i any) LogEvent {
	return &logEvent{event: e.event.Interface(key, i)}
}
