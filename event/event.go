// Package event defines the fire-and-forget structured event sink the
// core emits into. Telemetry and audit backends implement Sink;
// emission is never required to succeed for correctness, so
// implementations should drop rather than block.
package event

import "github.com/rs/zerolog"

// Sink receives structured events. Implementations must be safe for
// concurrent use and must not block the caller.
type Sink interface {
	Emit(name string, data map[string]any)
}

// NopSink discards all events. The default when no sink is injected.
type NopSink struct{}

// Emit discards the event.
func (NopSink) Emit(string, map[string]any) {}

// LogSink writes events to a zerolog logger at info level.
type LogSink struct {
	logger *zerolog.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(logger *zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs the event with its data as fields.
func (s *LogSink) Emit(name string, data map[string]any) {
	if s.logger == nil {
		return
	}
	s.logger.Info().Fields(data).Str("event", name).Msg("event")
}
