package host

import (
	"log/slog"

	"github.com/gguuttss/RadixPlaza/core/events"
	"github.com/gguuttss/RadixPlaza/core/types"
)

type typedEvent interface {
	Event() *types.Event
}

// LogEmitter writes every pair event as a structured log line.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter returns an emitter backed by logger.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit implements events.Emitter.
func (l *LogEmitter) Emit(evt events.Event) {
	if l == nil || evt == nil {
		return
	}
	if typed, ok := evt.(typedEvent); ok && typed.Event() != nil {
		l.logger.Info("pair event", typed.Event().LogArgs()...)
		return
	}
	l.logger.Info("pair event", "event", evt.EventType())
}
