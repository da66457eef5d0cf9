package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/progress"
)

// LogSink emits structured logs for debugging progress streams. It is useful
// during development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Name identifies the sink in hub logs.
func (s *LogSink) Name() string { return "log" }

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("session_id", evt.SessionID),
			zap.String("stage", string(evt.Stage)),
			zap.String("status", string(evt.Status)),
			zap.Int("total", evt.Total),
		}
		if evt.Platform != "" {
			fields = append(fields,
				zap.String("platform", evt.Platform),
				zap.Int("added", len(evt.Added)),
				zap.Int("returned", evt.Returned),
			)
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
