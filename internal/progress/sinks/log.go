package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/siftcrawl/siftcrawl/internal/crawler"
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

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []crawler.ProgressEvent) error {
	for _, evt := range batch {
		s.logger.Info("progress event",
			zap.String("session_id", evt.SessionID),
			zap.String("type", evt.Type),
			zap.String("phase", string(evt.Phase)),
			zap.String("url", evt.URL),
			zap.Int("relevance", evt.Relevance),
			zap.Int("pages_used", evt.PagesUsed),
			zap.Int("budget", evt.Budget),
			zap.String("message", evt.Message),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
