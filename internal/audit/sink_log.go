package audit

import (
	"context"
	"log/slog"
)

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Append(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, "audit",
		"action", event.Action,
		"license_id", event.LicenseID,
		"name", event.Name,
		"status", event.Status,
		"run_id", event.RunID,
		"detail", event.Detail,
	)
	return nil
}
