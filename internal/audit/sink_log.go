package audit

import (
	"context"
	"log/slog"
)

// LogSink writes each event as one structured log line. It is the sink used
// when no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Append(ctx context.Context, event Event) error {
	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("action", string(event.Action)),
		slog.String("country", event.Country),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.PreviousCountry != "" {
		attrs = append(attrs, slog.String("previous_country", event.PreviousCountry))
	}
	if event.Action != ActionCountryDeleted {
		attrs = append(attrs,
			slog.String("capital", event.Capital),
			slog.Int64("population", event.Population),
		)
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "country changed", attrs...)
	return nil
}
