package progress

import (
	"log/slog"
	"strconv"

	"sage/internal/logging"
)

// LogSink writes sampled progress events to a structured logger. Stage
// changes, percentage bucket crossings, and terminal events are logged;
// everything in between is suppressed.
type LogSink struct {
	logger  *slog.Logger
	sampler *logging.ProgressSampler
}

// NewLogSink wraps logger. bucket is the percentage step between log lines.
func NewLogSink(logger *slog.Logger, bucket float64) *LogSink {
	return &LogSink{
		logger:  logging.NewComponentLogger(logger, "progress"),
		sampler: logging.NewProgressSampler(bucket),
	}
}

func (s *LogSink) Append(evt Event) {
	key := strconv.FormatInt(evt.ItemID, 10)
	attrs := []logging.Attr{
		logging.Int64(logging.FieldItemID, evt.ItemID),
		logging.String(logging.FieldSourceID, evt.SourceID),
		logging.String(logging.FieldStage, evt.Stage),
		logging.String("status", evt.Status),
		logging.Float64("overall", evt.Overall),
		logging.String(logging.FieldEventType, "item_progress"),
	}
	if evt.Attempt > 1 {
		attrs = append(attrs, logging.Int("attempt", evt.Attempt))
	}
	if evt.Terminal {
		s.sampler.Forget(key)
		if evt.ErrorKind != "" {
			attrs = append(attrs,
				logging.String(logging.FieldErrorKind, evt.ErrorKind),
				logging.String("reason", evt.Message),
			)
			s.logger.Warn("item finished", logging.Args(attrs...)...)
			return
		}
		s.logger.Info("item finished", logging.Args(attrs...)...)
		return
	}
	if !s.sampler.ShouldLog(key, evt.Overall, evt.Stage+"/"+evt.Status) {
		return
	}
	if evt.Message != "" {
		attrs = append(attrs, logging.String("detail", evt.Message))
	}
	s.logger.Debug("item progress", logging.Args(attrs...)...)
}
