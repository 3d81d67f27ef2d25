package telemetry

import (
	"github.com/n5hz/wavetuner/internal/logging"
)

// LogReporter writes tuning samples through the structured logger instead
// of recording them; useful when no web or metrics sink is configured.
type LogReporter struct {
	logger logging.Logger
}

// NewLogReporter builds a reporter that writes to logger (or the process
// default if nil).
func NewLogReporter(logger logging.Logger) LogReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return LogReporter{logger: logger}
}

func (r LogReporter) Report(s Sample) {
	fields := []logging.Field{
		{Key: "subsystem", Value: "telemetry"},
		{Key: "run_id", Value: s.RunID},
		{Key: "state", Value: s.State},
		{Key: "gain", Value: s.Gain},
	}
	if s.Device != "" {
		fields = append(fields, logging.Field{Key: "device", Value: s.Device})
	}
	if s.ReadingDB != 0 {
		fields = append(fields, logging.Field{Key: "reading_dbm", Value: s.ReadingDB})
	}
	r.logger.Debug("tuning sample", fields...)
}
