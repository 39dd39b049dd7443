package telemetry

import "log"

// Metric keys shared between the engine, hub, and the counters that back the
// status endpoint.
const (
	MetricTicksProcessed     = "ticks_processed"
	MetricTicksSkipped       = "ticks_skipped"
	MetricTickDurationMicros = "tick_duration_micros"
	MetricEntitiesTracked    = "entities_tracked"
	MetricEntitiesVisible    = "entities_visible"
	MetricRecordsEmitted     = "records_emitted"
	MetricBatchesPublished   = "batches_published"
	MetricSubscribersDropped = "subscribers_dropped"
	MetricBytesSent          = "bytes_sent"
)

// Logger exposes the logging capability required by engine components.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// Metrics exposes the counter surface required by engine components.
// Add accumulates, Store overwrites a gauge.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

type nopMetrics struct{}

func (nopMetrics) Add(string, uint64)   {}
func (nopMetrics) Store(string, uint64) {}

// NopMetrics discards every measurement.
func NopMetrics() Metrics {
	return nopMetrics{}
}
