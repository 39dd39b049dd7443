package main

import (
	"sync/atomic"
	"time"

	"sightline/server/internal/telemetry"
)

// telemetryCounters backs the /status endpoint. It satisfies
// telemetry.Metrics so the engine and hub can record without importing main.
type telemetryCounters struct {
	ticksProcessed     atomic.Uint64
	ticksSkipped       atomic.Uint64
	lastTickMicros     atomic.Uint64
	totalTickMicros    atomic.Uint64
	entitiesTracked    atomic.Uint64
	entitiesVisible    atomic.Uint64
	recordsEmitted     atomic.Uint64
	batchesPublished   atomic.Uint64
	subscribersDropped atomic.Uint64
	bytesSent          atomic.Uint64
}

type telemetrySnapshot struct {
	TicksProcessed     uint64 `json:"ticksProcessed"`
	TicksSkipped       uint64 `json:"ticksSkipped"`
	LastTickMicros     uint64 `json:"lastTickMicros"`
	AvgTickMicros      uint64 `json:"avgTickMicros"`
	EntitiesTracked    uint64 `json:"entitiesTracked"`
	EntitiesVisible    uint64 `json:"entitiesVisible"`
	RecordsEmitted     uint64 `json:"recordsEmitted"`
	BatchesPublished   uint64 `json:"batchesPublished"`
	SubscribersDropped uint64 `json:"subscribersDropped"`
	BytesSent          uint64 `json:"bytesSent"`
}

func newTelemetryCounters() *telemetryCounters {
	return &telemetryCounters{}
}

// Add implements telemetry.Metrics.
func (t *telemetryCounters) Add(key string, delta uint64) {
	switch key {
	case telemetry.MetricTicksProcessed:
		t.ticksProcessed.Add(delta)
	case telemetry.MetricTicksSkipped:
		t.ticksSkipped.Add(delta)
	case telemetry.MetricRecordsEmitted:
		t.recordsEmitted.Add(delta)
	case telemetry.MetricBatchesPublished:
		t.batchesPublished.Add(delta)
	case telemetry.MetricSubscribersDropped:
		t.subscribersDropped.Add(delta)
	case telemetry.MetricBytesSent:
		t.bytesSent.Add(delta)
	}
}

// Store implements telemetry.Metrics.
func (t *telemetryCounters) Store(key string, value uint64) {
	switch key {
	case telemetry.MetricTickDurationMicros:
		t.lastTickMicros.Store(value)
		t.totalTickMicros.Add(value)
	case telemetry.MetricEntitiesTracked:
		t.entitiesTracked.Store(value)
	case telemetry.MetricEntitiesVisible:
		t.entitiesVisible.Store(value)
	}
}

// RecordBroadcast accounts bytes written to one subscriber connection.
func (t *telemetryCounters) RecordBroadcast(bytes int) {
	if bytes < 0 {
		return
	}
	t.bytesSent.Add(uint64(bytes))
}

// RecordTickDuration is a convenience used by tests.
func (t *telemetryCounters) RecordTickDuration(d time.Duration) {
	t.Store(telemetry.MetricTickDurationMicros, uint64(d.Microseconds()))
}

func (t *telemetryCounters) Snapshot() telemetrySnapshot {
	ticks := t.ticksProcessed.Load()
	var avg uint64
	if ticks > 0 {
		avg = t.totalTickMicros.Load() / ticks
	}
	return telemetrySnapshot{
		TicksProcessed:     ticks,
		TicksSkipped:       t.ticksSkipped.Load(),
		LastTickMicros:     t.lastTickMicros.Load(),
		AvgTickMicros:      avg,
		EntitiesTracked:    t.entitiesTracked.Load(),
		EntitiesVisible:    t.entitiesVisible.Load(),
		RecordsEmitted:     t.recordsEmitted.Load(),
		BatchesPublished:   t.batchesPublished.Load(),
		SubscribersDropped: t.subscribersDropped.Load(),
		BytesSent:          t.bytesSent.Load(),
	}
}
