package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"sightline/server/internal/telemetry"
	"sightline/server/logging"
	logvis "sightline/server/logging/visibility"
)

// ErrAlreadyRunning is returned by Start when the tick loop is live.
var ErrAlreadyRunning = errors.New("engine already running")

// Publisher receives one batch per tick that produced output. The engine
// closes it on Stop, which signals end-of-stream to every consumer.
type Publisher interface {
	Publish(Batch)
	Close()
}

type nopPublisher struct{}

func (nopPublisher) Publish(Batch) {}
func (nopPublisher) Close()        {}

// Engine drives the proximity pipeline: producer adapters mutate the
// registry, the tick loop resolves visibility on its own clock and hands
// change batches to the publisher.
type Engine struct {
	registry  *Registry
	publisher Publisher
	log       logging.Publisher
	metrics   telemetry.Metrics

	cfgMu sync.Mutex
	cfg   Config

	tick    atomic.Uint64
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// New validates and clamps the config and wires the engine. A nil publisher
// or metrics sink is replaced with a no-op.
func New(registry *Registry, publisher Publisher, log logging.Publisher, metrics telemetry.Metrics, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if log == nil {
		log = logging.NopPublisher()
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Engine{
		registry:  registry,
		publisher: publisher,
		log:       log,
		metrics:   metrics,
		cfg:       cfg.Normalized(),
	}, nil
}

// Registry exposes the entity registry for producer adapters and snapshots.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// ApplyConfig swaps the configuration for the next tick. Invalid configs are
// rejected and the previous configuration stays in effect.
func (e *Engine) ApplyConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		e.log.Publish(context.Background(), logging.Event{
			Type:     "system.config_rejected",
			Tick:     e.tick.Load(),
			Actor:    logging.EntityRef{Kind: logging.EntityKindEngine},
			Severity: logging.SeverityWarn,
			Category: logging.CategorySystem,
			Payload:  map[string]string{"error": err.Error()},
		})
		return err
	}
	normalized := cfg.Normalized()
	e.cfgMu.Lock()
	e.cfg = normalized
	e.cfgMu.Unlock()
	e.log.Publish(context.Background(), logging.Event{
		Type:     "system.config_applied",
		Tick:     e.tick.Load(),
		Actor:    logging.EntityRef{Kind: logging.EntityKindEngine},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
		Payload: map[string]any{
			"sightDistance":  normalized.SightDistance,
			"fadeDistance":   normalized.FadeDistance,
			"tickIntervalMs": normalized.TickInterval.Milliseconds(),
			"distanceMode":   normalized.DistanceMode,
		},
	})
	return nil
}

// ConfigSnapshot returns the configuration the next tick will use.
func (e *Engine) ConfigSnapshot() Config {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	return e.cfg
}

// Start launches the tick loop. It fails if the engine is already running.
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.run(e.stop, e.done)
	e.log.Publish(context.Background(), logging.Event{
		Type:     "system.engine_started",
		Actor:    logging.EntityRef{Kind: logging.EntityKindEngine},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
	})
	return nil
}

// Stop cancels the tick loop, closes the publisher (ending every subscriber
// stream), and clears the registry. Idempotent and safe from any goroutine.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	close(e.stop)
	<-e.done
	e.publisher.Close()
	e.registry.Clear()
	e.log.Publish(context.Background(), logging.Event{
		Type:     "system.engine_stopped",
		Tick:     e.tick.Load(),
		Actor:    logging.EntityRef{Kind: logging.EntityKindEngine},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
	})
}

// run owns all visibility recomputation. Ticks never overlap: processing
// happens inline, so a slow tick simply delays the select and the ticker's
// single-slot channel discards the ticks that came due meanwhile.
func (e *Engine) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := e.ConfigSnapshot().TickInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			start := time.Now()
			e.runTick(now)
			elapsed := time.Since(start)

			e.metrics.Store(telemetry.MetricTickDurationMicros, uint64(elapsed.Microseconds()))
			if elapsed > interval {
				skipped := int(elapsed / interval)
				e.metrics.Add(telemetry.MetricTicksSkipped, uint64(skipped))
				logvis.TickOverrun(context.Background(), e.log, e.tick.Load(), logvis.OverrunPayload{
					DurationMillis: elapsed.Milliseconds(),
					BudgetMillis:   interval.Milliseconds(),
					TicksSkipped:   skipped,
				})
			}

			if next := e.ConfigSnapshot().TickInterval; next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// runTick performs one resolution pass over the whole registry.
func (e *Engine) runTick(now time.Time) {
	tick := e.tick.Add(1)
	cfg := e.ConfigSnapshot()

	if cfg.StaleAfter > 0 {
		e.registry.SweepStale(now, cfg.StaleAfter)
	}

	lifecycle := e.registry.DrainLifecycle()
	entities := e.registry.Snapshot()

	var records []ChangeRecord
	visible := 0
	viewer, viewerSet := e.registry.Viewer()
	if viewerSet {
		resolver := cfg.resolver()
		resolved := make([]TrackedEntity, 0, len(entities))
		for _, entity := range entities {
			next := Resolve(entity, viewer, resolver)
			resolved = append(resolved, next)
			if next.FadeProgress > 0 {
				visible++
			}
			if !Changed(entity, next) {
				continue
			}
			records = append(records, ChangeRecord{
				ID:           next.ID,
				Visibility:   next.Visibility,
				FadeProgress: next.FadeProgress,
				Distance:     next.Distance,
			})
			logvis.Transition(context.Background(), e.log, tick,
				logging.EntityRef{ID: next.ID, Kind: logging.EntityKindEntity},
				logvis.TransitionPayload{
					From:         string(entity.Visibility),
					To:           string(next.Visibility),
					FadeProgress: next.FadeProgress,
					Distance:     next.Distance,
				})
		}
		e.registry.ApplyResolved(resolved)
	}

	for _, notice := range lifecycle {
		ref := logging.EntityRef{ID: notice.ID, Kind: logging.EntityKindEntity}
		switch notice.Kind {
		case LifecycleCreated:
			logvis.EntityTracked(context.Background(), e.log, tick, ref, notice.Label)
		case LifecycleRemoved:
			logvis.EntityRemoved(context.Background(), e.log, tick, ref, "left")
		}
	}

	e.metrics.Add(telemetry.MetricTicksProcessed, 1)
	e.metrics.Store(telemetry.MetricEntitiesTracked, uint64(len(entities)))
	e.metrics.Store(telemetry.MetricEntitiesVisible, uint64(visible))

	if len(records) == 0 && len(lifecycle) == 0 {
		return
	}
	e.metrics.Add(telemetry.MetricRecordsEmitted, uint64(len(records)))
	e.metrics.Add(telemetry.MetricBatchesPublished, 1)
	e.publisher.Publish(Batch{
		Tick:      tick,
		Time:      now,
		Records:   records,
		Lifecycle: lifecycle,
	})
}

// Snapshot returns the full state of every tracked entity, for polling
// consumers.
func (e *Engine) Snapshot() []TrackedEntity {
	return e.registry.Snapshot()
}

// Tick reports the number of processed ticks.
func (e *Engine) Tick() uint64 {
	return e.tick.Load()
}

// Stats aggregates counts for the pull-based status query.
func (e *Engine) Stats() Stats {
	cfg := e.ConfigSnapshot()
	entities := e.registry.Snapshot()
	_, viewerSet := e.registry.Viewer()

	visible := 0
	for _, entity := range entities {
		if entity.FadeProgress > 0 {
			visible++
		}
	}
	return Stats{
		Entities:       len(entities),
		Visible:        visible,
		Hidden:         len(entities) - visible,
		EffectiveSight: cfg.resolver().EffectiveSightDistance(),
		WorldScale:     cfg.WorldScale,
		ViewerSet:      viewerSet,
		Tick:           e.tick.Load(),
	}
}

// OnPositionUpdate implements the producer sink boundary.
func (e *Engine) OnPositionUpdate(id string, pos Vec3, ts time.Time, label string) {
	e.registry.Upsert(id, pos, ts, label)
}

// OnEntityLeft implements the producer sink boundary. Unknown ids are a
// no-op.
func (e *Engine) OnEntityLeft(id string) {
	e.registry.Remove(id)
}

// OnViewerPositionUpdate implements the producer sink boundary.
func (e *Engine) OnViewerPositionUpdate(pos Vec3) {
	e.registry.SetViewerPosition(pos)
}

// OnWorldScaleUpdate adjusts the world scale used for distance scaling.
// Non-positive scales are ignored.
func (e *Engine) OnWorldScaleUpdate(scale float64) {
	if scale <= 0 {
		return
	}
	e.cfgMu.Lock()
	e.cfg.WorldScale = scale
	e.cfgMu.Unlock()
}
