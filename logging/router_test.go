package logging_test

import (
	"context"
	"testing"
	"time"

	"sightline/server/logging"
	"sightline/server/logging/sinks"
)

func newMemoryRouter(t *testing.T, cfg logging.Config) (*logging.Router, *sinks.Memory) {
	t.Helper()
	memory := sinks.NewMemory()
	router, err := logging.NewRouter(nil, cfg, []logging.NamedSink{{Name: "memory", Sink: memory}})
	if err != nil {
		t.Fatalf("router construction failed: %v", err)
	}
	return router, memory
}

func closeRouter(t *testing.T, router *logging.Router) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("router close failed: %v", err)
	}
}

func TestRouterDeliversEventsToSink(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityDebug
	router, memory := newMemoryRouter(t, cfg)

	for tick := uint64(1); tick <= 3; tick++ {
		router.Publish(context.Background(), logging.Event{
			Type:     "visibility.transition",
			Tick:     tick,
			Severity: logging.SeverityDebug,
			Category: logging.CategoryVisibility,
		})
	}
	closeRouter(t, router)

	events := memory.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events after drain, got %d", len(events))
	}
	for i, event := range events {
		if event.Tick != uint64(i+1) {
			t.Fatalf("events out of order: %+v", events)
		}
		if event.Time.IsZero() {
			t.Fatalf("router must stamp event time")
		}
	}

	stats := router.Stats()
	if stats.EventsTotal != 3 || stats.DroppedTotal != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityWarn
	router, memory := newMemoryRouter(t, cfg)

	router.Publish(context.Background(), logging.Event{Type: "a", Severity: logging.SeverityDebug})
	router.Publish(context.Background(), logging.Event{Type: "b", Severity: logging.SeverityInfo})
	router.Publish(context.Background(), logging.Event{Type: "c", Severity: logging.SeverityError})
	closeRouter(t, router)

	events := memory.Events()
	if len(events) != 1 {
		t.Fatalf("expected only the error event, got %d", len(events))
	}
	if events[0].Type != "c" {
		t.Fatalf("unexpected surviving event %+v", events[0])
	}
}

func TestRouterMergesConfiguredFields(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.Fields = map[string]any{"service": "sightline"}
	router, memory := newMemoryRouter(t, cfg)

	router.Publish(context.Background(), logging.Event{
		Type:     "system.config_applied",
		Severity: logging.SeverityInfo,
	})
	router.Publish(context.Background(), logging.Event{
		Type:     "system.config_applied",
		Severity: logging.SeverityInfo,
		Extra:    map[string]any{"service": "override"},
	})
	closeRouter(t, router)

	events := memory.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Extra["service"] != "sightline" {
		t.Fatalf("configured field missing: %+v", events[0].Extra)
	}
	if events[1].Extra["service"] != "override" {
		t.Fatalf("event-set field must win: %+v", events[1].Extra)
	}
}

func TestRouterIgnoresUntypedAndPostCloseEvents(t *testing.T) {
	router, memory := newMemoryRouter(t, logging.DefaultConfig())

	router.Publish(context.Background(), logging.Event{Severity: logging.SeverityError})
	closeRouter(t, router)
	router.Publish(context.Background(), logging.Event{Type: "late", Severity: logging.SeverityError})

	if events := memory.Events(); len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
}

func TestWithFieldsDecoratesPublisher(t *testing.T) {
	var captured logging.Event
	base := logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		captured = event
	})

	decorated := logging.WithFields(base, map[string]any{"world": "midnight-rooftop"})
	decorated.Publish(context.Background(), logging.Event{Type: "visibility.entity_tracked"})

	if captured.Extra["world"] != "midnight-rooftop" {
		t.Fatalf("expected decorated field, got %+v", captured.Extra)
	}
}
