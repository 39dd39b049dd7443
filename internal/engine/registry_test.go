package engine

import (
	"math"
	"testing"
	"time"
)

func TestRegistryUpsertCreatesHiddenEntity(t *testing.T) {
	registry := NewRegistry()
	now := time.Now()

	registry.Upsert("avatar-1", Vec3{X: 3}, now, "Alice")

	entity, ok := registry.Get("avatar-1")
	if !ok {
		t.Fatalf("expected entity to exist after upsert")
	}
	if entity.Visibility != VisibilityHidden {
		t.Fatalf("new entity should start hidden, got %s", entity.Visibility)
	}
	if entity.FadeProgress != 0 {
		t.Fatalf("new entity should start with fadeProgress 0, got %v", entity.FadeProgress)
	}
	if !math.IsInf(entity.Distance, 1) {
		t.Fatalf("new entity distance should be +Inf, got %v", entity.Distance)
	}
	if !entity.Connected {
		t.Fatalf("entity with one update should be connected")
	}
	if entity.Label != "Alice" {
		t.Fatalf("expected label Alice, got %q", entity.Label)
	}
}

func TestRegistryUpsertUpdatesInPlace(t *testing.T) {
	registry := NewRegistry()
	first := time.Now()
	registry.Upsert("avatar-1", Vec3{X: 3}, first, "")

	later := first.Add(time.Second)
	registry.Upsert("avatar-1", Vec3{X: 5}, later, "Alice")

	if registry.Len() != 1 {
		t.Fatalf("upsert must never duplicate an id, len=%d", registry.Len())
	}
	entity, _ := registry.Get("avatar-1")
	if entity.Position.X != 5 {
		t.Fatalf("expected position update, got %v", entity.Position.X)
	}
	if !entity.LastSeen.Equal(later) {
		t.Fatalf("expected lastSeen update, got %v", entity.LastSeen)
	}
	if entity.Label != "Alice" {
		t.Fatalf("expected label refresh, got %q", entity.Label)
	}
}

func TestRegistrySnapshotInsertionOrder(t *testing.T) {
	registry := NewRegistry()
	now := time.Now()
	for _, id := range []string{"c", "a", "b"} {
		registry.Upsert(id, Vec3{}, now, "")
	}
	registry.Remove("a")
	registry.Upsert("a", Vec3{}, now, "")

	snapshot := registry.Snapshot()
	got := make([]string, 0, len(snapshot))
	for _, entity := range snapshot {
		got = append(got, entity.ID)
	}

	want := []string{"c", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entities, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestRegistrySnapshotCopies(t *testing.T) {
	registry := NewRegistry()
	registry.Upsert("avatar-1", Vec3{X: 1}, time.Now(), "")

	snapshot := registry.Snapshot()
	snapshot[0].Position.X = 99
	snapshot[0].Visibility = VisibilityVisible

	entity, _ := registry.Get("avatar-1")
	if entity.Position.X != 1 || entity.Visibility != VisibilityHidden {
		t.Fatalf("mutating a snapshot must not affect the registry")
	}
}

func TestRegistryRemoveUnknownIsNoOp(t *testing.T) {
	registry := NewRegistry()
	registry.Remove("never-seen")

	if registry.Len() != 0 {
		t.Fatalf("expected empty registry")
	}
	if notices := registry.DrainLifecycle(); len(notices) != 0 {
		t.Fatalf("removing an unknown id must not emit lifecycle notices, got %v", notices)
	}
}

func TestRegistryLifecycleNotices(t *testing.T) {
	registry := NewRegistry()
	now := time.Now()
	registry.Upsert("avatar-1", Vec3{}, now, "Alice")
	registry.Remove("avatar-1")

	notices := registry.DrainLifecycle()
	if len(notices) != 2 {
		t.Fatalf("expected created+removed notices, got %d", len(notices))
	}
	if notices[0].Kind != LifecycleCreated || notices[0].ID != "avatar-1" {
		t.Fatalf("unexpected first notice: %+v", notices[0])
	}
	if notices[1].Kind != LifecycleRemoved {
		t.Fatalf("unexpected second notice: %+v", notices[1])
	}

	if again := registry.DrainLifecycle(); len(again) != 0 {
		t.Fatalf("drain must clear pending notices, got %v", again)
	}
}

func TestRegistrySweepStale(t *testing.T) {
	registry := NewRegistry()
	now := time.Now()
	registry.Upsert("old", Vec3{}, now.Add(-10*time.Second), "")
	registry.Upsert("fresh", Vec3{}, now, "")

	removed := registry.SweepStale(now, 5*time.Second)
	if removed != 1 {
		t.Fatalf("expected 1 stale removal, got %d", removed)
	}
	if _, ok := registry.Get("old"); ok {
		t.Fatalf("stale entity should be gone")
	}
	if _, ok := registry.Get("fresh"); !ok {
		t.Fatalf("fresh entity should remain")
	}

	if removed := registry.SweepStale(now, 0); removed != 0 {
		t.Fatalf("zero timeout must disable the sweep")
	}
}

func TestRegistryApplyResolvedSkipsRemoved(t *testing.T) {
	registry := NewRegistry()
	now := time.Now()
	registry.Upsert("a", Vec3{X: 1}, now, "")
	registry.Upsert("b", Vec3{X: 2}, now, "")

	resolved := registry.Snapshot()
	for i := range resolved {
		resolved[i].Visibility = VisibilityVisible
		resolved[i].FadeProgress = 1
		resolved[i].Distance = 1
	}
	registry.Remove("b")
	registry.ApplyResolved(resolved)

	a, _ := registry.Get("a")
	if a.Visibility != VisibilityVisible || a.Distance != 1 {
		t.Fatalf("resolved state not applied: %+v", a)
	}
	if _, ok := registry.Get("b"); ok {
		t.Fatalf("entity removed mid-tick must stay removed")
	}
}

func TestRegistryViewer(t *testing.T) {
	registry := NewRegistry()
	if _, ok := registry.Viewer(); ok {
		t.Fatalf("viewer should be unset initially")
	}

	registry.SetViewerPosition(Vec3{X: 1, Y: 2, Z: 3})
	viewer, ok := registry.Viewer()
	if !ok {
		t.Fatalf("viewer should be set")
	}
	if viewer != (Vec3{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("unexpected viewer position %+v", viewer)
	}
}
