package producer

import (
	"context"
	"testing"
	"time"

	"sightline/server/internal/engine"
)

type recordingSink struct {
	positions []string
	leaves    []string
	viewers   []engine.Vec3
	scales    []float64
}

func (s *recordingSink) OnPositionUpdate(id string, pos engine.Vec3, ts time.Time, label string) {
	s.positions = append(s.positions, id)
}

func (s *recordingSink) OnEntityLeft(id string) {
	s.leaves = append(s.leaves, id)
}

func (s *recordingSink) OnViewerPositionUpdate(pos engine.Vec3) {
	s.viewers = append(s.viewers, pos)
}

func (s *recordingSink) OnWorldScaleUpdate(scale float64) {
	s.scales = append(s.scales, scale)
}

func TestScriptedApplyPlaysFramesInOrder(t *testing.T) {
	viewer := engine.Vec3{X: 1}
	script := &Scripted{Frames: []Frame{
		{
			Viewer: &viewer,
			Scale:  2,
			Updates: []PositionUpdate{
				{ID: "a", Position: engine.Vec3{X: 5}},
				{ID: "b", Position: engine.Vec3{X: 9}},
			},
		},
		{
			Updates: []PositionUpdate{{ID: "a", Position: engine.Vec3{X: 4}}},
			Leaves:  []string{"b"},
		},
	}}

	sink := &recordingSink{}
	script.Apply(sink)

	wantPositions := []string{"a", "b", "a"}
	if len(sink.positions) != len(wantPositions) {
		t.Fatalf("expected %d position updates, got %d", len(wantPositions), len(sink.positions))
	}
	for i, id := range wantPositions {
		if sink.positions[i] != id {
			t.Fatalf("expected position order %v, got %v", wantPositions, sink.positions)
		}
	}
	if len(sink.leaves) != 1 || sink.leaves[0] != "b" {
		t.Fatalf("expected leave for b, got %v", sink.leaves)
	}
	if len(sink.viewers) != 1 || sink.viewers[0] != viewer {
		t.Fatalf("expected one viewer update, got %v", sink.viewers)
	}
	if len(sink.scales) != 1 || sink.scales[0] != 2 {
		t.Fatalf("expected one scale update, got %v", sink.scales)
	}
}

func TestScriptedStartHonorsContext(t *testing.T) {
	script := &Scripted{Frames: []Frame{
		{At: time.Hour, Updates: []PositionUpdate{{ID: "late"}}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &recordingSink{}
	if err := script.Start(ctx, sink); err == nil {
		t.Fatalf("expected context error")
	}
	if len(sink.positions) != 0 {
		t.Fatalf("no updates expected after cancellation, got %v", sink.positions)
	}
}
