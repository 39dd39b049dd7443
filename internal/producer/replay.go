package producer

import (
	"context"
	"math"
	"time"

	"sightline/server/internal/engine"
)

// PositionUpdate is one entity sample within a replay frame.
type PositionUpdate struct {
	ID       string
	Label    string
	Position engine.Vec3
}

// Frame groups the updates applied together at an offset from replay start.
type Frame struct {
	At      time.Duration
	Viewer  *engine.Vec3
	Scale   float64
	Updates []PositionUpdate
	Leaves  []string
}

// Scripted replays a fixed sequence of frames, waiting out the offsets
// between them. Used by tests and recorded traces.
type Scripted struct {
	Frames []Frame
}

// Start plays every frame into the sink, honoring frame offsets.
func (s *Scripted) Start(ctx context.Context, sink Sink) error {
	start := time.Now()
	for _, frame := range s.Frames {
		if wait := frame.At - time.Since(start); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.apply(frame, sink)
	}
	return nil
}

// Apply feeds every frame synchronously, ignoring offsets. Deterministic
// path for tests.
func (s *Scripted) Apply(sink Sink) {
	for _, frame := range s.Frames {
		s.apply(frame, sink)
	}
}

func (s *Scripted) apply(frame Frame, sink Sink) {
	now := time.Now()
	if frame.Viewer != nil {
		sink.OnViewerPositionUpdate(*frame.Viewer)
	}
	if frame.Scale > 0 {
		sink.OnWorldScaleUpdate(frame.Scale)
	}
	for _, update := range frame.Updates {
		sink.OnPositionUpdate(update.ID, update.Position, now, update.Label)
	}
	for _, id := range frame.Leaves {
		sink.OnEntityLeft(id)
	}
}

// Synthetic generates a handful of avatars orbiting the viewer at different
// radii so every visibility band stays exercised. Demo mode only.
type Synthetic struct {
	Entities int
	Interval time.Duration
}

// Start emits orbit updates until the context is canceled.
func (s *Synthetic) Start(ctx context.Context, sink Sink) error {
	count := s.Entities
	if count <= 0 {
		count = 4
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	sink.OnViewerPositionUpdate(engine.Vec3{})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			elapsed := now.Sub(start).Seconds()
			for i := 0; i < count; i++ {
				phase := elapsed*0.4 + float64(i)*2*math.Pi/float64(count)
				// Radius swings through the fade band and beyond.
				radius := 6 + 8*math.Sin(elapsed*0.2+float64(i))
				if radius < 0 {
					radius = -radius
				}
				sink.OnPositionUpdate(
					syntheticID(i),
					engine.Vec3{X: radius * math.Cos(phase), Z: radius * math.Sin(phase)},
					now,
					"",
				)
			}
		}
	}
}

func syntheticID(i int) string {
	return "demo-avatar-" + string(rune('a'+i%26))
}
