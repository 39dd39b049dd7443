// Package producer defines the boundary between position sources and the
// proximity engine. Concrete acquisition backends (OSC listener, log tailer,
// vision detector) live outside the engine and push normalized updates
// through the Sink interface.
package producer

import (
	"context"
	"time"

	"sightline/server/internal/engine"
)

// Sink is what the engine exposes to producer adapters.
type Sink interface {
	// OnPositionUpdate reports a remote entity position. An empty label
	// keeps the previous one.
	OnPositionUpdate(id string, pos engine.Vec3, ts time.Time, label string)
	// OnEntityLeft reports an explicit departure. Unknown ids are a no-op.
	OnEntityLeft(id string)
	// OnViewerPositionUpdate reports the local observer position.
	OnViewerPositionUpdate(pos engine.Vec3)
	// OnWorldScaleUpdate reports a change of the world's scale factor.
	OnWorldScaleUpdate(scale float64)
}

// Adapter is a position source. Start blocks until the context is canceled
// or the source fails; sources retry and reconnect per their own policy.
type Adapter interface {
	Start(ctx context.Context, sink Sink) error
}
