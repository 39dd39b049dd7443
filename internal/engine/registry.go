package engine

import (
	"math"
	"sync"
	"time"
)

// Registry owns every tracked entity plus the viewer position. It is the
// single structure mutated from more than one goroutine: producer adapters
// call Upsert/Remove/SetViewerPosition while the tick loop snapshots and
// writes back resolved state.
type Registry struct {
	mu        sync.Mutex
	entities  map[string]*TrackedEntity
	order     []string
	viewer    Vec3
	viewerSet bool
	pending   []LifecycleNotice
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*TrackedEntity)}
}

// Upsert creates the entity on first sight or refreshes position, last-seen,
// and label on subsequent updates. New entities start hidden with an
// unresolved distance.
func (r *Registry) Upsert(id string, pos Vec3, ts time.Time, label string) {
	if id == "" {
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entities[id]; ok {
		existing.Position = pos
		existing.LastSeen = ts
		existing.Connected = true
		if label != "" {
			existing.Label = label
		}
		return
	}

	if label == "" {
		label = id
	}
	r.entities[id] = &TrackedEntity{
		ID:         id,
		Label:      label,
		Position:   pos,
		LastSeen:   ts,
		Connected:  true,
		Visibility: VisibilityHidden,
		Distance:   math.Inf(1),
	}
	r.order = append(r.order, id)
	r.pending = append(r.pending, LifecycleNotice{ID: id, Label: label, Kind: LifecycleCreated})
}

// Remove drops an entity. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
}

func (r *Registry) removeLocked(id string) {
	entity, ok := r.entities[id]
	if !ok {
		return
	}
	delete(r.entities, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.pending = append(r.pending, LifecycleNotice{ID: id, Label: entity.Label, Kind: LifecycleRemoved})
}

// SweepStale removes entities whose last update is older than the timeout.
// A zero or negative timeout disables the sweep.
func (r *Registry) SweepStale(now time.Time, timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stale := make([]string, 0)
	for _, id := range r.order {
		if now.Sub(r.entities[id].LastSeen) > timeout {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		r.removeLocked(id)
	}
	return len(stale)
}

// Snapshot copies every entity in insertion order.
func (r *Registry) Snapshot() []TrackedEntity {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TrackedEntity, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.entities[id])
	}
	return out
}

// Get returns a copy of one entity.
func (r *Registry) Get(id string) (TrackedEntity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[id]
	if !ok {
		return TrackedEntity{}, false
	}
	return *entity, true
}

// SetViewerPosition records the local observer position.
func (r *Registry) SetViewerPosition(pos Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewer = pos
	r.viewerSet = true
}

// Viewer returns the observer position and whether one has been set.
func (r *Registry) Viewer() (Vec3, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewer, r.viewerSet
}

// ApplyResolved writes visibility, fade progress, and distance back after a
// tick. Position and last-seen stay untouched so producer updates that
// landed mid-tick are preserved. Entities removed mid-tick are skipped.
func (r *Registry) ApplyResolved(resolved []TrackedEntity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, next := range resolved {
		entity, ok := r.entities[next.ID]
		if !ok {
			continue
		}
		entity.Visibility = next.Visibility
		entity.FadeProgress = next.FadeProgress
		entity.Distance = next.Distance
	}
}

// DrainLifecycle returns and clears the notices accumulated since the last
// tick, in arrival order.
func (r *Registry) DrainLifecycle() []LifecycleNotice {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == 0 {
		return nil
	}
	drained := r.pending
	r.pending = nil
	return drained
}

// Len reports the number of tracked entities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entities)
}

// Clear empties the registry without emitting lifecycle notices. Used on
// engine shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = make(map[string]*TrackedEntity)
	r.order = nil
	r.pending = nil
	r.viewerSet = false
}
