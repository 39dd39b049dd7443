package engine

import "time"

// Vec3 is a point in meters relative to the local viewer's world origin.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// VisibilityState enumerates the fade state machine for a tracked entity.
type VisibilityState string

const (
	VisibilityHidden    VisibilityState = "hidden"
	VisibilityFadingIn  VisibilityState = "fading_in"
	VisibilityVisible   VisibilityState = "visible"
	VisibilityFadingOut VisibilityState = "fading_out"
)

// TrackedEntity is the registry's view of one remote avatar.
//
// Distance starts at +Inf until the first tick resolves it, so callers that
// serialize snapshots must translate the sentinel themselves.
type TrackedEntity struct {
	ID           string
	Label        string
	Position     Vec3
	LastSeen     time.Time
	Connected    bool
	Visibility   VisibilityState
	FadeProgress float64
	Distance     float64
}

// ChangeRecord captures one entity whose visibility output changed this tick.
type ChangeRecord struct {
	ID           string
	Visibility   VisibilityState
	FadeProgress float64
	Distance     float64
}

// LifecycleKind marks entity creation and removal notices.
type LifecycleKind string

const (
	LifecycleCreated LifecycleKind = "created"
	LifecycleRemoved LifecycleKind = "removed"
)

// LifecycleNotice reports an entity entering or leaving the registry.
type LifecycleNotice struct {
	ID    string
	Label string
	Kind  LifecycleKind
}

// Batch is the unit handed to the broadcast hub after each tick.
type Batch struct {
	Tick      uint64
	Time      time.Time
	Records   []ChangeRecord
	Lifecycle []LifecycleNotice
}

// Stats is the pull-based aggregate exposed for polling consumers.
type Stats struct {
	Entities       int     `json:"entities"`
	Visible        int     `json:"visible"`
	Hidden         int     `json:"hidden"`
	EffectiveSight float64 `json:"effectiveSightDistance"`
	WorldScale     float64 `json:"worldScale"`
	ViewerSet      bool    `json:"viewerSet"`
	Tick           uint64  `json:"tick"`
}
