package engine

import "math"

const (
	// fadeEpsilon is the smallest fade band treated as a real gradient.
	// Anything narrower snaps Hidden<->Visible instantly.
	fadeEpsilon = 1e-6

	// fadeBuckets quantizes fadeProgress for change detection so float
	// noise between ticks does not produce spurious emissions.
	fadeBuckets = 100
)

// ResolverConfig is the immutable per-tick input to visibility resolution.
type ResolverConfig struct {
	SightDistance      float64
	FadeDistance       float64
	Horizontal         bool
	WorldScale         float64
	DistanceMultiplier float64
	ScaleWithWorld     bool
}

// EffectiveSightDistance applies the global multiplier and optional world
// scaling to the configured sight distance.
func (c ResolverConfig) EffectiveSightDistance() float64 {
	sight := c.SightDistance
	if c.DistanceMultiplier > 0 {
		sight *= c.DistanceMultiplier
	}
	if c.ScaleWithWorld && c.WorldScale > 0 {
		sight *= c.WorldScale
	}
	return sight
}

// DistanceBetween computes the viewer-to-entity distance in meters.
// Horizontal mode ignores the vertical axis.
func DistanceBetween(a, b Vec3, horizontal bool) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	if horizontal {
		dy = 0
	}
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Resolve recomputes distance, fade progress, and visibility state for one
// entity against the viewer position. Pure: the input entity is not mutated.
//
// The fade band is centered on the sight distance. Inside the band the fade
// progress follows position directly, which preserves continuity when an
// entity reverses direction mid-fade. A sight distance smaller than half the
// band leaves the inner edge below zero; the formula then never reaches full
// visibility for any positive distance, which is the intended clamp.
func Resolve(entity TrackedEntity, viewer Vec3, cfg ResolverConfig) TrackedEntity {
	next := entity
	next.Distance = DistanceBetween(entity.Position, viewer, cfg.Horizontal)

	target := targetFade(next.Distance, cfg.EffectiveSightDistance(), cfg.FadeDistance)
	next.FadeProgress = target
	next.Visibility = nextVisibility(entity.Visibility, entity.FadeProgress, target)

	// Keep the state/progress pairing exact at the extremes.
	switch next.Visibility {
	case VisibilityHidden:
		next.FadeProgress = 0
	case VisibilityVisible:
		next.FadeProgress = 1
	}
	return next
}

// targetFade maps a distance onto [0,1]. The boundary is inclusive toward
// visible: with a zero band, distance == sight yields 1.
func targetFade(distance, sight, fade float64) float64 {
	if fade <= fadeEpsilon {
		if distance <= sight {
			return 1
		}
		return 0
	}
	lower := sight - fade/2
	upper := sight + fade/2
	switch {
	case distance <= lower:
		return 1
	case distance >= upper:
		return 0
	}
	return 1 - clampUnit((distance-lower)/math.Max(fade, fadeEpsilon))
}

// nextVisibility advances the four-state machine. A fading entity may
// reverse direction without completing; the trend flips while the fade
// progress stays continuous.
func nextVisibility(prev VisibilityState, prevFade, target float64) VisibilityState {
	switch {
	case target >= 1:
		return VisibilityVisible
	case target <= 0:
		return VisibilityHidden
	}

	switch prev {
	case VisibilityHidden, VisibilityFadingIn:
		if target < prevFade {
			return VisibilityFadingOut
		}
		return VisibilityFadingIn
	case VisibilityVisible, VisibilityFadingOut:
		if target > prevFade {
			return VisibilityFadingIn
		}
		return VisibilityFadingOut
	}
	return VisibilityFadingIn
}

// Changed reports whether a resolved entity differs enough from its previous
// state to emit a change record. Distance alone never triggers an emission.
func Changed(prev, next TrackedEntity) bool {
	if prev.Visibility != next.Visibility {
		return true
	}
	return quantizeFade(prev.FadeProgress) != quantizeFade(next.FadeProgress)
}

func quantizeFade(f float64) int {
	return int(math.Round(clampUnit(f) * fadeBuckets))
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
