package engine

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidConfig wraps every configuration rejection so callers can keep
// the previous valid configuration in effect.
var ErrInvalidConfig = errors.New("invalid engine config")

// DistanceMode selects the distance metric.
type DistanceMode string

const (
	Distance3D         DistanceMode = "3d"
	DistanceHorizontal DistanceMode = "horizontal"
)

const (
	MinSightDistance = 0.1
	MaxSightDistance = 100.0
	MinTickInterval  = 50 * time.Millisecond
	MaxTickInterval  = time.Second
)

// Config tunes visibility resolution and the tick cadence. Changes are
// applied on the next tick, never mid-tick.
type Config struct {
	SightDistance      float64
	FadeDistance       float64
	TickInterval       time.Duration
	DistanceMode       DistanceMode
	WorldScale         float64
	DistanceMultiplier float64
	ScaleWithWorld     bool
	StaleAfter         time.Duration
}

// DefaultConfig mirrors the stock tuning: 10m sight, 2m fade band, 100ms
// ticks, full-3D distance, staleness sweep off.
func DefaultConfig() Config {
	return Config{
		SightDistance:      10,
		FadeDistance:       2,
		TickInterval:       100 * time.Millisecond,
		DistanceMode:       Distance3D,
		WorldScale:         1,
		DistanceMultiplier: 1,
	}
}

// Validate rejects configurations that cannot be clamped into a sane state.
func (c Config) Validate() error {
	if math.IsNaN(c.SightDistance) || math.IsInf(c.SightDistance, 0) || c.SightDistance <= 0 {
		return fmt.Errorf("%w: sight distance %v must be positive", ErrInvalidConfig, c.SightDistance)
	}
	if math.IsNaN(c.FadeDistance) || math.IsInf(c.FadeDistance, 0) || c.FadeDistance < 0 {
		return fmt.Errorf("%w: fade distance %v must be >= 0", ErrInvalidConfig, c.FadeDistance)
	}
	if c.TickInterval < 0 {
		return fmt.Errorf("%w: tick interval %v must be >= 0", ErrInvalidConfig, c.TickInterval)
	}
	switch c.DistanceMode {
	case "", Distance3D, DistanceHorizontal:
	default:
		return fmt.Errorf("%w: unknown distance mode %q", ErrInvalidConfig, c.DistanceMode)
	}
	if c.WorldScale < 0 || c.DistanceMultiplier < 0 {
		return fmt.Errorf("%w: scale factors must be >= 0", ErrInvalidConfig)
	}
	if c.StaleAfter < 0 {
		return fmt.Errorf("%w: stale timeout %v must be >= 0", ErrInvalidConfig, c.StaleAfter)
	}
	return nil
}

// Normalized clamps a valid config into the supported ranges and fills
// defaults for zero values.
func (c Config) Normalized() Config {
	normalized := c
	if normalized.SightDistance < MinSightDistance {
		normalized.SightDistance = MinSightDistance
	}
	if normalized.SightDistance > MaxSightDistance {
		normalized.SightDistance = MaxSightDistance
	}
	if normalized.TickInterval == 0 {
		normalized.TickInterval = 100 * time.Millisecond
	}
	if normalized.TickInterval < MinTickInterval {
		normalized.TickInterval = MinTickInterval
	}
	if normalized.TickInterval > MaxTickInterval {
		normalized.TickInterval = MaxTickInterval
	}
	if normalized.DistanceMode == "" {
		normalized.DistanceMode = Distance3D
	}
	if normalized.WorldScale == 0 {
		normalized.WorldScale = 1
	}
	if normalized.DistanceMultiplier == 0 {
		normalized.DistanceMultiplier = 1
	}
	return normalized
}

func (c Config) resolver() ResolverConfig {
	return ResolverConfig{
		SightDistance:      c.SightDistance,
		FadeDistance:       c.FadeDistance,
		Horizontal:         c.DistanceMode == DistanceHorizontal,
		WorldScale:         c.WorldScale,
		DistanceMultiplier: c.DistanceMultiplier,
		ScaleWithWorld:     c.ScaleWithWorld,
	}
}
