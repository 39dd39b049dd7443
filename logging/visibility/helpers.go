// Package visibility publishes structured events for the proximity state
// machine: entity lifecycle, visibility transitions, and tick health.
package visibility

import (
	"context"

	"sightline/server/logging"
)

const (
	// EventEntityTracked is emitted when the registry sees a new entity.
	EventEntityTracked logging.EventType = "visibility.entity_tracked"
	// EventEntityRemoved is emitted when an entity leaves or goes stale.
	EventEntityRemoved logging.EventType = "visibility.entity_removed"
	// EventTransition is emitted when an entity changes visibility state.
	EventTransition logging.EventType = "visibility.transition"
	// EventTickOverrun is emitted when a tick exceeds its interval budget.
	EventTickOverrun logging.EventType = "visibility.tick_overrun"
)

// TransitionPayload captures one visibility state change.
type TransitionPayload struct {
	From         string  `json:"from"`
	To           string  `json:"to"`
	FadeProgress float64 `json:"fadeProgress"`
	Distance     float64 `json:"distance"`
}

// OverrunPayload reports a tick that ran past its budget.
type OverrunPayload struct {
	DurationMillis int64 `json:"durationMillis"`
	BudgetMillis   int64 `json:"budgetMillis"`
	TicksSkipped   int   `json:"ticksSkipped"`
}

// EntityTracked publishes an info event for a newly tracked entity.
func EntityTracked(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, label string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEntityTracked,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  map[string]string{"label": label},
	})
}

// EntityRemoved publishes an info event when an entity stops being tracked.
func EntityRemoved(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, reason string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEntityRemoved,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  map[string]string{"reason": reason},
	})
}

// Transition publishes a debug event for a visibility state change.
func Transition(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload TransitionPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTransition,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryVisibility,
		Payload:  payload,
	})
}

// TickOverrun publishes a warning when the resolver ran past the tick budget.
func TickOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload OverrunPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickOverrun,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindEngine},
		Severity: logging.SeverityWarn,
		Category: logging.CategorySystem,
		Payload:  payload,
	})
}
