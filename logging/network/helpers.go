// Package network publishes structured events for subscriber churn.
package network

import (
	"context"

	"sightline/server/logging"
)

const (
	// EventSubscriberAdded is emitted when a consumer attaches to the hub.
	EventSubscriberAdded logging.EventType = "network.subscriber_added"
	// EventSubscriberClosed is emitted when a consumer detaches cleanly.
	EventSubscriberClosed logging.EventType = "network.subscriber_closed"
	// EventSubscriberDropped is emitted when a slow consumer is evicted.
	EventSubscriberDropped logging.EventType = "network.subscriber_dropped"
)

// DropPayload describes why a subscriber was evicted.
type DropPayload struct {
	PendingBatches int    `json:"pendingBatches"`
	Reason         string `json:"reason"`
}

// SubscriberAdded publishes an info event for a new subscriber.
func SubscriberAdded(ctx context.Context, pub logging.Publisher, actor logging.EntityRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSubscriberAdded,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
	})
}

// SubscriberClosed publishes an info event for a clean detach.
func SubscriberClosed(ctx context.Context, pub logging.Publisher, actor logging.EntityRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSubscriberClosed,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
	})
}

// SubscriberDropped publishes a warning for a slow consumer eviction.
func SubscriberDropped(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload DropPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSubscriberDropped,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}
