// Package hub fans tick batches out to independent subscribers over bounded
// channels. A slow consumer never blocks the tick loop: when its channel is
// full the subscriber is evicted and its channel closed.
package hub

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"sightline/server/internal/engine"
	"sightline/server/internal/telemetry"
	"sightline/server/logging"
	lognet "sightline/server/logging/network"
)

// DefaultBufferSize bounds pending batches per subscriber.
const DefaultBufferSize = 128

// ErrClosed is returned by Subscribe after the hub has shut down.
var ErrClosed = errors.New("hub closed")

// Subscription is one consumer's ordered stream of batches. The channel is
// closed when the subscriber is dropped, unsubscribes, or the hub closes.
type Subscription struct {
	id  string
	ch  chan engine.Batch
	hub *Hub
}

// ID returns the subscriber handle.
func (s *Subscription) ID() string {
	return s.id
}

// Batches is the readable stream. A closed channel means end-of-stream.
func (s *Subscription) Batches() <-chan engine.Batch {
	return s.ch
}

// Close detaches the subscription from the hub. Idempotent.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s.id)
}

// Hub owns the subscriber set. Publish is called only from the tick loop, so
// each subscriber observes batches in tick order with no duplication.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]*Subscription
	buffer  int
	closed  bool
	log     logging.Publisher
	metrics telemetry.Metrics
}

// New builds a hub with the given per-subscriber buffer capacity.
func New(buffer int, log logging.Publisher, metrics telemetry.Metrics) *Hub {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	if log == nil {
		log = logging.NopPublisher()
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Hub{
		subs:    make(map[string]*Subscription),
		buffer:  buffer,
		log:     log,
		metrics: metrics,
	}
}

// Subscribe registers a new consumer and returns its stream.
func (h *Hub) Subscribe() (*Subscription, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	sub := &Subscription{
		id:  uuid.NewString(),
		ch:  make(chan engine.Batch, h.buffer),
		hub: h,
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	lognet.SubscriberAdded(context.Background(), h.log,
		logging.EntityRef{ID: sub.id, Kind: logging.EntityKindSubscriber})
	return sub, nil
}

// Unsubscribe detaches and closes a subscriber stream. Unknown ids are a
// no-op.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	close(sub.ch)
	lognet.SubscriberClosed(context.Background(), h.log,
		logging.EntityRef{ID: id, Kind: logging.EntityKindSubscriber})
}

// Publish delivers a batch to every subscriber without blocking. Subscribers
// whose channel is full are evicted immediately.
func (h *Hub) Publish(batch engine.Batch) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	var evicted []*Subscription
	for id, sub := range h.subs {
		select {
		case sub.ch <- batch:
		default:
			delete(h.subs, id)
			evicted = append(evicted, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range evicted {
		close(sub.ch)
		h.metrics.Add(telemetry.MetricSubscribersDropped, 1)
		lognet.SubscriberDropped(context.Background(), h.log,
			logging.EntityRef{ID: sub.id, Kind: logging.EntityKindSubscriber},
			lognet.DropPayload{PendingBatches: h.buffer, Reason: "buffer full"})
	}
}

// Close shuts the hub down, closing every subscriber channel. Idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
}

// Len reports the current number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
