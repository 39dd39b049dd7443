// Package proto defines the JSON wire messages streamed to subscribers and
// served by the HTTP endpoints. cmd/schema reflects these types into a JSON
// Schema for client codegen.
package proto

import (
	"math"

	"sightline/server/internal/engine"
)

// ProtocolVersion tags every frame so clients can reject incompatible
// servers.
const ProtocolVersion = 1

// Frame type discriminators.
const (
	TypeKeyframe = "keyframe"
	TypeBatch    = "batch"
)

// Vec3 mirrors engine.Vec3 on the wire.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Entity is the full wire state of one tracked entity. Distance is -1 until
// the first tick resolves it.
type Entity struct {
	ID           string  `json:"id"`
	Label        string  `json:"label"`
	Position     Vec3    `json:"position"`
	LastSeen     int64   `json:"lastSeen"`
	Connected    bool    `json:"connected"`
	Visibility   string  `json:"visibility"`
	FadeProgress float64 `json:"fadeProgress"`
	Distance     float64 `json:"distance"`
}

// ChangeRecord is one visibility change within a batch frame.
type ChangeRecord struct {
	ID           string  `json:"id"`
	Visibility   string  `json:"visibility"`
	FadeProgress float64 `json:"fadeProgress"`
	Distance     float64 `json:"distance"`
}

// LifecycleNotice reports entity creation or removal.
type LifecycleNotice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

// BatchMessage is the per-tick frame delivered to every subscriber.
type BatchMessage struct {
	Ver        int               `json:"ver"`
	Type       string            `json:"type"`
	Tick       uint64            `json:"t"`
	ServerTime int64             `json:"serverTime"`
	Records    []ChangeRecord    `json:"records"`
	Lifecycle  []LifecycleNotice `json:"lifecycle,omitempty"`
}

// KeyframeMessage is the full snapshot sent when a subscriber attaches.
type KeyframeMessage struct {
	Ver        int      `json:"ver"`
	Type       string   `json:"type"`
	Tick       uint64   `json:"t"`
	ServerTime int64    `json:"serverTime"`
	Entities   []Entity `json:"entities"`
}

// SnapshotResponse answers the pull-based snapshot query.
type SnapshotResponse struct {
	Ver        int      `json:"ver"`
	ServerTime int64    `json:"serverTime"`
	Entities   []Entity `json:"entities"`
}

// ConfigPayload is the consumer-facing configuration surface.
type ConfigPayload struct {
	SightDistance  float64 `json:"sightDistance"`
	FadeDistance   float64 `json:"fadeDistance"`
	TickIntervalMs int64   `json:"tickIntervalMs"`
	DistanceMode   string  `json:"distanceMode,omitempty"`
	StaleAfterMs   int64   `json:"staleAfterMs,omitempty"`
}

// EntityFromEngine converts a registry snapshot entry to its wire form.
func EntityFromEngine(e engine.TrackedEntity) Entity {
	distance := e.Distance
	if math.IsInf(distance, 1) {
		distance = -1
	}
	return Entity{
		ID:           e.ID,
		Label:        e.Label,
		Position:     Vec3{X: e.Position.X, Y: e.Position.Y, Z: e.Position.Z},
		LastSeen:     e.LastSeen.UnixMilli(),
		Connected:    e.Connected,
		Visibility:   string(e.Visibility),
		FadeProgress: e.FadeProgress,
		Distance:     distance,
	}
}

// EntitiesFromEngine converts a whole snapshot, preserving order.
func EntitiesFromEngine(entities []engine.TrackedEntity) []Entity {
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		out = append(out, EntityFromEngine(e))
	}
	return out
}

// BatchMessageFrom converts an engine batch into its wire frame.
func BatchMessageFrom(batch engine.Batch) BatchMessage {
	records := make([]ChangeRecord, 0, len(batch.Records))
	for _, r := range batch.Records {
		records = append(records, ChangeRecord{
			ID:           r.ID,
			Visibility:   string(r.Visibility),
			FadeProgress: r.FadeProgress,
			Distance:     r.Distance,
		})
	}
	var lifecycle []LifecycleNotice
	for _, n := range batch.Lifecycle {
		lifecycle = append(lifecycle, LifecycleNotice{ID: n.ID, Label: n.Label, Kind: string(n.Kind)})
	}
	return BatchMessage{
		Ver:        ProtocolVersion,
		Type:       TypeBatch,
		Tick:       batch.Tick,
		ServerTime: batch.Time.UnixMilli(),
		Records:    records,
		Lifecycle:  lifecycle,
	}
}
