package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sightline/server/internal/engine"
	"sightline/server/internal/hub"
	"sightline/server/internal/proto"
)

func newTestAPI(t *testing.T, cfg engine.Config) (*apiServer, *engine.Engine) {
	t.Helper()
	counters := newTelemetryCounters()
	h := hub.New(hub.DefaultBufferSize, nil, counters)
	eng, err := engine.New(engine.NewRegistry(), h, nil, counters, cfg)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	return newAPIServer(eng, h, counters, nil), eng
}

func startedTestAPI(t *testing.T, cfg engine.Config) (*apiServer, *engine.Engine) {
	t.Helper()
	api, eng := newTestAPI(t, cfg)
	if err := eng.Start(); err != nil {
		t.Fatalf("engine start failed: %v", err)
	}
	t.Cleanup(eng.Stop)
	return api, eng
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out any) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
}

func TestHealthz(t *testing.T) {
	api, _ := newTestAPI(t, engine.DefaultConfig())
	srv := httptest.NewServer(api.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStatusReportsEngineAndConfig(t *testing.T) {
	api, eng := newTestAPI(t, engine.DefaultConfig())
	srv := httptest.NewServer(api.routes())
	defer srv.Close()

	eng.OnPositionUpdate("avatar-1", engine.Vec3{X: 3}, time.Now(), "")

	var status statusResponse
	getJSON(t, srv, "/status", &status)

	if status.Status != "ok" {
		t.Fatalf("expected ok status, got %q", status.Status)
	}
	if status.Engine.Entities != 1 {
		t.Fatalf("expected 1 tracked entity, got %d", status.Engine.Entities)
	}
	if status.Config.SightDistance != engine.DefaultConfig().SightDistance {
		t.Fatalf("unexpected config in status: %+v", status.Config)
	}
	if status.Subscribers != 0 {
		t.Fatalf("expected no subscribers, got %d", status.Subscribers)
	}
}

func TestSnapshotVisibleFilter(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.TickInterval = engine.MinTickInterval
	cfg.FadeDistance = 0
	api, eng := startedTestAPI(t, cfg)
	srv := httptest.NewServer(api.routes())
	defer srv.Close()

	eng.OnViewerPositionUpdate(engine.Vec3{})
	eng.OnPositionUpdate("near", engine.Vec3{X: 2}, time.Now(), "")
	eng.OnPositionUpdate("far", engine.Vec3{X: 50}, time.Now(), "")

	deadline := time.Now().Add(2 * time.Second)
	var visible proto.SnapshotResponse
	for {
		getJSON(t, srv, "/snapshot?visible=1", &visible)
		if len(visible.Entities) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("visible filter never converged, got %+v", visible.Entities)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if visible.Entities[0].ID != "near" {
		t.Fatalf("expected the near entity, got %q", visible.Entities[0].ID)
	}

	var full proto.SnapshotResponse
	getJSON(t, srv, "/snapshot", &full)
	if len(full.Entities) != 2 {
		t.Fatalf("unfiltered snapshot should list both entities, got %d", len(full.Entities))
	}
	if full.Entities[0].ID != "near" || full.Entities[1].ID != "far" {
		t.Fatalf("snapshot must preserve insertion order, got %+v", full.Entities)
	}
}

func TestPutConfigRejectsInvalidKeepsPrevious(t *testing.T) {
	api, eng := newTestAPI(t, engine.DefaultConfig())
	srv := httptest.NewServer(api.routes())
	defer srv.Close()

	previous := eng.ConfigSnapshot()
	body := bytes.NewBufferString(`{"sightDistance": -5}`)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/config", body)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT /config failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var current proto.ConfigPayload
	getJSON(t, srv, "/config", &current)
	if current.SightDistance != previous.SightDistance {
		t.Fatalf("previous config must survive a rejected update, got %+v", current)
	}
}

func TestPutConfigPartialUpdateAppliesNextTick(t *testing.T) {
	api, eng := newTestAPI(t, engine.DefaultConfig())
	srv := httptest.NewServer(api.routes())
	defer srv.Close()

	body := bytes.NewBufferString(`{"sightDistance": 25}`)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/config", body)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT /config failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var applied proto.ConfigPayload
	if err := json.NewDecoder(resp.Body).Decode(&applied); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if applied.SightDistance != 25 {
		t.Fatalf("expected sight distance 25, got %v", applied.SightDistance)
	}
	// Untouched fields keep their current values.
	if applied.FadeDistance != engine.DefaultConfig().FadeDistance {
		t.Fatalf("fade distance must be untouched, got %v", applied.FadeDistance)
	}
	if got := eng.ConfigSnapshot().SightDistance; got != 25 {
		t.Fatalf("engine config not updated, got %v", got)
	}
}

func TestWSStreamsKeyframeThenBatches(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.TickInterval = engine.MinTickInterval
	cfg.FadeDistance = 0
	api, eng := startedTestAPI(t, cfg)
	srv := httptest.NewServer(api.routes())
	defer srv.Close()

	eng.OnViewerPositionUpdate(engine.Vec3{})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("keyframe read failed: %v", err)
	}
	var keyframe proto.KeyframeMessage
	if err := json.Unmarshal(data, &keyframe); err != nil {
		t.Fatalf("keyframe decode failed: %v", err)
	}
	if keyframe.Type != proto.TypeKeyframe || keyframe.Ver != proto.ProtocolVersion {
		t.Fatalf("unexpected first frame %+v", keyframe)
	}

	// An entity appearing after the keyframe arrives in batch frames. The
	// change record and the created notice usually share a batch but may
	// straddle two when the update lands mid-tick.
	eng.OnPositionUpdate("avatar-1", engine.Vec3{X: 2}, time.Now(), "Alice")

	var sawVisible, sawCreated bool
	for !sawVisible || !sawCreated {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err = conn.ReadMessage()
		if err != nil {
			t.Fatalf("batch read failed: %v", err)
		}
		var batch proto.BatchMessage
		if err := json.Unmarshal(data, &batch); err != nil {
			t.Fatalf("batch decode failed: %v", err)
		}
		if batch.Type != proto.TypeBatch {
			t.Fatalf("expected batch frame, got %+v", batch)
		}
		for _, record := range batch.Records {
			if record.ID == "avatar-1" && record.Visibility == string(engine.VisibilityVisible) {
				sawVisible = true
			}
		}
		for _, notice := range batch.Lifecycle {
			if notice.ID == "avatar-1" && notice.Kind == string(engine.LifecycleCreated) {
				sawCreated = true
			}
		}
	}
}
