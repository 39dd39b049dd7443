package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/process"

	"sightline/server/internal/engine"
	"sightline/server/internal/hub"
	"sightline/server/internal/proto"
	"sightline/server/internal/telemetry"
)

const writeWait = 10 * time.Second

type apiServer struct {
	engine    *engine.Engine
	hub       *hub.Hub
	counters  *telemetryCounters
	logger    *log.Logger
	startedAt time.Time
	proc      *process.Process
	upgrader  websocket.Upgrader
}

func newAPIServer(eng *engine.Engine, h *hub.Hub, counters *telemetryCounters, logger *log.Logger) *apiServer {
	if logger == nil {
		logger = log.Default()
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Printf("process stats unavailable: %v", err)
		proc = nil
	}
	return &apiServer{
		engine:    eng,
		hub:       h,
		counters:  counters,
		logger:    logger,
		startedAt: time.Now(),
		proc:      proc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *apiServer) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	r.HandleFunc("/config", s.handlePutConfig).Methods(http.MethodPut)
	r.HandleFunc("/ws", s.handleWS)
	return r
}

func (s *apiServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

type processStats struct {
	CPUPercent float64 `json:"cpuPercent"`
	RSSBytes   uint64  `json:"rssBytes"`
}

type statusResponse struct {
	Status        string              `json:"status"`
	ServerTime    int64               `json:"serverTime"`
	UptimeSeconds int64               `json:"uptimeSeconds"`
	Subscribers   int                 `json:"subscribers"`
	Engine        engine.Stats        `json:"engine"`
	Telemetry     telemetrySnapshot   `json:"telemetry"`
	Config        proto.ConfigPayload `json:"config"`
	Process       *processStats       `json:"process,omitempty"`
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := statusResponse{
		Status:        "ok",
		ServerTime:    time.Now().UnixMilli(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Subscribers:   s.hub.Len(),
		Engine:        s.engine.Stats(),
		Telemetry:     s.counters.Snapshot(),
		Config:        configPayload(s.engine.ConfigSnapshot()),
	}
	if s.proc != nil {
		stats := processStats{}
		if cpu, err := s.proc.CPUPercent(); err == nil {
			stats.CPUPercent = cpu
		}
		if mem, err := s.proc.MemoryInfo(); err == nil && mem != nil {
			stats.RSSBytes = mem.RSS
		}
		payload.Process = &stats
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	entities := proto.EntitiesFromEngine(s.engine.Snapshot())
	if r.URL.Query().Get("visible") == "1" {
		filtered := entities[:0]
		for _, e := range entities {
			if e.FadeProgress > 0 {
				filtered = append(filtered, e)
			}
		}
		entities = filtered
	}
	writeJSON(w, http.StatusOK, proto.SnapshotResponse{
		Ver:        proto.ProtocolVersion,
		ServerTime: time.Now().UnixMilli(),
		Entities:   entities,
	})
}

func (s *apiServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configPayload(s.engine.ConfigSnapshot()))
}

// handlePutConfig applies a partial configuration update on the next tick.
// Rejected updates leave the previous configuration in effect.
func (s *apiServer) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	current := s.engine.ConfigSnapshot()
	payload := configPayload(current)
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "malformed config payload", http.StatusBadRequest)
		return
	}

	next := current
	next.SightDistance = payload.SightDistance
	next.FadeDistance = payload.FadeDistance
	next.TickInterval = time.Duration(payload.TickIntervalMs) * time.Millisecond
	next.DistanceMode = engine.DistanceMode(payload.DistanceMode)
	next.StaleAfter = time.Duration(payload.StaleAfterMs) * time.Millisecond

	if err := s.engine.ApplyConfig(next); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, configPayload(s.engine.ConfigSnapshot()))
}

// handleWS upgrades the connection and streams an initial keyframe followed
// by batch frames until either side goes away or the hub evicts us.
func (s *apiServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade failed: %v", err)
		return
	}

	sub, err := s.hub.Subscribe()
	if err != nil {
		message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub closed")
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
		return
	}

	keyframe := proto.KeyframeMessage{
		Ver:        proto.ProtocolVersion,
		Type:       proto.TypeKeyframe,
		Tick:       s.engine.Tick(),
		ServerTime: time.Now().UnixMilli(),
		Entities:   proto.EntitiesFromEngine(s.engine.Snapshot()),
	}
	if !s.writeFrame(conn, keyframe) {
		sub.Close()
		conn.Close()
		return
	}

	go s.pumpBatches(sub, conn)

	// Reader detects the peer going away; inbound frames carry no commands.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	sub.Close()
	conn.Close()
}

// pumpBatches forwards the subscription stream to the connection. The loop
// ends when the hub closes the channel (drop or shutdown) or a write fails.
func (s *apiServer) pumpBatches(sub *hub.Subscription, conn *websocket.Conn) {
	for batch := range sub.Batches() {
		if !s.writeFrame(conn, proto.BatchMessageFrom(batch)) {
			sub.Close()
			break
		}
	}
	conn.Close()
}

func (s *apiServer) writeFrame(conn *websocket.Conn, frame any) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Printf("failed to marshal frame: %v", err)
		return false
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return false
	}
	s.counters.Add(telemetry.MetricBytesSent, uint64(len(data)))
	return true
}

func configPayload(cfg engine.Config) proto.ConfigPayload {
	return proto.ConfigPayload{
		SightDistance:  cfg.SightDistance,
		FadeDistance:   cfg.FadeDistance,
		TickIntervalMs: cfg.TickInterval.Milliseconds(),
		DistanceMode:   string(cfg.DistanceMode),
		StaleAfterMs:   cfg.StaleAfter.Milliseconds(),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to encode", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
