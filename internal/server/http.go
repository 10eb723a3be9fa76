package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/antscale/antscale/internal/core/compute"
	"github.com/antscale/antscale/internal/core/lod"
	"github.com/antscale/antscale/internal/core/observability/log"
	"github.com/antscale/antscale/internal/core/scaling"
)

// StatusServer exposes the preset control API, the capability probe and
// a live metrics stream over plain HTTP + WebSocket.
type StatusServer struct {
	server *http.Server
	scaler *scaling.AutoScaler
	coord  *compute.Coordinator
	engine *lod.Engine
	lg     log.Log

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	running bool
}

func NewStatusServer(scaler *scaling.AutoScaler, coord *compute.Coordinator, engine *lod.Engine, lg log.Log) *StatusServer {
	return &StatusServer{
		scaler:  scaler,
		coord:   coord,
		engine:  engine,
		lg:      lg,
		clients: make(map[*wsClient]struct{}),
	}
}

func (s *StatusServer) Start(ctx context.Context, addr string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrServerAlreadyRunning
	}
	s.running = true
	s.server = &http.Server{
		Addr:    addr,
		Handler: s,
	}
	s.mu.Unlock()

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.lg.Error("status server stopped", log.Error(err))
		}
	}()
	s.lg.Info("status server listening", log.String("addr", addr))
	return nil
}

func (s *StatusServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrServerNotRunning
	}
	s.running = false
	for c := range s.clients {
		c.close()
	}
	clear(s.clients)
	s.mu.Unlock()

	return s.server.Shutdown(ctx)
}

func (s *StatusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/status":
		s.handleStatus(w, r)
	case "/presets":
		s.handlePresets(w, r)
	case "/capabilities":
		s.handleCapabilities(w, r)
	case "/scaling/actions":
		s.handleActions(w, r)
	case "/ws":
		s.handleWS(w, r)
	default:
		http.NotFound(w, r)
	}
}

type statusResponse struct {
	Scaler       scaling.Status        `json:"scaler"`
	Distribution map[lod.Tier]int      `json:"distribution"`
	Capacities   map[lod.Tier]int      `json:"capacities"`
	SystemLoad   float64               `json:"system_load"`
	QueueLen     int                   `json:"queue_len"`
	InFlight     int                   `json:"in_flight"`
	Latencies    []compute.LatencyStat `json:"latencies"`
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, statusResponse{
		Scaler:       s.scaler.Status(),
		Distribution: s.engine.Distribution(),
		Capacities:   s.engine.Capacities(),
		SystemLoad:   s.engine.SystemLoad(),
		QueueLen:     s.coord.QueueLen(),
		InFlight:     s.coord.InFlight(),
		Latencies:    s.coord.LatencyStats(),
	})
}

type presetRequest struct {
	Preset string   `json:"preset"`
	Auto   *bool    `json:"auto,omitempty"`
	Nudge  *int     `json:"nudge,omitempty"`
	Step   *float64 `json:"step,omitempty"`
}

func (s *StatusServer) handlePresets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, map[string]any{
			"active": s.scaler.Status().Preset,
			"preset": s.scaler.Preset(),
		})
	case http.MethodPut, http.MethodPost:
		var req presetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Preset != "" {
			if err := s.scaler.SetPreset(scaling.PresetName(req.Preset)); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if req.Auto != nil {
			s.scaler.SetAutoEnabled(*req.Auto)
		}
		if req.Nudge != nil {
			step := 0.1
			if req.Step != nil {
				step = *req.Step
			}
			s.scaler.Nudge(*req.Nudge, step)
		}
		writeJSON(w, s.scaler.Status())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *StatusServer) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.coord.Capabilities())
}

func (s *StatusServer) handleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.scaler.Actions())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
