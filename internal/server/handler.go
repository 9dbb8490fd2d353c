package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/keyfence/keyfence/internal/engine"
	"github.com/keyfence/keyfence/internal/hidenum"
	"github.com/keyfence/keyfence/internal/identity"
	"github.com/keyfence/keyfence/internal/supervisor"
)

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// handleDevices implements GET /devices → enumerate_devices().
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	devices, err := s.eng.EnumerateDevices()
	if err != nil {
		writeJSON(w, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, devices)
}

// detectRequest is the JSON body for POST /detect.
type detectRequest struct {
	MinPresses int `json:"min_presses"`
}

// handleDetect implements detect_identity(stop_predicate), with the
// predicate supplied over the wire as a simple press-count threshold —
// the engine's own API still accepts an arbitrary StopPredicate func,
// this is just the control surface's serializable subset of it.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, errorResponse{Error: "invalid JSON"})
		return
	}
	if req.MinPresses <= 0 {
		req.MinPresses = 3
	}

	available, err := s.eng.EnumerateDevices()
	if err != nil {
		writeJSON(w, errorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	sel, err := s.eng.DetectIdentity(ctx, available, identity.MinPresses(req.MinPresses))
	if err != nil {
		writeJSON(w, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, sel)
}

// startSessionRequest is the JSON body for POST /sessions/start.
type startSessionRequest struct {
	Devices      []hidenum.Device `json:"devices"`
	Mode         string           `json:"mode"` // "capture_only" | "relay"
	GuestID      string           `json:"guest_id"`
	DurationSecs int64            `json:"duration_secs"`
}

type startSessionResponse struct {
	Handle string `json:"handle,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, startSessionResponse{Error: "invalid JSON"})
		return
	}

	mode := supervisor.CaptureOnly
	if req.Mode == "relay" {
		mode = supervisor.Relay
	}

	var physID string
	if len(req.Devices) > 0 {
		physID = req.Devices[0].PhysicalID
	}
	sel := identity.Selection{PhysicalID: physID, Devices: req.Devices}

	handle, err := s.eng.StartSession(r.Context(), engine.StartOpts{
		Selection: sel,
		Mode:      mode,
		GuestID:   req.GuestID,
		Duration:  time.Duration(req.DurationSecs) * time.Second,
	})
	if err != nil {
		writeJSON(w, startSessionResponse{Error: err.Error()})
		return
	}
	s.eng.WatchKeystrokes(handle)
	writeJSON(w, startSessionResponse{Handle: string(handle)})
}

type handleRequest struct {
	Handle string `json:"handle"`
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req handleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, errorResponse{Error: "invalid JSON"})
		return
	}
	if err := s.eng.StopSession(engine.SessionHandle(req.Handle)); err != nil {
		writeJSON(w, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, okResponse{OK: true})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	handle := r.URL.Query().Get("handle")
	status, err := s.eng.SessionStatus(engine.SessionHandle(handle))
	if err != nil {
		writeJSON(w, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, status)
}

func (s *Server) handleSessionLog(w http.ResponseWriter, r *http.Request) {
	handle := r.URL.Query().Get("handle")
	writeJSON(w, s.eng.CopyKeystrokeLog(engine.SessionHandle(handle)))
}

type errorResponse struct {
	Error string `json:"error"`
}

type okResponse struct {
	OK bool `json:"ok"`
}
