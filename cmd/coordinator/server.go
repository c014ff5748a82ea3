package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dreamware/lectern/internal/client"
	"github.com/dreamware/lectern/internal/coordinator"
	"github.com/dreamware/lectern/internal/transport"
)

// server exposes the session over HTTP: the WebSocket endpoint for clients
// and a few JSON endpoints for operators.
type server struct {
	coord  *coordinator.Coordinator
	hub    *transport.Hub
	logger *slog.Logger
}

func newServer(coord *coordinator.Coordinator, hub *transport.Hub, logger *slog.Logger) *server {
	return &server{coord: coord, hub: hub, logger: logger}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleState returns the session snapshot.
func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.coord.Snapshot())
}

// handleStatus sets the backend status shown on every client:
//
//	POST /status {"status": "service starts in 5 minutes"}
//	POST /status {"status": null}
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req client.StatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	s.coord.SetStatus(r.Context(), req.Status)
	s.logger.Info("status updated", "status", req.Status, "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
