// Package api exposes the voting controller over HTTP: JSON endpoints for
// control and inspection, SSE and WebSocket streams for live updates.
package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/votryx/votryx/internal/config"
	"github.com/votryx/votryx/internal/domain"
	"github.com/votryx/votryx/internal/engine"
	"github.com/votryx/votryx/internal/state"
)

// Server is the HTTP API server
type Server struct {
	ctrl *engine.Controller
	addr string
	mux  *http.ServeMux

	// cfgMu guards cfg, which the config watcher replaces while handler
	// goroutines read it.
	cfgMu sync.Mutex
	cfg   config.RunConfiguration

	sseHub *SSEHub
	wsHub  *WSHub
}

// NewServer creates an API server around a controller and subscribes the
// live hubs to its state and log streams.
func NewServer(ctrl *engine.Controller, addr string) *Server {
	s := &Server{
		ctrl:   ctrl,
		addr:   addr,
		mux:    http.NewServeMux(),
		sseHub: NewSSEHub(),
		wsHub:  NewWSHub(),
	}
	s.setupRoutes()

	ctrl.RegisterObserver(func(stats state.Statistics) {
		event := Event{Type: "state", Data: stats}
		s.sseHub.Broadcast(event)
		s.wsHub.Broadcast(event)
	})
	ctrl.RegisterLogObserver(func(entry domain.LogEntry) {
		event := Event{Type: "log", Data: entry}
		s.sseHub.Broadcast(event)
		s.wsHub.Broadcast(event)
	})

	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/run/start", s.startHandler())
	s.mux.HandleFunc("/api/run/stop", s.stopHandler())
	s.mux.HandleFunc("/api/stats", s.statsHandler())
	s.mux.HandleFunc("/api/logs", s.logsHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/api/live", s.wsHandler())
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the hubs and serves HTTP on the configured address
func (s *Server) Start() error {
	go s.sseHub.Run()
	return http.ListenAndServe(s.addr, s.mux)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
