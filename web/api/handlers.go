package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/votryx/votryx/internal/config"
	"github.com/votryx/votryx/internal/engine"
)

// startRequest optionally overrides the run target for this start
type startRequest struct {
	TargetVotes int  `json:"target_votes,omitempty"`
	Unbounded   bool `json:"unbounded,omitempty"`
}

// SetBaseConfig sets the configuration used for runs started over HTTP
func (s *Server) SetBaseConfig(cfg config.RunConfiguration) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

func (s *Server) baseConfig() config.RunConfiguration {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.cfg
}

func (s *Server) startHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		cfg := s.baseConfig()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "reading request body: "+err.Error())
			return
		}
		if len(body) > 0 {
			var req startRequest
			if err := json.Unmarshal(body, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
				return
			}
			if req.TargetVotes > 0 {
				cfg.TargetVotes = req.TargetVotes
			}
			if req.Unbounded {
				cfg.Unbounded = true
			}
		}

		if err := s.ctrl.Start(cfg); err != nil {
			code := http.StatusBadRequest
			if errors.Is(err, engine.ErrAlreadyRunning) {
				code = http.StatusConflict
			}
			writeError(w, code, err.Error())
			return
		}

		writeJSON(w, map[string]string{"status": "started"})
	}
}

func (s *Server) stopHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if err := s.ctrl.Stop(); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, map[string]string{"status": "stopping"})
	}
}

func (s *Server) statsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.ctrl.Snapshot())
	}
}

func (s *Server) logsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		errorsOnly, _ := strconv.ParseBool(r.URL.Query().Get("errors_only"))
		logs := s.ctrl.Logs(errorsOnly)
		writeJSON(w, map[string]interface{}{
			"count":   len(logs),
			"entries": logs,
		})
	}
}
