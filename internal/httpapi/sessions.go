package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCurrentSession(w http.ResponseWriter, _ *http.Request) {
	current, ok := s.sessions.Current()
	if !ok {
		respondJSON(w, http.StatusOK, map[string]any{
			"status":     "success",
			"session_id": nil,
			"message":    "No active session. Start chatting to create one.",
		})
		return
	}
	info, _ := s.sessions.Info(current)
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"session_id":   current,
		"session_info": info,
	})
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	newID := s.sessions.ForceRotate(r.Context())
	s.metrics.SessionEvents.WithLabelValues("rotated").Inc()
	s.observeSessions()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "success",
		"message":        "Previous session summarized and stored. New session started.",
		"new_session_id": newID,
	})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	turns := s.sessions.Turns(id)
	info, _ := s.sessions.Info(id)
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"session_id":   id,
		"session_info": info,
		"turn_count":   len(turns),
		"history":      turns,
	})
}

func (s *Server) handleSessionContext(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	turns := s.sessions.Turns(id)
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"session_id": id,
		"context":    turns,
		"stats":      s.sessions.Stats(id),
	})
}

func (s *Server) handleSessionSearch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "empty_query", "query parameter q is required")
		return
	}
	matches := s.sessions.Search(id, query)
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "success",
		"session_id":  id,
		"query":       query,
		"match_count": len(matches),
		"results":     matches,
	})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.sessions.Clear(id)
	s.metrics.SessionEvents.WithLabelValues("cleared").Inc()
	s.observeSessions()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"session_id": id,
		"message":    "Session short-term memory cleared",
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	infos := s.sessions.ListSessions()
	current, _ := s.sessions.Current()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "success",
		"session_count":      len(infos),
		"current_session_id": current,
		"sessions":           infos,
	})
}

type contextConfigRequest struct {
	MaxTurns       int    `json:"max_turns,omitempty"`
	MaxChars       int    `json:"max_chars,omitempty"`
	SessionTimeout string `json:"session_timeout,omitempty"`
}

func (s *Server) handleGetContextConfig(w http.ResponseWriter, _ *http.Request) {
	maxTurns, maxChars := s.sessions.Limits()
	current, _ := s.sessions.Current()
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"context_config": map[string]any{
			"max_turns":          maxTurns,
			"max_chars":          maxChars,
			"session_timeout":    s.sessions.Timeout().String(),
			"current_session_id": current,
		},
	})
}

func (s *Server) handleSetContextConfig(w http.ResponseWriter, r *http.Request) {
	var req contextConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if req.SessionTimeout != "" {
		// Timeouts arrive as Go duration strings ("45m", "1h30m").
		d, err := time.ParseDuration(strings.TrimSpace(req.SessionTimeout))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_timeout", err.Error())
			return
		}
		s.sessions.SetTimeout(d)
	}
	s.sessions.SetLimits(req.MaxTurns, req.MaxChars)

	maxTurns, maxChars := s.sessions.Limits()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Context window limits updated",
		"new_limits": map[string]any{
			"max_turns":       maxTurns,
			"max_chars":       maxChars,
			"session_timeout": s.sessions.Timeout().String(),
		},
	})
}

func (s *Server) handleCleanupExpired(w http.ResponseWriter, r *http.Request) {
	swept := s.sessions.SweepExpired(r.Context())
	if swept > 0 {
		s.metrics.SessionEvents.WithLabelValues("expired").Add(float64(swept))
	}
	s.observeSessions()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"swept":         swept,
		"message":       "Expired sessions cleaned up and summarized to long-term memory",
		"session_count": len(s.sessions.ListSessions()),
	})
}
