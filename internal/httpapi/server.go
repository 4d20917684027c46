package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/engram-labs/engram/internal/config"
	"github.com/engram-labs/engram/internal/observability"
	"github.com/engram-labs/engram/internal/retrieval"
	"github.com/engram-labs/engram/internal/session"
	"github.com/engram-labs/engram/internal/vector"
)

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	pipeline *retrieval.Pipeline
	metrics  *observability.Metrics
	window   *observability.StageWindow
	upgrader websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, pipeline *retrieval.Pipeline, metrics *observability.Metrics, window *observability.StageWindow) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		pipeline: pipeline,
		metrics:  metrics,
		window:   window,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up; non-browser clients
				// that omit Origin are allowed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/v1/chat", s.handleChat)
	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Post("/v1/memory", s.handleMemory)
	r.Post("/v1/search", s.handleSearch)

	r.Get("/v1/session/current", s.handleCurrentSession)
	r.Post("/v1/session/new", s.handleNewSession)
	r.Get("/v1/session/{id}/history", s.handleSessionHistory)
	r.Get("/v1/session/{id}/context", s.handleSessionContext)
	r.Get("/v1/session/{id}/search", s.handleSessionSearch)
	r.Delete("/v1/session/{id}", s.handleClearSession)
	r.Get("/v1/sessions", s.handleListSessions)
	r.Get("/v1/context/config", s.handleGetContextConfig)
	r.Post("/v1/context/config", s.handleSetContextConfig)
	r.Post("/v1/cleanup/expired", s.handleCleanupExpired)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.window.Snapshot())
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
}

type sessionEnvelope struct {
	SessionID string `json:"session_id"`
	IsNew     bool   `json:"is_new"`
	TurnCount int    `json:"turn_count"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "empty_message", "message is required")
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}

	explicit := req.SessionID != ""
	activeID, err := s.sessions.AppendTurn(r.Context(), session.RoleUser, req.Message, req.SessionID, nil)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_turn", err.Error())
		return
	}
	s.observeSessions()

	ans := s.pipeline.Chat(r.Context(), req.Message, activeID, topK)

	if ans.Text != "" {
		if _, err := s.sessions.AppendTurn(r.Context(), session.RoleAssistant, ans.Text, activeID, nil); err != nil {
			respondError(w, http.StatusInternalServerError, "append_failed", err.Error())
			return
		}
	}

	info, _ := s.sessions.Info(activeID)
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   ans,
		"session": sessionEnvelope{
			SessionID: activeID,
			IsNew:     !explicit && info.TurnCount <= 2,
			TurnCount: info.TurnCount,
		},
	})
}

type memoryRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	var req memoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "empty_text", "text is required")
		return
	}

	id, err := s.pipeline.StoreMemory(r.Context(), req.Text, req.SessionID)
	if err != nil {
		respondError(w, http.StatusBadGateway, "store_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"id":     id,
	})
}

type searchRequest struct {
	Query      string `json:"query"`
	SessionID  string `json:"session_id,omitempty"`
	TopK       int    `json:"top_k,omitempty"`
	Domain     string `json:"domain,omitempty"`
	EntityType string `json:"entity_type,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, http.StatusBadRequest, "empty_query", "query is required")
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}

	res := s.pipeline.Search(r.Context(), req.Query, req.SessionID, vector.SearchOptions{
		TopK:       topK,
		Domain:     req.Domain,
		EntityType: req.EntityType,
	})
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   res,
	})
}

func (s *Server) observeSessions() {
	s.metrics.ActiveSessions.Set(float64(len(s.sessions.ListSessions())))
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
