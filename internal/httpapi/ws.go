package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/engram-labs/engram/internal/protocol"
	"github.com/engram-labs/engram/internal/retrieval"
	"github.com/engram-labs/engram/internal/session"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
	wsReadLimit    = 1 << 20
)

// handleChatWS runs a chat conversation over one websocket connection.
// Frames are processed sequentially, so the connection has a single writer
// and answers arrive in question order.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	defer s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		msg, err := protocol.ParseClientMessage(data)
		if err != nil {
			if !s.writeWS(conn, protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			}) {
				return
			}
			continue
		}

		topK := msg.TopK
		if topK <= 0 {
			topK = s.cfg.DefaultTopK
		}

		activeID, err := s.sessions.AppendTurn(r.Context(), session.RoleUser, msg.Message, msg.SessionID, nil)
		if err != nil {
			if !s.writeWS(conn, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: msg.SessionID,
				Code:      "invalid_turn",
				Detail:    err.Error(),
			}) {
				return
			}
			continue
		}
		s.observeSessions()
		if msg.SessionID == "" && activeID != msg.SessionID {
			if !s.writeWS(conn, protocol.SessionEvent{
				Type:      protocol.TypeSessionEvent,
				SessionID: activeID,
				Code:      "session_resolved",
			}) {
				return
			}
		}

		ans := s.pipeline.Chat(r.Context(), msg.Message, activeID, topK)

		if !s.writeWS(conn, protocol.RetrievalResult{
			Type:           protocol.TypeRetrievalResult,
			SessionID:      activeID,
			Snippets:       wireSnippets(ans.Snippets),
			ShortTermCount: ans.ShortTermCount,
			LongTermCount:  ans.LongTermCount,
		}) {
			return
		}

		if ans.Text != "" {
			_, _ = s.sessions.AppendTurn(r.Context(), session.RoleAssistant, ans.Text, activeID, nil)
		}

		if !s.writeWS(conn, protocol.AssistantAnswer{
			Type:      protocol.TypeAssistantAnswer,
			SessionID: activeID,
			Answer:    ans.Text,
		}) {
			return
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, v any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v) == nil
}

func wireSnippets(snippets []retrieval.Snippet) []protocol.Snippet {
	out := make([]protocol.Snippet, 0, len(snippets))
	for _, sn := range snippets {
		out = append(out, protocol.Snippet{
			ID:     sn.ID,
			Text:   sn.Text,
			Score:  sn.Score,
			Source: sn.Source,
		})
	}
	return out
}
