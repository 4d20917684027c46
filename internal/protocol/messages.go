package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatMessage     MessageType = "chat_message"
	TypeRetrievalResult MessageType = "retrieval_result"
	TypeAssistantAnswer MessageType = "assistant_answer"
	TypeSessionEvent    MessageType = "session_event"
	TypeErrorEvent      MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ChatMessage is the single inbound frame: one user message. SessionID may
// be empty for auto-managed sessions; TopK of zero takes the server default.
type ChatMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Message   string      `json:"message"`
	TopK      int         `json:"top_k,omitempty"`
}

// Snippet is the wire view of one retrieved context item.
type Snippet struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Source string  `json:"source"`
}

// RetrievalResult reports the fused context set for a chat message before
// the answer arrives.
type RetrievalResult struct {
	Type           MessageType `json:"type"`
	SessionID      string      `json:"session_id"`
	Snippets       []Snippet   `json:"snippets"`
	ShortTermCount int         `json:"short_term_count"`
	LongTermCount  int         `json:"long_term_count"`
}

// AssistantAnswer carries the generated answer for a chat message.
type AssistantAnswer struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Answer    string      `json:"answer"`
}

// SessionEvent notifies lifecycle changes (created, rotated).
type SessionEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes and validates an inbound websocket frame.
func ParseClientMessage(raw []byte) (ChatMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ChatMessage{}, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatMessage:
		var msg ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return ChatMessage{}, err
		}
		if strings.TrimSpace(msg.Message) == "" {
			return ChatMessage{}, errors.New("invalid chat_message: empty message")
		}
		return msg, nil
	default:
		return ChatMessage{}, ErrUnsupportedType
	}
}
