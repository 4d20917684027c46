package session

import (
	"errors"
	"time"
)

// Role identifies the author of a conversational turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

var (
	ErrInvalidRole = errors.New("invalid turn role")
	ErrEmptyText   = errors.New("turn text is empty")
)

// Turn is one conversational event. Turns are immutable once appended;
// ordering within a session is insertion order.
type Turn struct {
	Role      Role           `json:"role"`
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// markerType tags the synthetic system turn inserted when older turns
// are evicted by the context trimmer.
const markerType = "context_trimmed"

func isMarker(t Turn) bool {
	if t.Role != RoleSystem || t.Metadata == nil {
		return false
	}
	v, ok := t.Metadata["type"].(string)
	return ok && v == markerType
}

// Info describes a session's lifecycle state without exposing its turns.
type Info struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	TurnCount    int       `json:"turn_count"`
	IsExpired    bool      `json:"is_expired"`
	IsCurrent    bool      `json:"is_current"`
}

// Stats reports context-window utilization for a session.
type Stats struct {
	SessionID          string  `json:"session_id"`
	TurnCount          int     `json:"turn_count"`
	TotalChars         int     `json:"total_chars"`
	MaxTurns           int     `json:"max_turns"`
	MaxChars           int     `json:"max_chars"`
	UtilizationPercent float64 `json:"utilization_percent"`
	IsFull             bool    `json:"is_full"`
}

func validRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}
