package archive

import (
	"context"
	"time"
)

// TurnRecord is one archived conversational turn.
type TurnRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionRecord is the durable transcript of a summarized session.
type SessionRecord struct {
	SessionID  string       `json:"session_id"`
	Summary    string       `json:"summary"`
	TurnCount  int          `json:"turn_count"`
	ArchivedAt time.Time    `json:"archived_at"`
	Turns      []TurnRecord `json:"turns,omitempty"`
}

// Store persists transcripts of sessions that have been summarized and
// evicted from short-term memory.
type Store interface {
	SaveSession(ctx context.Context, rec SessionRecord) error
	RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	Close() error
}
