package archive

import (
	"context"

	"github.com/engram-labs/engram/internal/session"
)

// SessionArchiver adapts a Store to the session manager's Archiver hook,
// persisting the transcript of each session as it is summarized and evicted.
type SessionArchiver struct {
	store Store
}

func NewSessionArchiver(store Store) *SessionArchiver {
	return &SessionArchiver{store: store}
}

func (a *SessionArchiver) ArchiveSession(ctx context.Context, sessionID, summary string, turns []session.Turn) error {
	rec := SessionRecord{
		SessionID: sessionID,
		Summary:   summary,
		TurnCount: len(turns),
		Turns:     make([]TurnRecord, 0, len(turns)),
	}
	for _, t := range turns {
		rec.Turns = append(rec.Turns, TurnRecord{
			SessionID: sessionID,
			Role:      string(t.Role),
			Content:   t.Text,
			CreatedAt: t.Timestamp,
		})
	}
	return a.store.SaveSession(ctx, rec)
}
