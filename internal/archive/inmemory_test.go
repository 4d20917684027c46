package archive

import (
	"context"
	"testing"
	"time"

	"github.com/engram-labs/engram/internal/session"
)

func TestInMemoryStoreSaveAndRecent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		err := s.SaveSession(ctx, SessionRecord{
			SessionID: id,
			Summary:   "Session " + id + " Summary:\n- Discussed: something",
			TurnCount: 2,
			Turns: []TurnRecord{
				{Role: "user", Content: "q", CreatedAt: time.Now()},
				{Role: "assistant", Content: "a", CreatedAt: time.Now()},
			},
		})
		if err != nil {
			t.Fatalf("SaveSession(%s) error = %v", id, err)
		}
	}

	recent, err := s.RecentSessions(ctx, 2)
	if err != nil {
		t.Fatalf("RecentSessions() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent = %d, want 2", len(recent))
	}
	// Newest first.
	if recent[0].SessionID != "s3" || recent[1].SessionID != "s2" {
		t.Fatalf("order = %s, %s", recent[0].SessionID, recent[1].SessionID)
	}
	if recent[0].ArchivedAt.IsZero() {
		t.Fatalf("archived_at should be stamped on save")
	}
	for _, turn := range recent[0].Turns {
		if turn.ID == "" || turn.SessionID != "s3" {
			t.Fatalf("turn not normalized: %+v", turn)
		}
	}

	all, err := s.RecentSessions(ctx, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("limit 0 should return everything, got %d (%v)", len(all), err)
	}
}

func TestRecentSessionsEmpty(t *testing.T) {
	s := NewInMemoryStore()
	got, err := s.RecentSessions(context.Background(), 5)
	if err != nil || got != nil {
		t.Fatalf("empty store = %v, %v", got, err)
	}
}

func TestSessionArchiver(t *testing.T) {
	store := NewInMemoryStore()
	a := NewSessionArchiver(store)

	turns := []session.Turn{
		{Role: session.RoleUser, Text: "what do cats eat", Timestamp: time.Now()},
		{Role: session.RoleAssistant, Text: "mostly meat", Timestamp: time.Now()},
	}
	if err := a.ArchiveSession(context.Background(), "s1", "summary text", turns); err != nil {
		t.Fatalf("ArchiveSession() error = %v", err)
	}

	recent, err := store.RecentSessions(context.Background(), 1)
	if err != nil || len(recent) != 1 {
		t.Fatalf("recent = %v, %v", recent, err)
	}
	rec := recent[0]
	if rec.SessionID != "s1" || rec.Summary != "summary text" || rec.TurnCount != 2 {
		t.Fatalf("record = %+v", rec)
	}
	if len(rec.Turns) != 2 || rec.Turns[0].Role != "user" || rec.Turns[1].Content != "mostly meat" {
		t.Fatalf("turns = %+v", rec.Turns)
	}
}
