package archive

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps archived transcripts in process memory, for local and
// test use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []SessionRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) SaveSession(_ context.Context, rec SessionRecord) error {
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = time.Now().UTC()
	}
	for i := range rec.Turns {
		if rec.Turns[i].ID == "" {
			rec.Turns[i].ID = uuid.NewString()
		}
		rec.Turns[i].SessionID = rec.SessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *InMemoryStore) RecentSessions(_ context.Context, limit int) ([]SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]SessionRecord, 0, limit)
	for i := len(s.records) - 1; i >= len(s.records)-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
