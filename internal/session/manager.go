package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SummarySink receives the semantic summary of a session at the end of its
// life, for durable long-term storage. Implementations perform network I/O;
// the Manager never calls them while holding its lock.
type SummarySink interface {
	StoreSummary(ctx context.Context, sessionID, summary string, turnCount int) error
}

// Archiver optionally receives the full transcript of a summarized session.
type Archiver interface {
	ArchiveSession(ctx context.Context, sessionID, summary string, turns []Turn) error
}

type sessionState struct {
	turns        []Turn
	createdAt    time.Time
	lastAccessed time.Time
}

// Manager owns every session for the lifetime of the process: an in-memory,
// time-bounded short-term memory. Sessions expire lazily after the
// inactivity timeout; an expired session is summarized, handed to the
// SummarySink and removed. At most one session is "current" for traffic that
// does not pin an explicit session id.
//
// One mutex serializes all map and pointer mutation. Summarization and
// archive I/O run outside the lock over a snapshot of the turns.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
	current  string

	timeout     time.Duration
	maxTurns    int
	maxChars    int
	relatedness float64

	sink     SummarySink
	archiver Archiver
}

// Options configures a Manager. Zero fields fall back to defaults.
type Options struct {
	Timeout              time.Duration
	MaxTurns             int
	MaxChars             int
	RelatednessThreshold float64
}

func NewManager(opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Minute
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 20
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 4000
	}
	if opts.RelatednessThreshold <= 0 {
		opts.RelatednessThreshold = DefaultRelatednessThreshold
	}
	return &Manager{
		sessions:    make(map[string]*sessionState),
		timeout:     opts.Timeout,
		maxTurns:    opts.MaxTurns,
		maxChars:    opts.MaxChars,
		relatedness: opts.RelatednessThreshold,
	}
}

// SetSummarySink installs the long-term storage handoff. Must be called
// before traffic starts.
func (m *Manager) SetSummarySink(sink SummarySink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// SetArchiver installs an optional transcript archive.
func (m *Manager) SetArchiver(a Archiver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archiver = a
}

func newSessionID(now time.Time) string {
	return fmt.Sprintf("session_%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8])
}

// expiredLocked reports whether a session has been idle past the timeout.
// Caller holds m.mu.
func (m *Manager) expiredLocked(s *sessionState, now time.Time) bool {
	return now.Sub(s.lastAccessed) > m.timeout
}

// ResolveOrCreateActive returns the current session id, refreshing it, or
// rotates: an expired current session is summarized and removed before a
// fresh session becomes current. The returned id is never that of an
// expired session.
func (m *Manager) ResolveOrCreateActive(ctx context.Context) string {
	now := time.Now().UTC()

	var (
		expiredID    string
		expiredTurns []Turn
	)

	m.mu.Lock()
	if m.current != "" {
		if s, ok := m.sessions[m.current]; ok && !m.expiredLocked(s, now) {
			s.lastAccessed = now
			id := m.current
			m.mu.Unlock()
			return id
		}
		// Null the pointer the instant expiry is detected, before any
		// other store mutation.
		expiredID = m.current
		m.current = ""
		if s, ok := m.sessions[expiredID]; ok {
			expiredTurns = append([]Turn(nil), s.turns...)
		}
	}
	m.mu.Unlock()

	if expiredID != "" {
		log.Printf("session: %s expired, summarizing", expiredID)
		m.summarizeAndRemove(ctx, expiredID, expiredTurns)
	}

	m.mu.Lock()
	id := newSessionID(now)
	m.sessions[id] = &sessionState{createdAt: now, lastAccessed: now}
	m.current = id
	m.mu.Unlock()

	log.Printf("session: created %s", id)
	return id
}

// AppendTurn inserts one turn and runs the trimmer on the target session.
// With an explicit session id the session is created on first use and never
// auto-expires; with an empty id the auto-managed current session is used.
func (m *Manager) AppendTurn(ctx context.Context, role Role, text, sessionID string, metadata map[string]any) (string, error) {
	if !validRole(role) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	id := sessionID
	if id == "" {
		id = m.ResolveOrCreateActive(ctx)
	}

	now := time.Now().UTC()
	turn := Turn{Role: role, Text: text, Timestamp: now, Metadata: metadata}

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		s = &sessionState{createdAt: now, lastAccessed: now}
		m.sessions[id] = s
	}
	s.turns = append(s.turns, turn)
	s.turns = trimTurns(s.turns, m.maxTurns, m.maxChars)
	s.lastAccessed = now
	m.mu.Unlock()

	return id, nil
}

// Turns returns a copy of a session's turn list in insertion order and
// refreshes its last-access time. An unknown session yields an empty list;
// absence is a normal state, not a fault.
func (m *Manager) Turns(sessionID string) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	s.lastAccessed = time.Now().UTC()
	return append([]Turn(nil), s.turns...)
}

// Search returns the turns whose text contains the query, case-insensitive.
func (m *Manager) Search(sessionID, query string) []Turn {
	if sessionID == "" || query == "" {
		return nil
	}
	q := strings.ToLower(query)

	var matches []Turn
	for _, t := range m.Turns(sessionID) {
		if strings.Contains(strings.ToLower(t.Text), q) {
			matches = append(matches, t)
		}
	}
	return matches
}

// Current returns the active session id, if one exists and has not expired.
func (m *Manager) Current() (string, bool) {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == "" {
		return "", false
	}
	s, ok := m.sessions[m.current]
	if !ok || m.expiredLocked(s, now) {
		return "", false
	}
	return m.current, true
}

// Info reports a session's lifecycle metadata.
func (m *Manager) Info(sessionID string) (Info, bool) {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Info{}, false
	}
	return Info{
		SessionID:    sessionID,
		CreatedAt:    s.createdAt,
		LastAccessed: s.lastAccessed,
		TurnCount:    len(s.turns),
		IsExpired:    m.expiredLocked(s, now),
		IsCurrent:    sessionID == m.current,
	}, true
}

// ListSessions reports lifecycle metadata for every stored session.
func (m *Manager) ListSessions() []Info {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.sessions))
	for id, s := range m.sessions {
		out = append(out, Info{
			SessionID:    id,
			CreatedAt:    s.createdAt,
			LastAccessed: s.lastAccessed,
			TurnCount:    len(s.turns),
			IsExpired:    m.expiredLocked(s, now),
			IsCurrent:    id == m.current,
		})
	}
	return out
}

// Stats reports context-window utilization for a session.
func (m *Manager) Stats(sessionID string) Stats {
	m.mu.Lock()
	maxTurns, maxChars := m.maxTurns, m.maxChars
	var turns []Turn
	if s, ok := m.sessions[sessionID]; ok {
		turns = append([]Turn(nil), s.turns...)
	}
	m.mu.Unlock()

	total := totalChars(turns)
	turnUtil := float64(len(turns)) / float64(maxTurns) * 100
	charUtil := float64(total) / float64(maxChars) * 100
	util := turnUtil
	if charUtil > util {
		util = charUtil
	}
	return Stats{
		SessionID:          sessionID,
		TurnCount:          len(turns),
		TotalChars:         total,
		MaxTurns:           maxTurns,
		MaxChars:           maxChars,
		UtilizationPercent: float64(int(util*100+0.5)) / 100,
		IsFull:             len(turns) >= maxTurns || total >= maxChars,
	}
}

// ForceRotate unconditionally summarizes and removes the current session,
// then creates and returns a fresh one.
func (m *Manager) ForceRotate(ctx context.Context) string {
	m.mu.Lock()
	id := m.current
	m.current = ""
	var turns []Turn
	if id != "" {
		if s, ok := m.sessions[id]; ok {
			turns = append([]Turn(nil), s.turns...)
		}
	}
	m.mu.Unlock()

	if id != "" {
		m.summarizeAndRemove(ctx, id, turns)
	}
	return m.ResolveOrCreateActive(ctx)
}

// SweepExpired summarizes and removes every expired session. Idempotent and
// safe to run concurrently with normal traffic.
func (m *Manager) SweepExpired(ctx context.Context) int {
	now := time.Now().UTC()

	type expired struct {
		id    string
		turns []Turn
	}
	var found []expired

	m.mu.Lock()
	for id, s := range m.sessions {
		if m.expiredLocked(s, now) {
			found = append(found, expired{id: id, turns: append([]Turn(nil), s.turns...)})
			if m.current == id {
				m.current = ""
			}
		}
	}
	m.mu.Unlock()

	for _, e := range found {
		log.Printf("session: sweeping expired %s", e.id)
		m.summarizeAndRemove(ctx, e.id, e.turns)
	}
	return len(found)
}

// Clear drops a session's short-term memory without summarizing it.
func (m *Manager) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	if m.current == sessionID {
		m.current = ""
	}
}

// SetLimits updates the context budgets at runtime and re-trims every
// session against the new limits. Non-positive values leave the
// corresponding budget unchanged.
func (m *Manager) SetLimits(maxTurns, maxChars int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if maxTurns > 0 {
		m.maxTurns = maxTurns
	}
	if maxChars > 0 {
		m.maxChars = maxChars
	}
	for _, s := range m.sessions {
		s.turns = trimTurns(s.turns, m.maxTurns, m.maxChars)
	}
}

// Limits returns the current context budgets.
func (m *Manager) Limits() (maxTurns, maxChars int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxTurns, m.maxChars
}

// SetTimeout updates the inactivity timeout at runtime.
func (m *Manager) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
}

// Timeout returns the inactivity timeout.
func (m *Manager) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

// StartJanitor sweeps expired sessions on an interval until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SweepExpired(ctx)
			}
		}
	}()
}

// summarizeAndRemove builds the topic-grouped summary from a snapshot of the
// session's turns, hands it to the sink and archiver, then removes the
// session from the store. Summarization happens-before removal; a storage
// failure is logged and swallowed so it can never block session rotation.
func (m *Manager) summarizeAndRemove(ctx context.Context, sessionID string, turns []Turn) {
	m.mu.Lock()
	sink := m.sink
	archiver := m.archiver
	threshold := m.relatedness
	m.mu.Unlock()

	summary := BuildSummary(sessionID, turns, threshold)
	if summary != "" && sink != nil {
		if err := sink.StoreSummary(ctx, sessionID, summary, len(turns)); err != nil {
			log.Printf("session: store summary for %s failed: %v", sessionID, err)
		} else {
			log.Printf("session: stored summary for %s", sessionID)
		}
	}
	if archiver != nil && len(turns) > 0 {
		if err := archiver.ArchiveSession(ctx, sessionID, summary, turns); err != nil {
			log.Printf("session: archive %s failed: %v", sessionID, err)
		}
	}

	m.mu.Lock()
	delete(m.sessions, sessionID)
	if m.current == sessionID {
		m.current = ""
	}
	m.mu.Unlock()
}
