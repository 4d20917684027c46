package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists archived session transcripts in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS archived_sessions (
			session_id TEXT PRIMARY KEY,
			summary TEXT NOT NULL,
			turn_count INT NOT NULL,
			archived_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS archived_turns (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES archived_sessions(session_id) ON DELETE CASCADE,
			seq INT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_archived_turns_session ON archived_turns (session_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, rec SessionRecord) error {
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO archived_sessions (session_id, summary, turn_count, archived_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id) DO UPDATE SET summary = EXCLUDED.summary,
		   turn_count = EXCLUDED.turn_count, archived_at = EXCLUDED.archived_at`,
		rec.SessionID, rec.Summary, rec.TurnCount, rec.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	for i, turn := range rec.Turns {
		id := turn.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO archived_turns (id, session_id, seq, role, content, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO NOTHING`,
			id, rec.SessionID, i, turn.Role, turn.Content, turn.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("save turn %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT session_id, summary, turn_count, archived_at
		 FROM archived_sessions ORDER BY archived_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()

	items := make([]SessionRecord, 0, limit)
	for rows.Next() {
		var r SessionRecord
		if err := rows.Scan(&r.SessionID, &r.Summary, &r.TurnCount, &r.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
