// Package journal keeps a local record of finished capture sessions.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver.
	"github.com/rs/zerolog"
)

// Outcome of a capture session.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Session is one finished capture session.
type Session struct {
	ID          string
	Source      string
	Path        string
	PID         int
	StartedAt   time.Time
	FinishedAt  time.Time
	SampleCount int64
	Status      string
}

// Duration returns how long the capture ran.
func (s Session) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Journal persists sessions in DuckDB.
type Journal struct {
	db     *sql.DB
	owned  bool
	logger zerolog.Logger
	mu     sync.Mutex
}

// Open opens (or creates) the journal database at path. An empty path keeps
// the journal in memory.
func Open(path string, logger zerolog.Logger) (*Journal, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	j, err := New(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	j.owned = true
	return j, nil
}

// New creates a journal on an existing database handle. The caller keeps
// ownership of db.
func New(db *sql.DB, logger zerolog.Logger) (*Journal, error) {
	j := &Journal{
		db:     db,
		logger: logger.With().Str("component", "capture_journal").Logger(),
	}

	if err := j.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS capture_sessions (
			session_id   TEXT PRIMARY KEY,
			source       TEXT      NOT NULL,
			path         TEXT      NOT NULL,
			pid          INTEGER   NOT NULL,
			started_at   TIMESTAMP NOT NULL,
			finished_at  TIMESTAMP NOT NULL,
			sample_count BIGINT    NOT NULL DEFAULT 0,
			status       TEXT      NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_capture_sessions_started
			ON capture_sessions (started_at);
	`

	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	j.logger.Debug().Msg("Capture journal schema initialized")
	return nil
}

// Record stores a finished session.
func (j *Journal) Record(ctx context.Context, s Session) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	query := `
		INSERT INTO capture_sessions (
			session_id, source, path, pid, started_at, finished_at, sample_count, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			sample_count = EXCLUDED.sample_count,
			status = EXCLUDED.status
	`

	_, err := j.db.ExecContext(ctx, query,
		s.ID,
		s.Source,
		s.Path,
		s.PID,
		s.StartedAt.UTC(),
		s.FinishedAt.UTC(),
		s.SampleCount,
		s.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", s.ID, err)
	}

	j.logger.Debug().
		Str("session_id", s.ID).
		Str("source", s.Source).
		Str("status", s.Status).
		Msg("Recorded capture session")
	return nil
}

// List returns the most recent sessions first. A non-positive limit returns all.
func (j *Journal) List(ctx context.Context, limit int) ([]Session, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	query := `
		SELECT session_id, source, path, pid, started_at, finished_at, sample_count, status
		FROM capture_sessions
		ORDER BY started_at DESC, session_id
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(
			&s.ID,
			&s.Source,
			&s.Path,
			&s.PID,
			&s.StartedAt,
			&s.FinishedAt,
			&s.SampleCount,
			&s.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return sessions, nil
}

// Close releases the database when the journal opened it.
func (j *Journal) Close() error {
	if !j.owned {
		return nil
	}
	return j.db.Close()
}
