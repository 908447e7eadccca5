// File: internal/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/voyantlabs/pagepilot/api/schemas"
)

// SQLiteStore is the default zero-setup backend: a single local database
// file, pure-Go driver, no server.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

var _ schemas.SessionStore = (*SQLiteStore)(nil)

const createSQLiteTableSQL = `
	CREATE TABLE IF NOT EXISTS recording_sessions (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		url          TEXT NOT NULL DEFAULT '',
		action_count INTEGER NOT NULL,
		duration_ms  INTEGER NOT NULL,
		created_at   TIMESTAMP NOT NULL,
		payload      TEXT NOT NULL
	);
`

// NewSQLite opens (creating if needed) the database file at path and ensures
// the schema exists.
func NewSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// The file-backed driver is effectively single-writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createSQLiteTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure sessions table: %w", err)
	}

	return &SQLiteStore{
		db:  db,
		log: logger.Named("store.sqlite"),
	}, nil
}

// SaveSession inserts a completed session. Sessions are immutable, so an id
// collision is an error rather than an upsert.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *schemas.RecordingSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session payload: %w", err)
	}

	query := `
		INSERT INTO recording_sessions (id, name, url, action_count, duration_ms, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`
	_, err = s.db.ExecContext(ctx, query,
		session.ID, session.Name, session.URL,
		session.ActionCount, session.Duration, session.CreatedAt.UTC(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}

	s.log.Info("Session saved",
		zap.String("session_id", session.ID),
		zap.String("name", session.Name),
		zap.Int("action_count", session.ActionCount))
	return nil
}

// GetSession loads the full session payload by id.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*schemas.RecordingSession, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM recording_sessions WHERE id = ?;`, id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session %s: %w", id, err)
	}

	var session schemas.RecordingSession
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session payload: %w", err)
	}
	return &session, nil
}

// ListSessions returns summaries of every stored session, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]schemas.SessionSummary, error) {
	query := `
		SELECT id, name, url, action_count, duration_ms, created_at
		FROM recording_sessions
		ORDER BY created_at DESC;
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var summaries []schemas.SessionSummary
	for rows.Next() {
		var sum schemas.SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.URL, &sum.ActionCount, &sum.Duration, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return summaries, nil
}

// DeleteSession removes a stored session by id.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recording_sessions WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// Close closes the database file.
func (s *SQLiteStore) Close() {
	if err := s.db.Close(); err != nil {
		s.log.Warn("Error closing sqlite database", zap.Error(err))
	}
}
