// File: internal/store/postgres.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/voyantlabs/pagepilot/api/schemas"
)

// ErrSessionNotFound is returned when the requested session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresStore persists recording sessions in PostgreSQL. The full action
// list is stored as a JSONB payload; listing columns are denormalized for
// cheap summaries.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.SessionStore = (*PostgresStore)(nil)

const createSessionsTableSQL = `
	CREATE TABLE IF NOT EXISTS recording_sessions (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		url          TEXT NOT NULL DEFAULT '',
		action_count INTEGER NOT NULL,
		duration_ms  BIGINT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		payload      JSONB NOT NULL
	);
`

// NewPostgres creates the store, verifies connectivity and ensures the schema
// exists.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createSessionsTableSQL); err != nil {
		return nil, fmt.Errorf("failed to ensure sessions table: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("store.postgres"),
	}, nil
}

// SaveSession inserts a completed session. Sessions are immutable, so an id
// collision is an error rather than an upsert.
func (s *PostgresStore) SaveSession(ctx context.Context, session *schemas.RecordingSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session payload: %w", err)
	}

	query := `
		INSERT INTO recording_sessions (id, name, url, action_count, duration_ms, created_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err = s.pool.Exec(ctx, query,
		session.ID, session.Name, session.URL,
		session.ActionCount, session.Duration, session.CreatedAt.UTC(), payload,
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
func (s *PostgresStore) GetSession(ctx context.Context, id string) (*schemas.RecordingSession, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM recording_sessions WHERE id = $1;`, id,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session %s: %w", id, err)
	}

	var session schemas.RecordingSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session payload: %w", err)
	}
	return &session, nil
}

// ListSessions returns summaries of every stored session, newest first.
func (s *PostgresStore) ListSessions(ctx context.Context) ([]schemas.SessionSummary, error) {
	query := `
		SELECT id, name, url, action_count, duration_ms, created_at
		FROM recording_sessions
		ORDER BY created_at DESC;
	`
	rows, err := s.pool.Query(ctx, query)
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
func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM recording_sessions WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
