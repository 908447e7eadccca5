// File: internal/store/postgres_test.go
package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voyantlabs/pagepilot/internal/store"
)

func newMockStore(t *testing.T) (*store.PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS recording_sessions").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	st, err := store.NewPostgres(context.Background(), mock, zaptest.NewLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return st, mock
}

func TestPostgresSaveSession(t *testing.T) {
	st, mock := newMockStore(t)
	session := sampleSession("s1", time.Now().UTC())

	mock.ExpectExec("INSERT INTO recording_sessions").
		WithArgs(session.ID, session.Name, session.URL,
			session.ActionCount, session.Duration, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, st.SaveSession(context.Background(), session))
}

func TestPostgresGetSession(t *testing.T) {
	st, mock := newMockStore(t)
	session := sampleSession("s1", time.Now().UTC().Truncate(time.Second))
	payload, err := json.Marshal(session)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM recording_sessions").
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))

	loaded, err := st.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, session.Name, loaded.Name)
	require.Len(t, loaded.Actions, 1)
	assert.True(t, loaded.Actions[0].Verified)
}

func TestPostgresGetSessionNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT payload FROM recording_sessions").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestPostgresListSessions(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, name, url, action_count, duration_ms, created_at").
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "name", "url", "action_count", "duration_ms", "created_at"}).
			AddRow("new", "run b", "https://b", 3, int64(900), now).
			AddRow("old", "run a", "https://a", 1, int64(5400), now.Add(-time.Hour)))

	summaries, err := st.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "new", summaries[0].ID)
	assert.Equal(t, 3, summaries[0].ActionCount)
	assert.Equal(t, int64(900), summaries[0].Duration)
}

func TestPostgresDeleteSession(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM recording_sessions").
		WithArgs("s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	assert.NoError(t, st.DeleteSession(context.Background(), "s1"))

	mock.ExpectExec("DELETE FROM recording_sessions").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, st.DeleteSession(context.Background(), "missing"), store.ErrSessionNotFound)
}

func TestPostgresPingFailureAborts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	_, err = store.NewPostgres(context.Background(), mock, zaptest.NewLogger(t))
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
