package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS postsignal_kv`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`SELECT value FROM postsignal_kv WHERE key = \$1`).
		WithArgs("stats").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte(`{"total_signals":3}`)))

	v, err := s.Get(context.Background(), "stats")
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_signals":3}`, string(v))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`SELECT value FROM postsignal_kv`).
		WithArgs("recent_signals").
		WillReturnError(pgx.ErrNoRows)

	v, err := s.Get(context.Background(), "recent_signals")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`SELECT value FROM postsignal_kv`).
		WithArgs("stats").
		WillReturnError(errors.New("connection lost"))

	_, err := s.Get(context.Background(), "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: get stats")
}

func TestPostgresStore_Set(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`INSERT INTO postsignal_kv .* ON CONFLICT \(key\) DO UPDATE`).
		WithArgs("stats", `{"total_signals":1}`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Set(context.Background(), "stats", []byte(`{"total_signals":1}`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`DELETE FROM postsignal_kv WHERE key = ANY\(\$1\)`).
		WithArgs([]string{"recent_signals", "stats"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, s.Delete(context.Background(), "recent_signals", "stats"))
	require.NoError(t, s.Delete(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
