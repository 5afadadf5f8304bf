package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebindDollar(t *testing.T) {
	assert.Equal(t, "SELECT * FROM sessions WHERE id = $1 AND started_at < $2", rebindDollar("SELECT * FROM sessions WHERE id = ? AND started_at < ?"))
	assert.Equal(t, "DELETE FROM sessions", rebindDollar("DELETE FROM sessions"))

	pg := &SQLStore{postgres: true}
	assert.Equal(t, "id = $1", pg.rebind("id = ?"))
	lite := &SQLStore{}
	assert.Equal(t, "id = ?", lite.rebind("id = ?"))
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "sessions.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	want := session("a", 0, code("BMS1180"))
	require.NoError(t, s.Upsert(ctx, want))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	requireSameSession(t, want, got)
}

func TestSQLiteCanceledContext(t *testing.T) {
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.Upsert(ctx, session("a", 0, nil)))
}
