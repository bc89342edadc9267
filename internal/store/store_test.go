package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "console.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSelectedConversationRoundTrip(t *testing.T) {
	db := testDB(t)

	got, err := db.SelectedConversation()
	require.NoError(t, err)
	require.Empty(t, got, "fresh db should have no selection")

	require.NoError(t, db.SaveSelectedConversation("conv-42"))
	got, err = db.SelectedConversation()
	require.NoError(t, err)
	require.Equal(t, "conv-42", got)

	// Overwrite, then clear.
	require.NoError(t, db.SaveSelectedConversation("conv-7"))
	got, _ = db.SelectedConversation()
	require.Equal(t, "conv-7", got)

	require.NoError(t, db.SaveSelectedConversation(""))
	got, _ = db.SelectedConversation()
	require.Empty(t, got)
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	res, err := db.Migrate()
	require.NoError(t, err)
	require.False(t, res.Changed, "second migrate should be a no-op")
	require.False(t, res.Dirty)
}
