package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDBCreatesSchema(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Ping(context.Background()))

	// All five tables must exist.
	for _, table := range []string{"listings", "sync_state", "sync_history", "sync_errors", "pending_changes"} {
		var name string
		row := db.QueryRowContext(context.Background(),
			`SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, table)
		require.NoError(t, row.Scan(&name), "table %s missing", table)
	}
}
