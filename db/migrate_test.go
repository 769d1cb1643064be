package db

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/autoboat/errors"
)

func TestOpenWithMigrations(t *testing.T) {
	t.Run("creates every table", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		for _, table := range []string{"schema_migrations", "command_state", "cycles"} {
			var n int
			err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
			require.NoError(t, err)
			assert.Equal(t, 1, n, "table %s should exist after migrations", table)
		}

		var applied int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
		assert.Equal(t, 4, applied)
	})

	t.Run("cycles rejects unknown outcome", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.Exec(`INSERT INTO cycles (id, command, outcome, fired_at) VALUES ('x', 'work', 'exploded', '2026-01-01T00:00:00Z')`)
		assert.Error(t, err)
	})

	t.Run("open failures carry stack traces", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		first, err := Open(dbPath, nil)
		require.NoError(t, err)
		first.Close()

		// WAL needs to create -wal/-shm files next to the database
		require.NoError(t, os.Chmod(tmpDir, 0555))
		defer os.Chmod(tmpDir, 0755)

		db, err := OpenWithMigrations(dbPath, nil)
		require.Error(t, err)
		assert.Nil(t, db)

		assert.NotNil(t, errors.GetReportableStackTrace(err))
		detailed := fmt.Sprintf("%+v", err)
		assert.Contains(t, detailed, "connection.go", "stack should reference source file")
	})
}

func TestMigrate(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))
		require.NoError(t, Migrate(db, nil), "running migrations multiple times should be safe")

		var applied int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
		assert.Equal(t, 4, applied)
	})

	t.Run("closed database fails", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()

		err = Migrate(db, nil)
		require.Error(t, err)
		assert.True(t, IsDatabaseClosed(err))
	})
}
