package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscrm/strata/pkg/sanitize"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping store test in short mode")
	}
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "store_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenSQLiteAppliesPragmas(t *testing.T) {
	db := openTestDB(t)

	var mode string
	err := db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)

	var fk int
	err = db.QueryRowContext(context.Background(), "PRAGMA foreign_keys").Scan(&fk)
	require.NoError(t, err)
	assert.Equal(t, 1, fk)

	assert.Equal(t, sanitize.SQLite, db.Dialect())
}

func TestQueryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO widgets (name) VALUES (?), (?)", "bolt", "nut")
	require.NoError(t, err)

	rows, err := db.QueryContext(ctx, "SELECT name FROM widgets ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"bolt", "nut"}, names)
}

func TestMaintenanceRunOnce(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE widgets (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	m := NewMaintenance(db, []string{"widgets"})
	require.NoError(t, m.RunOnce(ctx))

	// A bad schedule is rejected; a good one starts and stops cleanly.
	err = m.Start("not a schedule")
	require.Error(t, err)
	require.NoError(t, m.Start("@daily"))
	err = m.Start("@daily")
	require.Error(t, err)
	m.Stop()
	m.Stop()
}
