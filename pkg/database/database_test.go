package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "nested", "test.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrator_AppliesInOrderOnce(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"migrations/002_add_index.sql": {Data: []byte("CREATE INDEX idx_widgets_name ON widgets(name);")},
		"migrations/001_widgets.sql":   {Data: []byte("CREATE TABLE widgets (id TEXT PRIMARY KEY, name TEXT);")},
		"migrations/README.md":         {Data: []byte("not a migration")},
	}

	m := NewMigrator(db, zap.NewNop())
	require.NoError(t, m.RunMigrations(fsys, "migrations"))
	require.NoError(t, m.RunMigrations(fsys, "migrations"), "second run is a no-op")

	applied, err := m.AppliedVersions()
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true, 2: true}, applied)

	_, err = db.Exec("INSERT INTO widgets (id, name) VALUES ('w1', 'bolt')")
	assert.NoError(t, err)
}

func TestMigrator_FailedMigrationRollsBack(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"m/001_broken.sql": {Data: []byte("CREATE TABLE ok (id TEXT); THIS IS NOT SQL;")},
	}

	m := NewMigrator(db, zap.NewNop())
	assert.Error(t, m.RunMigrations(fsys, "m"))

	applied, err := m.AppliedVersions()
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations(fstest.MapFS{
		"sql/010_later.sql": {Data: []byte("SELECT 1;")},
		"sql/003_first.sql": {Data: []byte("SELECT 1;")},
	}, "sql")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 3, migrations[0].Version)
	assert.Equal(t, "first", migrations[0].Name)
	assert.Equal(t, 10, migrations[1].Version)

	_, err = LoadMigrations(fstest.MapFS{"sql/abc.sql": {Data: []byte("SELECT 1;")}}, "sql")
	assert.Error(t, err)

	_, err = LoadMigrations(fstest.MapFS{
		"sql/001_a.sql": {Data: []byte("SELECT 1;")},
		"sql/1_b.sql":   {Data: []byte("SELECT 1;")},
	}, "sql")
	assert.Error(t, err)
}

func TestConfig_DSN(t *testing.T) {
	dsn := Config{Path: "data/approvals.db"}.DSN()
	assert.Equal(t, "file:data/approvals.db?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL", dsn)
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestDB_InTxRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec("CREATE TABLE items (id TEXT PRIMARY KEY)")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = db.InTx(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO items (id) VALUES ('a')"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items").Scan(&count))
	assert.Zero(t, count)
}
