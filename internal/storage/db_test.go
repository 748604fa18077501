package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesDatabaseAndSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "keys.db")

	db, err := Open(DriverSQLite, dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = os.Stat(dbPath)
	require.NoError(t, err)

	for _, table := range []string{"schema_migrations", "api_keys"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "keys.db")

	db, err := Open(DriverSQLite, dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(DriverSQLite, dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mongo", "whatever")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := "UPDATE api_keys SET active = ? WHERE id = ?"
	assert.Equal(t, q, rebind(DriverSQLite, q))
	assert.Equal(t, "UPDATE api_keys SET active = $1 WHERE id = $2", rebind(DriverPostgres, q))
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("0001_init.sql")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = parseVersion("init.sql")
	assert.Error(t, err)
}
