package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSqliteDB_Memory(t *testing.T) {
	database, err := NewSqliteDB()
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);")
	require.NoError(t, err)

	// the single pooled connection keeps the table visible to later statements
	_, err = database.Exec("INSERT INTO t (v) VALUES (?)", "x")
	require.NoError(t, err)

	var count int
	require.NoError(t, database.Get(&count, "SELECT COUNT(*) FROM t"))
	assert.Equal(t, 1, count)
	assert.False(t, IsMySQL(database))
}

func TestNewSqliteDB_File_CreatesParent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "cadence.db")

	database, err := NewSqliteDB(WithPath(dbPath), WithMaxOpenConns(4))
	require.NoError(t, err)
	defer database.Close()

	assert.DirExists(t, filepath.Dir(dbPath))
	assert.FileExists(t, dbPath)
}

func TestNewSqliteDB_CustomPragmas(t *testing.T) {
	database, err := NewSqliteDB(WithPragmas("PRAGMA journal_mode=WAL;"))
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t2 (id INTEGER PRIMARY KEY);")
	assert.NoError(t, err)
}

func TestOpen_DefaultsToSqlite(t *testing.T) {
	database, err := Open(Config{Path: filepath.Join(t.TempDir(), "open.db")})
	require.NoError(t, err)
	defer database.Close()

	assert.NoError(t, database.Ping())
}

func TestNewMySQLDB_RequiresDSN(t *testing.T) {
	_, err := NewMySQLDB()
	assert.Error(t, err)

	_, err = NewMySQLDB(WithDSN("::not a dsn"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "sqlite abs path", cfg: Config{Driver: DriverSqlite, Path: "/var/lib/cadence/cadence.db"}},
		{name: "sqlite memory", cfg: Config{Path: ":memory:"}},
		{name: "sqlite relative", cfg: Config{Path: "cadence.db"}, wantErr: true},
		{name: "sqlite empty", cfg: Config{}, wantErr: true},
		{name: "mysql", cfg: Config{Driver: DriverMySQL, DSN: "u:p@tcp(localhost:3306)/cadence"}},
		{name: "mysql no dsn", cfg: Config{Driver: DriverMySQL}, wantErr: true},
		{name: "unknown", cfg: Config{Driver: "postgres", DSN: "x"}, wantErr: true},
		{name: "negative conns", cfg: Config{Path: ":memory:", MaxOpenConns: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
