package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polygene/internal/entitystore"
	"github.com/roach88/polygene/internal/entitystore/storetest"
)

func TestStore_SQLite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) entitystore.EntityStore {
		return createTestStore(t)
	})
}

func TestStore_Postgres(t *testing.T) {
	dsn := os.Getenv("POLYGENE_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POLYGENE_POSTGRES_DSN not set")
	}
	runServerSuite(t, Postgres, dsn)
}

func TestStore_MySQL(t *testing.T) {
	dsn := os.Getenv("POLYGENE_MYSQL_DSN")
	if dsn == "" {
		t.Skip("POLYGENE_MYSQL_DSN not set")
	}
	runServerSuite(t, MySQL, dsn)
}

func runServerSuite(t *testing.T, d Dialect, dsn string) {
	s, err := Open(context.Background(), d, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	storetest.Run(t, func(t *testing.T) entitystore.EntityStore {
		resetTable(t, s)
		return s
	})
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := createTestStore(t)

	var mode string
	require.NoError(t, s.DB().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var version int
	require.NoError(t, s.DB().QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	storetest.Create(t, s1, "a", "Thing", map[string]any{"n": 1})
	require.NoError(t, s1.Close())

	s2, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, int64(1), storetest.Load(t, s2, "a").Version())
}

func TestStore_RowCopiesRecordColumns(t *testing.T) {
	s := createTestStore(t)
	storetest.Create(t, s, "order/1", "Order", map[string]any{"name": "widget"})

	var typ, data string
	var version int64
	err := s.DB().QueryRow("SELECT type, version, data FROM entities WHERE reference = ?", "order/1").
		Scan(&typ, &version, &data)
	require.NoError(t, err)
	assert.Equal(t, "Order", typ)
	assert.Equal(t, int64(1), version)
	assert.Contains(t, data, `"properties":{"name":"widget"}`)
}

func TestStore_CorruptRowIsIOError(t *testing.T) {
	s := createTestStore(t)
	_, err := s.DB().Exec("INSERT INTO entities (reference, type, version, modified, data) VALUES ('a', 'T', 1, 0, 'nope')")
	require.NoError(t, err)

	_, err = s.EntityState(context.Background(), "a")
	assert.True(t, entitystore.IsIOError(err))
}

func TestDialect_Rebind(t *testing.T) {
	q := "UPDATE entities SET version = ? WHERE reference = ? AND version = ?"
	assert.Equal(t, "UPDATE entities SET version = $1 WHERE reference = $2 AND version = $3", Postgres.rebind(q))
	assert.Equal(t, q, MySQL.rebind(q))
	assert.Equal(t, q, SQLite.rebind(q))
}

func TestDialect_Statements(t *testing.T) {
	for _, d := range []Dialect{SQLite, Postgres, MySQL} {
		t.Run(d.Name(), func(t *testing.T) {
			stmts, err := d.statements()
			require.NoError(t, err)
			require.NotEmpty(t, stmts)
			assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS entities")
			for _, stmt := range stmts {
				assert.NotContains(t, stmt, "--")
			}
		})
	}
}

func TestDialectByName(t *testing.T) {
	for name, want := range map[string]string{
		"sqlite":     "sqlite",
		"SQLite3":    "sqlite",
		"postgres":   "postgres",
		"postgresql": "postgres",
		"mysql":      "mysql",
	} {
		d, err := DialectByName(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, d.Name())
	}
	_, err := DialectByName("oracle")
	assert.Error(t, err)
}
