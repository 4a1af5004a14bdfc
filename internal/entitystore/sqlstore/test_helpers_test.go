package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// createTestStore opens a SQLite store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// resetTable empties the entities table of a shared server database.
func resetTable(t *testing.T, s *Store) {
	t.Helper()
	_, err := s.DB().ExecContext(context.Background(), "DELETE FROM entities")
	require.NoError(t, err)
}
