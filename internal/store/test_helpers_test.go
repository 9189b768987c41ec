package store

import (
	"path/filepath"
	"testing"
)

// createTestStore creates a new SQLite store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestLevelStore creates a new LevelDB store in a temp directory.
func createTestLevelStore(t *testing.T) *LevelStore {
	t.Helper()
	s, err := OpenLevel(filepath.Join(t.TempDir(), "level"))
	if err != nil {
		t.Fatalf("OpenLevel() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends returns one fresh instance of every KV backend.
func backends(t *testing.T) map[string]KV {
	t.Helper()
	return map[string]KV{
		BackendSQLite:  createTestStore(t),
		BackendLevelDB: createTestLevelStore(t),
		BackendMemory:  NewMemory(),
	}
}
