package testutil

import (
	"path/filepath"
	"testing"

	"dedup-go/internal/dedup"
	"dedup-go/internal/index"
)

// NewTestIndex creates a migrated SQLite index in a temp directory. A file
// database is used rather than :memory: because worker sessions each hold
// their own connection, and in-memory SQLite gives every connection a
// separate database. The index is closed when the test completes.
func NewTestIndex(t *testing.T) dedup.Index {
	t.Helper()

	idx, err := index.NewSQLiteIndex(
		filepath.Join(t.TempDir(), "dedup.db"), NewStubIDGenerator(), FixedClock())
	if err != nil {
		t.Fatalf("failed to create test index: %v", err)
	}

	t.Cleanup(func() {
		idx.Close()
	})

	return idx
}
