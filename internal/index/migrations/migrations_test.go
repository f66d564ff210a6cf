package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "dedup.db"))
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUp(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	// All tables present after migrating a fresh database.
	for _, table := range []string{"files", "groups", "group_members"} {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).
			Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migration: %v", table, err)
		}
	}

	// Metadata columns from the second migration.
	rows, err := db.Query(`SELECT file_mtime, mime_type, file_type FROM files LIMIT 0`)
	if err != nil {
		t.Fatalf("metadata columns missing: %v", err)
	}
	rows.Close()
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("first MigrateUp() error = %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Fatalf("second MigrateUp() error = %v", err)
	}
}

func TestCheckStatus(t *testing.T) {
	t.Run("unmigrated database", func(t *testing.T) {
		db := openTestDB(t)
		if err := CheckStatus(db); err == nil {
			t.Error("CheckStatus() on fresh database = nil, want error")
		}
	})

	t.Run("current database", func(t *testing.T) {
		db := openTestDB(t)
		if err := MigrateUp(db); err != nil {
			t.Fatalf("MigrateUp() error = %v", err)
		}
		if err := CheckStatus(db); err != nil {
			t.Errorf("CheckStatus() error = %v, want nil", err)
		}
	})
}

func TestSingleOriginalIndex(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	insert := `INSERT INTO files (id, hash, size, drive_name, file_path, is_original, created_at)
		VALUES (?, 'h', 1, 'd', ?, ?, CURRENT_TIMESTAMP)`
	if _, err := db.Exec(insert, "1", "a", 1); err != nil {
		t.Fatalf("inserting original: %v", err)
	}
	if _, err := db.Exec(insert, "2", "b", 1); err == nil {
		t.Error("second original for same hash inserted, want constraint violation")
	}
	if _, err := db.Exec(insert, "3", "c", 0); err != nil {
		t.Errorf("non-original for same hash rejected: %v", err)
	}
}
