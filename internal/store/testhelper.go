package store

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// OpenTestDB opens a migrated SQLite database in t.TempDir() and closes it
// when the test ends.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := RunMigrations(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return db
}
