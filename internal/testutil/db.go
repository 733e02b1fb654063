// Package testutil provides shared test helpers.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/nvarela/turnero/internal/db"
)

// NewTestDB opens a migrated SQLite database in a per-test temp directory.
// The file is removed with the test's temp dir; Close is registered as a
// cleanup.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := database.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return database
}
