// Package testing provides testing utilities and helpers shared across packages.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/clientdata"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/database"
)

// NewTestDB creates a migrated SQLite database in a temporary directory.
// The database is closed automatically when the test ends.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: database.ProfileCache,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}
	return db
}

// NewClientDataRepository returns a repository backed by a fresh client data database
func NewClientDataRepository(t *testing.T) *clientdata.Repository {
	t.Helper()
	return clientdata.NewRepository(NewTestDB(t, database.NameClientData).Conn())
}
