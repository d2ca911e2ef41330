package storage_test

import (
	"path/filepath"
	"testing"

	"expensetracker/internal/storage"
	"expensetracker/internal/storage/storagetest"
)

func openSQLite(t *testing.T) storage.Store {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "expenses.db"), nil)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	storagetest.Run(t, openSQLite)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expenses.db")
	for i := 0; i < 2; i++ {
		repo, err := storage.NewSQLiteRepository(path, nil)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		repo.Close()
	}
}
