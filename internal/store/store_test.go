package store

import (
	"context"
	"path/filepath"
	"testing"

	_ "github.com/skordaschristofanis/instrumentdb/migrations"

	"github.com/skordaschristofanis/instrumentdb/internal/infrastructure/database"
)

// newTestStore creates a store over a freshly initialised temporary
// database.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Create(database.Config{
		Path:        dbPath,
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // Test cleanup
	})

	return NewSQLiteStore(db.DB)
}

// TestInfo verifies info table key access.
func TestInfo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("absent key returns default", func(t *testing.T) {
		got, err := s.GetInfo(ctx, "no_such_key", "fallback")
		if err != nil {
			t.Fatalf("GetInfo() error = %v", err)
		}
		if got != "fallback" {
			t.Errorf("GetInfo() = %q, want %q", got, "fallback")
		}
	})

	t.Run("set then get", func(t *testing.T) {
		if err := s.SetInfo(ctx, "station", "13-ID-E"); err != nil {
			t.Fatalf("SetInfo() error = %v", err)
		}
		got, err := s.GetInfo(ctx, "station", "")
		if err != nil {
			t.Fatalf("GetInfo() error = %v", err)
		}
		if got != "13-ID-E" {
			t.Errorf("GetInfo() = %q, want %q", got, "13-ID-E")
		}
	})

	t.Run("set overwrites", func(t *testing.T) {
		if err := s.SetInfo(ctx, "station", "13-ID-D"); err != nil {
			t.Fatalf("SetInfo() error = %v", err)
		}
		got, _ := s.GetInfo(ctx, "station", "")
		if got != "13-ID-D" {
			t.Errorf("GetInfo() after overwrite = %q, want %q", got, "13-ID-D")
		}
	})

	t.Run("set touches modify_date", func(t *testing.T) {
		if err := s.SetInfo(ctx, "station", "13-BM-C"); err != nil {
			t.Fatalf("SetInfo() error = %v", err)
		}
		modDate, err := s.GetInfo(ctx, "modify_date", "")
		if err != nil {
			t.Fatalf("GetInfo(modify_date) error = %v", err)
		}
		if modDate == "" {
			t.Error("modify_date empty after SetInfo()")
		}
	})
}
