// Package testutil provides shared helpers for package tests: temp
// projects, wired managers and file fixtures.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"gencodedoc/internal/compress"
	"gencodedoc/internal/config"
	"gencodedoc/internal/database"
	"gencodedoc/internal/fs"
	"gencodedoc/internal/gcd"
	"gencodedoc/internal/store"
)

// NewTestDatabase creates a migrated store in a temp directory, closed
// automatically when the test ends.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Project bundles the wiring tests need for version-manager operations.
type Project struct {
	Root    string
	DB      *database.SQLiteDatabase
	Store   *store.ContentStore
	Manager *gcd.VersionManager
}

// NewTestProject creates a temp project directory with a wired manager.
// The ignore filter excludes the storage directory only.
func NewTestProject(t *testing.T) *Project {
	t.Helper()

	root := t.TempDir()
	db := NewTestDatabase(t)

	compressor, err := compress.New(3)
	if err != nil {
		t.Fatalf("creating compressor: %v", err)
	}

	logger := gcd.NewNopLogger()
	contentStore := store.New(db, compressor, true, gcd.RealClock{})
	filter := fs.NewIgnoreFilter([]string{config.DefaultStoragePath}, nil, nil, nil)
	scanner := fs.NewScanner(root, filter, logger)
	manager := gcd.NewVersionManager(root, db, contentStore, scanner, logger, gcd.RealClock{})

	return &Project{Root: root, DB: db, Store: contentStore, Manager: manager}
}

// WriteFile writes content to a project-relative path, creating parent
// directories.
func WriteFile(t *testing.T, root, relPath, content string) {
	t.Helper()

	abs := filepath.Join(root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(abs), err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", abs, err)
	}
}
