package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"apod-go/internal/apod"
	"apod-go/internal/database"
)

// NewTestCatalog creates a new in-memory catalog with migrations applied.
// The catalog is automatically closed when the test completes.
func NewTestCatalog(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// NewTestFileCatalog creates a catalog backed by a file in a temp directory.
// Use it when behavior depends on SQLite file locking.
func NewTestFileCatalog(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), database.CatalogFileName))
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("injected failure")

// FailingInsertCatalog wraps a Catalog so InsertIfAbsent runs create and
// then fails as if the commit had not made it to disk.
type FailingInsertCatalog struct {
	apod.Catalog
	creates atomic.Int32
}

func NewFailingInsertCatalog(c apod.Catalog) *FailingInsertCatalog {
	return &FailingInsertCatalog{Catalog: c}
}

func (c *FailingInsertCatalog) InsertIfAbsent(ctx context.Context, hash string, create func() (*apod.ImageRecord, error)) (*apod.ImageRecord, bool, error) {
	c.creates.Add(1)
	if _, err := create(); err != nil {
		return nil, false, err
	}
	return nil, false, errors.Join(apod.ErrStoreWriteFailed, ErrInjected)
}

// Creates returns how many times InsertIfAbsent was called.
func (c *FailingInsertCatalog) Creates() int {
	return int(c.creates.Load())
}
