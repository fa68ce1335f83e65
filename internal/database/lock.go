package database

import (
	"fmt"
	"os"

	"apod-go/internal/apod"
)

// lockFileSuffix names the file next to the catalog that serializes schema
// migrations between processes.
const lockFileSuffix = ".migrate.lock"

// acquireMigrationLock takes an exclusive lock on path+".migrate.lock",
// blocking until any other process migrating the same catalog is done.
// In-memory catalogs need no lock.
func acquireMigrationLock(path string) (func(), error) {
	if path == ":memory:" {
		return func() {}, nil
	}

	lockPath := path + lockFileSuffix
	f, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening migration lock %s: %w", apod.ErrStoreUnavailable, lockPath, err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: locking %s: %w", apod.ErrStoreUnavailable, lockPath, err)
	}

	return func() {
		unlockFile(f)
		f.Close()
	}, nil
}
