package apod

import "context"

// Catalog is the durable index of stored images, keyed by content hash.
// Implementations must serialize conflicting writes for the same hash.
type Catalog interface {
	// Contains reports whether a record with this hash exists. It has no side effects.
	Contains(ctx context.Context, hash string) (bool, error)

	// Get returns the record for hash, or ErrNotFound.
	Get(ctx context.Context, hash string) (*ImageRecord, error)

	// Insert durably records a new image. Returns ErrDuplicateHash if the hash
	// is already present.
	Insert(ctx context.Context, record *ImageRecord) error

	// InsertIfAbsent atomically checks for hash and, when absent, calls create
	// and inserts the record it returns. The existing record is returned with
	// inserted=false when the hash is already present; create is not called.
	// An error from create aborts the insert and is returned wrapped.
	InsertIfAbsent(ctx context.Context, hash string, create func() (*ImageRecord, error)) (record *ImageRecord, inserted bool, err error)

	// List returns records newest first. limit <= 0 returns all records.
	List(ctx context.Context, limit int) ([]*ImageRecord, error)

	// FindByDate returns the records first stored for the given APOD date.
	FindByDate(ctx context.Context, date string) ([]*ImageRecord, error)

	// Operation log

	CreateFetchOperation(ctx context.Context, operation, parameters string) (*FetchOperation, error)
	FinishFetchOperation(ctx context.Context, id int64, status string) error
	ListFetchOperations(ctx context.Context, limit int) ([]*FetchOperation, error)
	MaxFetchOperationID(ctx context.Context) (int64, error)

	// Close closes the underlying connection.
	Close() error
}
