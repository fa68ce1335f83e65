package apod

import (
	"context"
	"io"
)

// Vault is an off-site, content-addressed copy of the image cache.
// All operations stream through io.Reader/io.Writer.
type Vault interface {
	// PutContent stores content identified by its hash.
	// The operation is idempotent: storing the same hash multiple times is safe.
	// size is the number of bytes that will be read from r.
	PutContent(ctx context.Context, hash string, r io.Reader, size int64) error

	// GetContent retrieves content by hash and writes it to w.
	GetContent(ctx context.Context, hash string, w io.Writer) error

	// HasContent reports whether content with this hash is stored.
	HasContent(ctx context.Context, hash string) (bool, error)

	// PutMetadata stores a named metadata item for a host, e.g. "catalog".
	// version is stored alongside for consistency checks.
	PutMetadata(ctx context.Context, hostID, name string, r io.Reader, size int64, version int64) error

	// GetMetadataVersion returns the stored version, or 0 if none exists.
	GetMetadataVersion(ctx context.Context, hostID, name string) (int64, error)

	// ValidateSetup verifies that the vault is accessible.
	ValidateSetup(ctx context.Context) error
}
