package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"apod-go/internal/apod"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It is safe for concurrent use and is mostly useful in tests.
type MemoryVault struct {
	name            string
	content         map[string][]byte // hash -> content
	metadata        map[string][]byte // "hostID/name" -> metadata
	metadataVersion map[string]int64  // "hostID/name" -> version
	mu              sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:            name,
		content:         make(map[string][]byte),
		metadata:        make(map[string][]byte),
		metadataVersion: make(map[string]int64),
	}
}

func metadataKey(hostID, name string) string {
	return hostID + "/" + name
}

// PutContent stores content identified by its hash.
func (m *MemoryVault) PutContent(ctx context.Context, hash string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.content[hash] = data
	return nil
}

// GetContent retrieves content by hash.
func (m *MemoryVault) GetContent(ctx context.Context, hash string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.content[hash]
	if !ok {
		return fmt.Errorf("content %s: %w", hash, apod.ErrNotFound)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}

	return nil
}

// HasContent reports whether content with this hash is stored.
func (m *MemoryVault) HasContent(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.content[hash]
	return ok, nil
}

// Corrupt overwrites stored content without any checks. Use in tests.
func (m *MemoryVault) Corrupt(hash string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[hash] = data
}

// ContentCount returns the number of stored content items.
func (m *MemoryVault) ContentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.content)
}

// PutMetadata stores a named metadata item for a specific host.
func (m *MemoryVault) PutMetadata(ctx context.Context, hostID, name string, r io.Reader, size int64, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := metadataKey(hostID, name)
	m.metadata[key] = data
	m.metadataVersion[key] = version
	return nil
}

// GetMetadataVersion returns the metadata version for a named item on a host.
// Returns 0 if no metadata has been stored for this host/name.
func (m *MemoryVault) GetMetadataVersion(ctx context.Context, hostID, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.metadataVersion[metadataKey(hostID, name)], nil
}

// Metadata returns a copy of a stored metadata item, or nil.
func (m *MemoryVault) Metadata(hostID, name string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.metadata[metadataKey(hostID, name)]
	if !ok {
		return nil
	}
	return append([]byte(nil), data...)
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return ctx.Err()
}

// Compile-time check that MemoryVault implements apod.Vault interface
var _ apod.Vault = (*MemoryVault)(nil)
