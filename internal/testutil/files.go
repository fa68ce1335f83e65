package testutil

import (
	"io/fs"
	"path"
	"sort"
	"sync"

	"apod-go/internal/apod"
)

// MemoryImageFiles is an in-memory apod.ImageFiles. Safe for concurrent use.
type MemoryImageFiles struct {
	mu     sync.Mutex
	root   string
	files  map[string][]byte
	writes int

	// WriteErr, when set, makes every Write fail without storing anything.
	WriteErr error
	// RemoveErr, when set, makes every Remove fail.
	RemoveErr error
}

// NewMemoryImageFiles creates an empty store rooted at /images.
func NewMemoryImageFiles() *MemoryImageFiles {
	return &MemoryImageFiles{root: "/images", files: make(map[string][]byte)}
}

func (m *MemoryImageFiles) PathFor(hash, ext string) string {
	return path.Join(m.root, hash+"."+ext)
}

func (m *MemoryImageFiles) Write(hash, ext string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.PathFor(hash, ext)
	if m.WriteErr != nil {
		return "", &apod.FilesystemError{Op: "write", Path: p, Err: m.WriteErr}
	}
	m.files[p] = append([]byte(nil), data...)
	m.writes++
	return p, nil
}

func (m *MemoryImageFiles) Read(p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.files[p]
	if !ok {
		return nil, &apod.FilesystemError{Op: "read", Path: p, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryImageFiles) Remove(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RemoveErr != nil {
		return &apod.FilesystemError{Op: "remove", Path: p, Err: m.RemoveErr}
	}
	delete(m.files, p)
	return nil
}

func (m *MemoryImageFiles) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// Put stores data at p directly, bypassing WriteErr. Use to set up corruption.
func (m *MemoryImageFiles) Put(p string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[p] = data
}

// Count returns the number of stored files.
func (m *MemoryImageFiles) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// Writes returns the number of successful writes.
func (m *MemoryImageFiles) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Compile-time check that MemoryImageFiles implements apod.ImageFiles interface
var _ apod.ImageFiles = (*MemoryImageFiles)(nil)
