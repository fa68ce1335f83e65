package fs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"apod-go/internal/apod"
)

// ImagesDirName is the subdirectory of the image dir that holds image files.
const ImagesDirName = "images"

// OSImageFiles stores images on the real filesystem as <root>/<hash>.<ext>.
type OSImageFiles struct {
	root   string
	ignore *IgnoreMatcher
}

// NewOSImageFiles creates the images directory under imageDir if needed and
// loads the ignore patterns List applies.
func NewOSImageFiles(imageDir string) (*OSImageFiles, error) {
	abs, err := filepath.Abs(imageDir)
	if err != nil {
		return nil, &apod.FilesystemError{Op: "resolve", Path: imageDir, Err: err}
	}
	root := filepath.Join(abs, ImagesDirName)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, &apod.FilesystemError{Op: "mkdir", Path: root, Err: err}
	}
	ignore, err := loadIgnoreMatcher(abs)
	if err != nil {
		return nil, &apod.FilesystemError{Op: "read", Path: filepath.Join(abs, IgnoreFileName), Err: err}
	}
	return &OSImageFiles{root: root, ignore: ignore}, nil
}

// Root returns the directory images are stored in.
func (f *OSImageFiles) Root() string {
	return f.root
}

// PathFor returns the absolute path for an image with this hash and extension.
func (f *OSImageFiles) PathFor(hash, ext string) string {
	return filepath.Join(f.root, hash+"."+ext)
}

// Write stores data via a temp file in the same directory, synced and renamed
// into place. The temp file is removed on every failure path.
func (f *OSImageFiles) Write(hash, ext string, data []byte) (string, error) {
	final := f.PathFor(hash, ext)

	tmp, err := os.CreateTemp(f.root, ".tmp-"+hash+"-*")
	if err != nil {
		return "", &apod.FilesystemError{Op: "create", Path: final, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", &apod.FilesystemError{Op: "write", Path: final, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return "", &apod.FilesystemError{Op: "sync", Path: final, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", &apod.FilesystemError{Op: "close", Path: final, Err: err}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return "", &apod.FilesystemError{Op: "chmod", Path: final, Err: err}
	}
	if err := os.Rename(tmpName, final); err != nil {
		return "", &apod.FilesystemError{Op: "rename", Path: final, Err: err}
	}
	committed = true
	return final, nil
}

// Read returns the bytes stored at path.
func (f *OSImageFiles) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &apod.FilesystemError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

// Remove deletes the file at path. A missing file is not an error.
func (f *OSImageFiles) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &apod.FilesystemError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// List returns the paths of stored images, skipping in-progress temp files
// and anything the ignore patterns match.
func (f *OSImageFiles) List() ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, &apod.FilesystemError{Op: "list", Path: f.root, Err: err}
	}

	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if f.ignore.Match(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(f.root, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// ResolveImageDir validates a user-supplied image directory and returns its
// absolute path. The directory must already exist.
func ResolveImageDir(rawPath string) (string, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", &apod.FilesystemError{Op: "resolve", Path: rawPath, Err: err}
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", &apod.FilesystemError{Op: "stat", Path: absPath, Err: err}
	}
	if !info.IsDir() {
		return "", &apod.FilesystemError{Op: "stat", Path: absPath, Err: errors.New("not a directory")}
	}
	return absPath, nil
}

// Compile-time check that OSImageFiles implements apod.ImageFiles interface
var _ apod.ImageFiles = (*OSImageFiles)(nil)
