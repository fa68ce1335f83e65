package fs

import (
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"apod-go/internal/apod"
)

func newTestFiles(t *testing.T) *OSImageFiles {
	t.Helper()
	f, err := NewOSImageFiles(t.TempDir())
	if err != nil {
		t.Fatalf("NewOSImageFiles() error = %v", err)
	}
	return f
}

func TestNewOSImageFiles(t *testing.T) {
	t.Run("creates images directory", func(t *testing.T) {
		dir := t.TempDir()
		f, err := NewOSImageFiles(dir)
		if err != nil {
			t.Fatalf("NewOSImageFiles() error = %v", err)
		}
		if f.Root() != filepath.Join(dir, ImagesDirName) {
			t.Errorf("Root() = %q, want %q", f.Root(), filepath.Join(dir, ImagesDirName))
		}
		info, err := os.Stat(f.Root())
		if err != nil || !info.IsDir() {
			t.Fatalf("images directory not created: %v", err)
		}
	})

	t.Run("image dir that is a file is a FilesystemError", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plain")
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}

		_, err := NewOSImageFiles(path)
		var fsErr *apod.FilesystemError
		if !errors.As(err, &fsErr) {
			t.Fatalf("error = %v, want *apod.FilesystemError", err)
		}
	})
}

func TestOSImageFiles_WriteRead(t *testing.T) {
	f := newTestFiles(t)
	data := []byte("image bytes")
	hash := apod.ContentHash(data)

	path, err := f.Write(hash, "jpg", data)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if path != f.PathFor(hash, "jpg") {
		t.Errorf("Write() path = %q, want %q", path, f.PathFor(hash, "jpg"))
	}
	if filepath.Base(path) != hash+".jpg" {
		t.Errorf("file name = %q, want %q", filepath.Base(path), hash+".jpg")
	}

	got, err := f.Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Read() = %q, want %q", got, data)
	}

	entries, _ := os.ReadDir(f.Root())
	if len(entries) != 1 {
		t.Errorf("images dir has %d entries, want 1 (no temp files left)", len(entries))
	}
}

func TestOSImageFiles_WriteFailureLeavesNothing(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("permission checks are not enforced")
	}

	f := newTestFiles(t)
	if err := os.Chmod(f.Root(), 0555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(f.Root(), 0755) })

	data := []byte("x")
	hash := apod.ContentHash(data)
	_, err := f.Write(hash, "png", data)

	var fsErr *apod.FilesystemError
	if !errors.As(err, &fsErr) {
		t.Fatalf("Write() error = %v, want *apod.FilesystemError", err)
	}
	if _, err := os.Stat(f.PathFor(hash, "png")); !errors.Is(err, iofs.ErrNotExist) {
		t.Errorf("final path exists after failed write: %v", err)
	}
}

func TestOSImageFiles_ReadMissing(t *testing.T) {
	f := newTestFiles(t)

	_, err := f.Read(f.PathFor("deadbeef", "jpg"))
	if !errors.Is(err, iofs.ErrNotExist) {
		t.Errorf("Read() error = %v, want ErrNotExist", err)
	}
	var fsErr *apod.FilesystemError
	if !errors.As(err, &fsErr) {
		t.Errorf("Read() error = %v, want *apod.FilesystemError", err)
	}
}

func TestOSImageFiles_Remove(t *testing.T) {
	f := newTestFiles(t)
	path, err := f.Write("abc", "gif", []byte("gif"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if err := f.Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, iofs.ErrNotExist) {
		t.Errorf("file still exists after Remove")
	}
	if err := f.Remove(path); err != nil {
		t.Errorf("second Remove() error = %v, want nil", err)
	}
}

func TestOSImageFiles_List(t *testing.T) {
	f := newTestFiles(t)
	a, _ := f.Write("aaa", "jpg", []byte("a"))
	b, _ := f.Write("bbb", "png", []byte("b"))
	if err := os.WriteFile(filepath.Join(f.Root(), ".tmp-ccc-123"), []byte("c"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(f.Root(), "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	paths, err := f.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(paths) != 2 || paths[0] != a || paths[1] != b {
		t.Errorf("List() = %v, want [%s %s]", paths, a, b)
	}
}

func TestOSImageFiles_ListSkipsIgnored(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, IgnoreFileName), []byte("*.xcf\n"), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := NewOSImageFiles(dir)
	if err != nil {
		t.Fatalf("NewOSImageFiles() error = %v", err)
	}

	kept, _ := f.Write("aaa", "jpg", []byte("a"))
	for _, name := range []string{"nebula.xcf", "Thumbs.db"} {
		if err := os.WriteFile(filepath.Join(f.Root(), name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := f.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(paths) != 1 || paths[0] != kept {
		t.Errorf("List() = %v, want [%s]", paths, kept)
	}
}

func TestResolveImageDir(t *testing.T) {
	t.Run("existing directory", func(t *testing.T) {
		dir := t.TempDir()
		got, err := ResolveImageDir(dir)
		if err != nil {
			t.Fatalf("ResolveImageDir() error = %v", err)
		}
		if got != dir {
			t.Errorf("ResolveImageDir() = %q, want %q", got, dir)
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := ResolveImageDir(filepath.Join(t.TempDir(), "nope"))
		var fsErr *apod.FilesystemError
		if !errors.As(err, &fsErr) {
			t.Errorf("error = %v, want *apod.FilesystemError", err)
		}
	})

	t.Run("regular file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(path, nil, 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := ResolveImageDir(path); err == nil {
			t.Error("ResolveImageDir() expected error for a regular file")
		}
	})
}
