package vault

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"apod-go/internal/apod"
)

func TestMemoryVault_Content(t *testing.T) {
	v := NewMemoryVault("mem")
	ctx := context.Background()

	if err := v.PutContent(ctx, "h1", strings.NewReader("abc"), 3); err != nil {
		t.Fatalf("PutContent() error = %v", err)
	}
	if err := v.PutContent(ctx, "h2", strings.NewReader("abc"), 4); err == nil {
		t.Error("PutContent() with wrong size expected error")
	}

	var buf bytes.Buffer
	if err := v.GetContent(ctx, "h1", &buf); err != nil {
		t.Fatalf("GetContent() error = %v", err)
	}
	if buf.String() != "abc" {
		t.Errorf("GetContent() = %q, want %q", buf.String(), "abc")
	}

	if err := v.GetContent(ctx, "h2", &buf); !errors.Is(err, apod.ErrNotFound) {
		t.Errorf("GetContent() missing error = %v, want ErrNotFound", err)
	}

	ok, _ := v.HasContent(ctx, "h1")
	if !ok {
		t.Error("HasContent(h1) = false, want true")
	}
	if v.ContentCount() != 1 {
		t.Errorf("ContentCount() = %d, want 1", v.ContentCount())
	}
}

func TestMemoryVault_Metadata(t *testing.T) {
	v := NewMemoryVault("mem")
	ctx := context.Background()

	if err := v.PutMetadata(ctx, "host", "catalog", strings.NewReader("snap"), 4, 3); err != nil {
		t.Fatalf("PutMetadata() error = %v", err)
	}

	version, _ := v.GetMetadataVersion(ctx, "host", "catalog")
	if version != 3 {
		t.Errorf("version = %d, want 3", version)
	}
	if string(v.Metadata("host", "catalog")) != "snap" {
		t.Errorf("Metadata() = %q, want %q", v.Metadata("host", "catalog"), "snap")
	}
	if v.Metadata("other", "catalog") != nil {
		t.Error("Metadata() for unknown host should be nil")
	}
}

func TestMemoryVault_Concurrent(t *testing.T) {
	v := NewMemoryVault("mem")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.PutContent(ctx, "same", strings.NewReader("x"), 1)
			v.HasContent(ctx, "same")
		}()
	}
	wg.Wait()

	if v.ContentCount() != 1 {
		t.Errorf("ContentCount() = %d, want 1", v.ContentCount())
	}
}
