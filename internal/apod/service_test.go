package apod_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"apod-go/internal/apod"
	"apod-go/internal/database"
	"apod-go/internal/fs"
	"apod-go/internal/provider"
	"apod-go/internal/testutil"
	"apod-go/internal/wallpaper"
)

const testDate = "2024-01-15"

// testImage is 1024 bytes of 0xAB.
var testImage = bytes.Repeat([]byte{0xAB}, 1024)

type fixture struct {
	catalog   apod.Catalog
	files     *testutil.MemoryImageFiles
	provider  *provider.MemoryProvider
	wallpaper *wallpaper.RecordingSetter
	service   *apod.APODService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		catalog:   testutil.NewTestCatalog(t),
		files:     testutil.NewMemoryImageFiles(),
		provider:  testutil.NewTestProvider(testImage, 1920, 1080, testDate, "2024-01-14"),
		wallpaper: &wallpaper.RecordingSetter{},
	}
	f.rebuild()
	return f
}

func (f *fixture) rebuild() {
	f.service = apod.NewAPODService(f.catalog, f.files, f.provider, f.wallpaper, nil, nil, apod.NewNopLogger(), testutil.FixedClock())
}

func TestAPODService_Fetch(t *testing.T) {
	ctx := context.Background()

	t.Run("first fetch stores, second is a cache hit", func(t *testing.T) {
		f := newFixture(t)

		first, err := f.service.Fetch(ctx, testDate)
		if err != nil {
			t.Fatalf("first Fetch() error = %v", err)
		}
		if first.CacheHit {
			t.Error("first Fetch() CacheHit = true, want false")
		}

		wantHash := testutil.SHA256Hex(testImage)
		rec := first.Record
		if rec.ContentHash != wantHash {
			t.Errorf("ContentHash = %q, want %q", rec.ContentHash, wantHash)
		}
		if rec.SourceDate != testDate {
			t.Errorf("SourceDate = %q, want %q", rec.SourceDate, testDate)
		}
		if rec.WidthPx != 1920 || rec.HeightPx != 1080 {
			t.Errorf("dimensions = %dx%d, want 1920x1080", rec.WidthPx, rec.HeightPx)
		}
		if rec.SizeBytes != 1024 {
			t.Errorf("SizeBytes = %d, want 1024", rec.SizeBytes)
		}
		if rec.LocalPath != f.files.PathFor(wantHash, "bin") {
			t.Errorf("LocalPath = %q, want %q", rec.LocalPath, f.files.PathFor(wantHash, "bin"))
		}

		ok, err := f.catalog.Contains(ctx, wantHash)
		if err != nil || !ok {
			t.Fatalf("Contains() = %v, %v, want true", ok, err)
		}

		second, err := f.service.Fetch(ctx, testDate)
		if err != nil {
			t.Fatalf("second Fetch() error = %v", err)
		}
		if !second.CacheHit {
			t.Error("second Fetch() CacheHit = false, want true")
		}
		if second.Record.LocalPath != rec.LocalPath {
			t.Errorf("second LocalPath = %q, want %q", second.Record.LocalPath, rec.LocalPath)
		}
		if f.files.Writes() != 1 {
			t.Errorf("file writes = %d, want 1", f.files.Writes())
		}
	})

	t.Run("identical bytes on another date are a cache hit", func(t *testing.T) {
		f := newFixture(t)

		if _, err := f.service.Fetch(ctx, testDate); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		result, err := f.service.Fetch(ctx, "2024-01-14")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if !result.CacheHit {
			t.Error("CacheHit = false, want true")
		}
		// The record keeps the date the bytes were first stored for.
		if result.Record.SourceDate != testDate {
			t.Errorf("SourceDate = %q, want %q", result.Record.SourceDate, testDate)
		}
		if f.files.Count() != 1 {
			t.Errorf("files = %d, want 1", f.files.Count())
		}
	})

	t.Run("invalid dates never reach the provider", func(t *testing.T) {
		f := newFixture(t)

		for _, date := range []string{"", "2024-1-5", "2024-02-30", "1995-06-15", "2024-01-16", "yesterday"} {
			_, err := f.service.Fetch(ctx, date)
			if !errors.Is(err, apod.ErrInvalidDate) {
				t.Errorf("Fetch(%q) error = %v, want ErrInvalidDate", date, err)
			}
			if f.provider.Calls(date) != 0 {
				t.Errorf("provider called for %q", date)
			}
		}
	})

	t.Run("provider failures are ProviderError", func(t *testing.T) {
		tests := []struct {
			name string
			pic  *apod.Picture
		}{
			{name: "no picture", pic: nil},
			{name: "empty data", pic: &apod.Picture{WidthPx: 10, HeightPx: 10}},
			{name: "zero width", pic: &apod.Picture{Data: testImage, WidthPx: 0, HeightPx: 10}},
			{name: "negative height", pic: &apod.Picture{Data: testImage, WidthPx: 10, HeightPx: -1}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(t)
				date := "2024-01-10"
				if tt.pic != nil {
					f.provider.Set(date, tt.pic)
				}

				_, err := f.service.Fetch(ctx, date)
				var provErr *apod.ProviderError
				if !errors.As(err, &provErr) {
					t.Fatalf("Fetch() error = %v, want ProviderError", err)
				}
				if provErr.Date != date {
					t.Errorf("ProviderError.Date = %q, want %q", provErr.Date, date)
				}
				if f.files.Count() != 0 {
					t.Errorf("files = %d, want 0", f.files.Count())
				}
			})
		}
	})

	t.Run("file write failure leaves nothing catalogued", func(t *testing.T) {
		f := newFixture(t)
		f.files.WriteErr = errors.New("disk full")

		_, err := f.service.Fetch(ctx, testDate)
		var fsErr *apod.FilesystemError
		if !errors.As(err, &fsErr) {
			t.Fatalf("Fetch() error = %v, want FilesystemError", err)
		}
		if kind := apod.ErrorKind(err); kind != "FilesystemError" {
			t.Errorf("ErrorKind() = %q, want FilesystemError", kind)
		}

		ok, err := f.catalog.Contains(ctx, testutil.SHA256Hex(testImage))
		if err != nil || ok {
			t.Errorf("Contains() = %v, %v, want false", ok, err)
		}
	})

	t.Run("catalog insert failure removes the written file", func(t *testing.T) {
		f := newFixture(t)
		failing := testutil.NewFailingInsertCatalog(f.catalog)
		f.catalog = failing
		f.rebuild()

		_, err := f.service.Fetch(ctx, testDate)
		if !errors.Is(err, apod.ErrStoreWriteFailed) {
			t.Fatalf("Fetch() error = %v, want ErrStoreWriteFailed", err)
		}
		if failing.Creates() != 1 {
			t.Errorf("InsertIfAbsent calls = %d, want 1", failing.Creates())
		}
		if f.files.Writes() != 1 {
			t.Errorf("file writes = %d, want 1", f.files.Writes())
		}
		if f.files.Count() != 0 {
			t.Errorf("files left = %d, want 0", f.files.Count())
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := newFixture(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := f.service.Fetch(cctx, testDate)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Fetch() error = %v, want context.Canceled", err)
		}
	})
}

func TestAPODService_Fetch_Concurrent(t *testing.T) {
	// Deferred first so it runs after every catalog below is closed.
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	imageDir := t.TempDir()
	catalogPath := filepath.Join(imageDir, database.CatalogFileName)
	prov := testutil.NewTestProvider(testImage, 640, 480, testDate)

	const workers = 4
	services := make([]*apod.APODService, workers)
	for i := range services {
		// Each worker gets its own connection, like separate processes would.
		db, err := database.NewSQLiteDatabase(catalogPath)
		if err != nil {
			t.Fatalf("NewSQLiteDatabase() error = %v", err)
		}
		defer db.Close()

		files, err := fs.NewOSImageFiles(imageDir)
		if err != nil {
			t.Fatalf("NewOSImageFiles() error = %v", err)
		}
		services[i] = apod.NewAPODService(db, files, prov, wallpaper.NopSetter{}, nil, nil, apod.NewNopLogger(), testutil.FixedClock())
	}

	results := make([]*apod.FetchResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i, svc := range services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Fetch(ctx, testDate)
		}()
	}
	wg.Wait()

	misses := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("worker %d Fetch() error = %v", i, errs[i])
		}
		if !results[i].CacheHit {
			misses++
		}
		if results[i].Record.LocalPath != results[0].Record.LocalPath {
			t.Errorf("worker %d LocalPath = %q, want %q", i, results[i].Record.LocalPath, results[0].Record.LocalPath)
		}
	}
	if misses != 1 {
		t.Errorf("cache misses = %d, want exactly 1", misses)
	}

	files, err := fs.NewOSImageFiles(imageDir)
	if err != nil {
		t.Fatal(err)
	}
	paths, err := files.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 {
		t.Errorf("image files = %v, want exactly one", paths)
	}
}

func TestAPODService_SetWallpaper(t *testing.T) {
	ctx := context.Background()

	t.Run("sets the record path", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.service.Fetch(ctx, testDate)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}

		if err := f.service.SetWallpaper(ctx, result.Record); err != nil {
			t.Fatalf("SetWallpaper() error = %v", err)
		}
		if got := f.wallpaper.Paths(); len(got) != 1 || got[0] != result.Record.LocalPath {
			t.Errorf("wallpaper paths = %v, want [%s]", got, result.Record.LocalPath)
		}
	})

	t.Run("failure is a wallpaper error", func(t *testing.T) {
		f := newFixture(t)
		f.wallpaper.Err = errors.New("no display")

		err := f.service.SetWallpaper(ctx, &apod.ImageRecord{LocalPath: "/images/x.jpg"})
		if !errors.Is(err, apod.ErrWallpaper) {
			t.Fatalf("SetWallpaper() error = %v, want ErrWallpaper", err)
		}
		if kind := apod.ErrorKind(err); kind != "WallpaperError" {
			t.Errorf("ErrorKind() = %q, want WallpaperError", kind)
		}
	})
}

func TestAPODService_Lookups(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	other := bytes.Repeat([]byte{0xCD}, 512)
	f.provider.Set("2024-01-10", &apod.Picture{Data: other, WidthPx: 1, HeightPx: 1})

	first, err := f.service.Fetch(ctx, testDate)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if _, err := f.service.Fetch(ctx, "2024-01-10"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	got, err := f.service.GetImage(ctx, first.Record.ContentHash)
	if err != nil {
		t.Fatalf("GetImage() error = %v", err)
	}
	if got.SourceDate != testDate {
		t.Errorf("GetImage().SourceDate = %q, want %q", got.SourceDate, testDate)
	}

	if _, err := f.service.GetImage(ctx, testutil.SHA256Hex([]byte("missing"))); !errors.Is(err, apod.ErrNotFound) {
		t.Errorf("GetImage(missing) error = %v, want ErrNotFound", err)
	}

	byDate, err := f.service.FindImagesByDate(ctx, "2024-01-10")
	if err != nil {
		t.Fatalf("FindImagesByDate() error = %v", err)
	}
	if len(byDate) != 1 || byDate[0].ContentHash != testutil.SHA256Hex(other) {
		t.Errorf("FindImagesByDate() = %+v, want the 0xCD image", byDate)
	}

	if _, err := f.service.FindImagesByDate(ctx, "not-a-date"); !errors.Is(err, apod.ErrInvalidDate) {
		t.Errorf("FindImagesByDate(bad) error = %v, want ErrInvalidDate", err)
	}

	all, err := f.service.ListImages(ctx, 0)
	if err != nil {
		t.Fatalf("ListImages() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListImages(0) = %d records, want 2", len(all))
	}

	limited, err := f.service.ListImages(ctx, 1)
	if err != nil {
		t.Fatalf("ListImages(1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("ListImages(1) = %d records, want 1", len(limited))
	}
}
