package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"apod-go/internal/apod"
	"apod-go/internal/config"
	"apod-go/internal/database"
	"apod-go/internal/encryption"
	"apod-go/internal/fs"
	"apod-go/internal/provider"
	"apod-go/internal/vault"
	"apod-go/internal/wallpaper"
)

// CatalogMetadataName is the mirror metadata item holding catalog snapshots.
const CatalogMetadataName = "catalog"

// Options carries per-invocation settings for NewAPODApp.
// Provider, Wallpaper and Clock override what the config would build.
type Options struct {
	ImageDir    string // overrides cfg.ImageDir
	NoWallpaper bool
	Operation   string
	Parameters  string

	Provider  apod.Provider
	Wallpaper apod.Wallpaper
	Clock     apod.Clock
	Stderr    io.Writer
}

// APODApp is the application layer between the CLI and APODService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw CLI arguments, and manages the catalog lifecycle on Close.
type APODApp struct {
	cfg          *config.Config
	opts         Options
	imageDir     string
	db           *database.SQLiteDatabase
	mirror       apod.Vault
	encryptor    apod.Encryptor
	service      *apod.APODService
	logger       apod.Logger
	op           *Operation
	logFile      *os.File
	skipSnapshot bool
}

// NewAPODApp creates a fully wired APODApp from the given config.
// The caller must call Close when done.
func NewAPODApp(ctx context.Context, cfg *config.Config, opts Options) (*APODApp, error) {
	if opts.Clock == nil {
		opts.Clock = apod.RealClock{}
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	rawDir := opts.ImageDir
	if rawDir == "" {
		rawDir = cfg.ImageDir
	}
	if rawDir == "" {
		return nil, fmt.Errorf("no image directory given")
	}
	imageDir, err := fs.ResolveImageDir(rawDir)
	if err != nil {
		return nil, err
	}

	files, err := fs.NewOSImageFiles(imageDir)
	if err != nil {
		return nil, err
	}

	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	opID := opts.Clock.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID, level, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a := &APODApp{
		cfg:      cfg,
		opts:     opts,
		imageDir: imageDir,
		logger:   logger,
		op:       NewOperation(opts.Operation, opts.Parameters),
		logFile:  logFile,
	}
	if err := a.wire(ctx, files); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

// wire builds the catalog, mirror, encryptor, provider and wallpaper setter
// and the service on top of them.
func (a *APODApp) wire(ctx context.Context, files apod.ImageFiles) error {
	db, err := database.NewDatabaseFromConfig(a.cfg.Database, a.imageDir)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	a.db = db

	if err := db.CheckMigrations(); err != nil {
		return fmt.Errorf("%w: catalog schema out of date: %w", apod.ErrStoreUnavailable, err)
	}

	mirror, err := vault.NewVaultFromConfig(ctx, a.cfg.Mirror)
	if err != nil {
		return fmt.Errorf("creating mirror: %w", err)
	}
	a.mirror = mirror

	if mirror != nil {
		if err := a.checkMirrorVersion(ctx); err != nil {
			return err
		}
	}

	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if mirror != nil && enc != nil && !enc.IsConfigured() {
		return fmt.Errorf("mirror encryption is not set up: run 'apod encryption init'")
	}
	a.encryptor = enc

	prov := a.opts.Provider
	if prov == nil {
		prov, err = provider.NewProviderFromConfig(a.cfg.Provider)
		if err != nil {
			return fmt.Errorf("creating provider: %w", err)
		}
	}

	wp := a.opts.Wallpaper
	if wp == nil {
		wp, err = wallpaper.NewSetterFromConfig(a.cfg.Wallpaper)
		if err != nil {
			return fmt.Errorf("creating wallpaper setter: %w", err)
		}
	}

	a.service = apod.NewAPODService(db, files, prov, wp, mirror, enc, a.logger, a.opts.Clock)
	return nil
}

// checkMirrorVersion compares the catalog snapshot in the mirror with the
// local operation log. A newer remote snapshot is never overwritten.
func (a *APODApp) checkMirrorVersion(ctx context.Context) error {
	remoteVersion, err := a.mirror.GetMetadataVersion(ctx, a.cfg.HostID, CatalogMetadataName)
	if err != nil {
		return fmt.Errorf("checking mirror catalog version: %w", err)
	}

	localMax, err := a.db.MaxFetchOperationID(ctx)
	if err != nil {
		return fmt.Errorf("checking local catalog version: %w", err)
	}

	if remoteVersion > localMax {
		a.logger.Warn("mirror catalog is newer than local catalog, snapshot upload disabled",
			"local", localMax, "remote", remoteVersion)
		a.skipSnapshot = true
	}
	return nil
}

// Service exposes the underlying service.
func (a *APODApp) Service() *apod.APODService {
	return a.service
}

// ImageDir returns the resolved image directory.
func (a *APODApp) ImageDir() string {
	return a.imageDir
}

// persistOperation saves the operation to the catalog, giving it an auto-increment ID.
// This should only be called for commands that change the catalog or the mirror.
func (a *APODApp) persistOperation(ctx context.Context) error {
	if a.op.Persisted() {
		return nil
	}
	dbOp, err := a.db.CreateFetchOperation(ctx, a.op.Name, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// track runs fn as part of the persisted operation and marks it failed on error.
func (a *APODApp) track(ctx context.Context, fn func() error) error {
	if err := a.persistOperation(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		a.op.Fail()
		return err
	}
	return nil
}

// Fetch fetches the picture for date (today when empty), sets it as the
// desktop background unless disabled, and mirrors it when a mirror is
// configured. A failed mirror upload is logged and does not fail the fetch.
// The result is returned even when setting the background fails.
func (a *APODApp) Fetch(ctx context.Context, date string) (*apod.FetchResult, error) {
	if date == "" {
		date = a.service.Today()
	}
	// A rejected date changes nothing, so it is not recorded as an operation.
	if _, err := apod.ParseDate(date, a.opts.Clock); err != nil {
		return nil, err
	}

	var result *apod.FetchResult
	err := a.track(ctx, func() error {
		var err error
		result, err = a.service.Fetch(ctx, date)
		if err != nil {
			return err
		}

		if a.mirror != nil {
			if _, err := a.service.MirrorImage(ctx, result.Record); err != nil {
				a.logger.Warn("mirroring image failed", "hash", result.Record.ContentHash, "error", err)
			}
		}

		if a.opts.NoWallpaper {
			return nil
		}
		return a.service.SetWallpaper(ctx, result.Record)
	})
	return result, err
}

// Show returns the images matching key, which is either a content hash or
// an APOD date.
func (a *APODApp) Show(ctx context.Context, key string) ([]*apod.ImageRecord, error) {
	if apod.IsContentHash(key) {
		record, err := a.service.GetImage(ctx, key)
		if err != nil {
			return nil, err
		}
		return []*apod.ImageRecord{record}, nil
	}
	return a.service.FindImagesByDate(ctx, key)
}

// List returns the most recently stored images.
func (a *APODApp) List(ctx context.Context, limit int) ([]*apod.ImageRecord, error) {
	return a.service.ListImages(ctx, limit)
}

// GetHistory returns the most recent operations.
func (a *APODApp) GetHistory(ctx context.Context, limit int) ([]*apod.FetchOperation, error) {
	return a.service.GetHistory(ctx, limit)
}

// Verify checks every stored image against its content hash.
func (a *APODApp) Verify(ctx context.Context) ([]*apod.VerifyIssue, error) {
	return a.service.Verify(ctx)
}

// Sync uploads every image the mirror is missing. Returns the number uploaded.
func (a *APODApp) Sync(ctx context.Context) (int, error) {
	if a.mirror == nil {
		return 0, apod.ErrNoMirror
	}
	var n int
	err := a.track(ctx, func() error {
		var err error
		n, err = a.service.SyncMirror(ctx)
		return err
	})
	return n, err
}

// NeedsPassphrase reports whether Restore requires the encryption passphrase.
func (a *APODApp) NeedsPassphrase() bool {
	return a.service.MirrorEncrypted()
}

// Restore brings the image with hash back from the mirror. passphrase is
// only used when mirror content is encrypted.
func (a *APODApp) Restore(ctx context.Context, hash, passphrase string) (bool, error) {
	if a.mirror == nil {
		return false, apod.ErrNoMirror
	}
	var restored bool
	err := a.track(ctx, func() error {
		var decryptCtx apod.DecryptionContext
		if a.service.MirrorEncrypted() {
			var err error
			decryptCtx, err = a.encryptor.Unlock(passphrase)
			if err != nil {
				return fmt.Errorf("unlocking private key: %w", err)
			}
		}
		var err error
		restored, err = a.service.Restore(ctx, hash, decryptCtx)
		return err
	})
	return restored, err
}

// Close finalizes the operation and closes all resources.
// For persisted operations with a mirror: finishes the operation record,
// snapshots the catalog and uploads it with version = operation ID.
// Otherwise it just closes the catalog.
func (a *APODApp) Close() error {
	var errs []error

	if a.op.Persisted() {
		// The command's context may already be cancelled.
		ctx := context.Background()
		if err := a.db.FinishFetchOperation(ctx, a.op.ID, a.op.Status); err != nil {
			errs = append(errs, fmt.Errorf("finishing operation: %w", err))
		}
		if a.mirror != nil && !a.skipSnapshot {
			if err := a.uploadSnapshot(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *APODApp) closeResources() error {
	var err error
	if a.db != nil {
		if cerr := a.db.Close(); cerr != nil {
			err = fmt.Errorf("closing catalog: %w", cerr)
		}
		a.db = nil
	}
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
	return err
}

// uploadSnapshot copies the catalog to a temp file and uploads it to the
// mirror as metadata.
func (a *APODApp) uploadSnapshot(ctx context.Context) error {
	tmpFile, err := os.CreateTemp("", "apod-catalog-*.db")
	if err != nil {
		return fmt.Errorf("creating temp file for catalog snapshot: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	// VACUUM INTO refuses to overwrite an existing file.
	if err := os.Remove(tmpPath); err != nil {
		return fmt.Errorf("preparing catalog snapshot: %w", err)
	}
	if err := a.db.BackupTo(tmpPath); err != nil {
		return err
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening catalog snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat catalog snapshot: %w", err)
	}

	if err := a.mirror.PutMetadata(ctx, a.cfg.HostID, CatalogMetadataName, f, info.Size(), a.op.ID); err != nil {
		return fmt.Errorf("uploading catalog snapshot to mirror: %w", err)
	}
	a.logger.Info("catalog snapshot uploaded", "version", a.op.ID, "bytes", info.Size())
	return nil
}
