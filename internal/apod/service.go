package apod

import (
	"context"
	"errors"
	"fmt"
)

// APODService is the orchestration layer that coordinates the provider,
// the catalog and the image files to perform the operations the CLI needs.
type APODService struct {
	catalog   Catalog
	files     ImageFiles
	provider  Provider
	wallpaper Wallpaper
	mirror    Vault
	encryptor Encryptor
	logger    Logger
	clock     Clock
}

// NewAPODService creates a new APODService with the provided dependencies.
// mirror and encryptor may be nil; mirror operations then fail and uploads
// are stored in plaintext respectively.
func NewAPODService(catalog Catalog, files ImageFiles, provider Provider, wallpaper Wallpaper, mirror Vault, encryptor Encryptor, logger Logger, clock Clock) *APODService {
	return &APODService{
		catalog:   catalog,
		files:     files,
		provider:  provider,
		wallpaper: wallpaper,
		mirror:    mirror,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
	}
}

// Today returns today's date according to the service clock.
func (s *APODService) Today() string {
	return Today(s.clock)
}

// Fetch obtains the picture for date, and stores it unless identical bytes are
// already catalogued. A cache hit discards the downloaded bytes.
func (s *APODService) Fetch(ctx context.Context, date string) (*FetchResult, error) {
	date, err := ParseDate(date, s.clock)
	if err != nil {
		return nil, err
	}

	s.logger.Info("fetch started", "date", date)

	pic, err := s.provider.GetPicture(ctx, date)
	if err != nil {
		return nil, &ProviderError{Date: date, Err: err}
	}
	if len(pic.Data) == 0 {
		return nil, &ProviderError{Date: date, Err: errors.New("empty image")}
	}
	if pic.WidthPx <= 0 || pic.HeightPx <= 0 {
		return nil, &ProviderError{Date: date, Err: fmt.Errorf("invalid image dimensions %dx%d", pic.WidthPx, pic.HeightPx)}
	}

	hash := ContentHash(pic.Data)

	existing, err := s.catalog.Get(ctx, hash)
	if err == nil {
		s.logger.Info("cache hit", "date", date, "hash", hash, "path", existing.LocalPath)
		return &FetchResult{Record: existing, CacheHit: true}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("looking up %s: %w", hash, err)
	}

	ext, mediaType := imageExtension(pic.Data)

	// written is set once the file exists at its final path, so a failed
	// insert can remove it again.
	var written string
	record, inserted, err := s.catalog.InsertIfAbsent(ctx, hash, func() (*ImageRecord, error) {
		path, err := s.files.Write(hash, ext, pic.Data)
		if err != nil {
			return nil, err
		}
		written = path
		return &ImageRecord{
			ContentHash: hash,
			SourceDate:  date,
			LocalPath:   path,
			WidthPx:     pic.WidthPx,
			HeightPx:    pic.HeightPx,
			MediaType:   mediaType,
			SizeBytes:   int64(len(pic.Data)),
			Title:       pic.Title,
			SourceURL:   pic.URL,
			CreatedAt:   s.clock.Now().UTC(),
		}, nil
	})
	if err != nil {
		if written != "" {
			if rmErr := s.files.Remove(written); rmErr != nil {
				s.logger.Error("removing orphaned image", "path", written, "error", rmErr)
			}
		}
		return nil, fmt.Errorf("storing image %s: %w", hash, err)
	}

	if !inserted {
		s.logger.Info("cache hit", "date", date, "hash", hash, "path", record.LocalPath)
		return &FetchResult{Record: record, CacheHit: true}, nil
	}

	s.logger.Info("image stored", "date", date, "hash", hash, "path", record.LocalPath,
		"width", record.WidthPx, "height", record.HeightPx)
	return &FetchResult{Record: record, CacheHit: false}, nil
}

// SetWallpaper sets the desktop background to the record's image.
func (s *APODService) SetWallpaper(ctx context.Context, record *ImageRecord) error {
	if err := s.wallpaper.SetBackground(ctx, record.LocalPath); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWallpaper, record.LocalPath, err)
	}
	s.logger.Info("desktop background set", "path", record.LocalPath)
	return nil
}

// GetImage returns the catalog record for a content hash.
func (s *APODService) GetImage(ctx context.Context, hash string) (*ImageRecord, error) {
	record, err := s.catalog.Get(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("getting image %s: %w", hash, err)
	}
	return record, nil
}

// FindImagesByDate returns the records first stored for date.
func (s *APODService) FindImagesByDate(ctx context.Context, date string) ([]*ImageRecord, error) {
	date, err := ParseDate(date, s.clock)
	if err != nil {
		return nil, err
	}
	records, err := s.catalog.FindByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("finding images for %s: %w", date, err)
	}
	return records, nil
}

// ListImages returns the most recently stored images, newest first.
func (s *APODService) ListImages(ctx context.Context, limit int) ([]*ImageRecord, error) {
	records, err := s.catalog.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	return records, nil
}
