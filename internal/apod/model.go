package apod

import (
	"database/sql"
	"time"
)

// ImageRecord is the catalog entry for one stored image.
// Records are immutable once inserted; ContentHash is the identity.
type ImageRecord struct {
	ContentHash string
	SourceDate  string
	LocalPath   string
	WidthPx     int
	HeightPx    int
	MediaType   string
	SizeBytes   int64
	Title       string
	SourceURL   string
	CreatedAt   time.Time
}

// FetchResult is the outcome of a single Fetch.
type FetchResult struct {
	Record   *ImageRecord
	CacheHit bool
}

// FetchOperation is one entry in the CLI operation log.
type FetchOperation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Operation  string
	Parameters string
	Status     string
}
