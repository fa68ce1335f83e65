package apod

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDate is returned when a date is not a well-formed APOD date.
	ErrInvalidDate = errors.New("invalid date")

	// ErrStoreUnavailable is returned when the catalog cannot be opened or created.
	ErrStoreUnavailable = errors.New("image store unavailable")

	// ErrDuplicateHash is returned by Catalog.Insert when the content hash is already catalogued.
	ErrDuplicateHash = errors.New("duplicate content hash")

	// ErrStoreWriteFailed is returned when the catalog could not durably record a change.
	ErrStoreWriteFailed = errors.New("image store write failed")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrWallpaper is returned when the desktop background could not be set.
	ErrWallpaper = errors.New("wallpaper not set")
)

// ProviderError wraps any failure to obtain a picture from the provider.
type ProviderError struct {
	Date string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error for %s: %v", e.Date, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// FilesystemError wraps a failure to read or write an image file.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// ErrorKind classifies err into the names used for user-facing diagnostics.
func ErrorKind(err error) string {
	var providerErr *ProviderError
	var fsErr *FilesystemError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidDate):
		return "InvalidDate"
	case errors.As(err, &providerErr):
		return "ProviderError"
	case errors.Is(err, ErrStoreUnavailable):
		return "StoreUnavailable"
	case errors.Is(err, ErrDuplicateHash):
		return "DuplicateHash"
	case errors.Is(err, ErrStoreWriteFailed):
		return "StoreWriteFailed"
	case errors.As(err, &fsErr):
		return "FilesystemError"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrWallpaper):
		return "WallpaperError"
	default:
		return "Error"
	}
}
