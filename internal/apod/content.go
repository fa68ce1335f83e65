package apod

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

// DateLayout is the APOD date format.
const DateLayout = "2006-01-02"

// FirstAPODDate is the date of the first Astronomy Picture of the Day.
var FirstAPODDate = time.Date(1995, time.June, 16, 0, 0, 0, 0, time.UTC)

// ContentHash returns the lowercase hex SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsContentHash reports whether s looks like a value returned by ContentHash.
func IsContentHash(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// ParseDate validates an APOD date. The date must be in YYYY-MM-DD form and
// fall between the first APOD and today (as reported by clock).
func ParseDate(date string, clock Clock) (string, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("%w: %q should be YYYY-MM-DD", ErrInvalidDate, date)
	}
	if t.Format(DateLayout) != date {
		return "", fmt.Errorf("%w: %q should be YYYY-MM-DD", ErrInvalidDate, date)
	}
	if t.Before(FirstAPODDate) {
		return "", fmt.Errorf("%w: %s is before the first APOD (%s)", ErrInvalidDate, date, FirstAPODDate.Format(DateLayout))
	}
	if today := Today(clock); date > today {
		return "", fmt.Errorf("%w: %s is in the future", ErrInvalidDate, date)
	}
	return date, nil
}

// Today returns the current date in YYYY-MM-DD form.
func Today(clock Clock) string {
	return clock.Now().Format(DateLayout)
}

// imageExtension sniffs the image format from the bytes themselves.
func imageExtension(data []byte) (ext, mediaType string) {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return "jpg", "jpeg"
	case "image/png":
		return "png", "png"
	case "image/gif":
		return "gif", "gif"
	case "image/webp":
		return "webp", "webp"
	case "image/bmp":
		return "bmp", "bmp"
	default:
		return "bin", "unknown"
	}
}
