package apod

import "context"

// Picture is what a Provider returns for a date: the exact image bytes plus
// the dimensions it declares. Nothing else it reports about the content is trusted.
type Picture struct {
	Data     []byte
	WidthPx  int
	HeightPx int
	Title    string
	URL      string
}

// Provider fetches the Astronomy Picture of the Day for a date (YYYY-MM-DD).
type Provider interface {
	GetPicture(ctx context.Context, date string) (*Picture, error)
}
