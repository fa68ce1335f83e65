package testutil

import (
	"apod-go/internal/apod"
	"apod-go/internal/provider"
)

// NewTestProvider creates a MemoryProvider serving data for each date in dates
// with the given dimensions.
func NewTestProvider(data []byte, width, height int, dates ...string) *provider.MemoryProvider {
	p := provider.NewMemoryProvider()
	for _, d := range dates {
		p.Set(d, &apod.Picture{
			Data:     data,
			WidthPx:  width,
			HeightPx: height,
			Title:    "Test picture " + d,
			URL:      "https://apod.example.test/image/" + d + ".jpg",
		})
	}
	return p
}
