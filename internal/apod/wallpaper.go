package apod

import "context"

// Wallpaper sets the desktop background to a local image file.
type Wallpaper interface {
	SetBackground(ctx context.Context, path string) error
}
