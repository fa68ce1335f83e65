//go:build !windows && !darwin

package wallpaper

import (
	"context"
	"net/url"

	"apod-go/internal/apod"
)

// gnomeSetter sets both the light and dark background URIs.
type gnomeSetter struct{}

func (gnomeSetter) SetBackground(ctx context.Context, path string) error {
	uri := (&url.URL{Scheme: "file", Path: path}).String()
	for _, key := range []string{"picture-uri", "picture-uri-dark"} {
		s := &CommandSetter{argv: []string{"gsettings", "set", "org.gnome.desktop.background", key, PathPlaceholder}}
		if err := s.SetBackground(ctx, uri); err != nil {
			// Older GNOME has no dark variant.
			if key == "picture-uri-dark" {
				return nil
			}
			return err
		}
	}
	return nil
}

// newPlatformSetter targets GNOME through gsettings, falling back to feh for
// bare X11 window managers.
func newPlatformSetter() apod.Wallpaper {
	return chainSetter{
		gnomeSetter{},
		&CommandSetter{argv: []string{"feh", "--bg-fill", PathPlaceholder}},
	}
}
