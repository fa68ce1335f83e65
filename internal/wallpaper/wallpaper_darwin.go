//go:build darwin

package wallpaper

import (
	"context"
	"strings"

	"apod-go/internal/apod"
)

// macSetter asks System Events to set the picture on every desktop.
type macSetter struct{}

func (macSetter) SetBackground(ctx context.Context, path string) error {
	script := `tell application "System Events" to tell every desktop to set picture to "` + PathPlaceholder + `"`
	s := &CommandSetter{argv: []string{"osascript", "-e", script}}
	return s.SetBackground(ctx, escapeAppleScript(path))
}

func escapeAppleScript(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func newPlatformSetter() apod.Wallpaper {
	return macSetter{}
}
