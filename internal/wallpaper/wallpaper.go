package wallpaper

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"apod-go/internal/apod"
	"apod-go/internal/config"
)

// PathPlaceholder is replaced with the image path in command arguments.
const PathPlaceholder = "{path}"

// NopSetter leaves the desktop alone.
type NopSetter struct{}

func (NopSetter) SetBackground(context.Context, string) error { return nil }

// CommandSetter runs an external command to set the background.
type CommandSetter struct {
	argv []string
}

// NewCommandSetter creates a setter that runs argv, replacing PathPlaceholder
// in each argument with the image path. If no argument contains the
// placeholder the path is appended.
func NewCommandSetter(argv []string) (*CommandSetter, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("wallpaper command is empty")
	}
	return &CommandSetter{argv: append([]string(nil), argv...)}, nil
}

// Args returns the argv that would be run for path.
func (s *CommandSetter) Args(path string) []string {
	args := make([]string, 0, len(s.argv)+1)
	substituted := false
	for _, a := range s.argv {
		if strings.Contains(a, PathPlaceholder) {
			substituted = true
		}
		args = append(args, strings.ReplaceAll(a, PathPlaceholder, path))
	}
	if !substituted {
		args = append(args, path)
	}
	return args
}

// SetBackground runs the configured command.
func (s *CommandSetter) SetBackground(ctx context.Context, path string) error {
	args := s.Args(path)
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("running %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// chainSetter tries each setter in turn and returns the first success.
type chainSetter []apod.Wallpaper

func (c chainSetter) SetBackground(ctx context.Context, path string) error {
	var errs []string
	for _, s := range c {
		err := s.SetBackground(ctx, path)
		if err == nil {
			return nil
		}
		errs = append(errs, err.Error())
	}
	return fmt.Errorf("no wallpaper setter succeeded: %s", strings.Join(errs, "; "))
}

// RecordingSetter remembers every path it was asked to set. Use in tests.
type RecordingSetter struct {
	mu    sync.Mutex
	paths []string
	Err   error
}

func (r *RecordingSetter) SetBackground(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.paths = append(r.paths, path)
	return nil
}

// Paths returns the paths set so far.
func (r *RecordingSetter) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

// NewSetterFromConfig creates a Wallpaper setter from configuration.
func NewSetterFromConfig(cfg config.WallpaperConfig) (apod.Wallpaper, error) {
	switch cfg.Type {
	case "auto", "":
		return newPlatformSetter(), nil
	case "command":
		s, err := NewCommandSetter(cfg.Command)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "none":
		return NopSetter{}, nil
	default:
		return nil, fmt.Errorf("unknown wallpaper type: %q", cfg.Type)
	}
}

var (
	_ apod.Wallpaper = NopSetter{}
	_ apod.Wallpaper = (*CommandSetter)(nil)
	_ apod.Wallpaper = chainSetter(nil)
	_ apod.Wallpaper = (*RecordingSetter)(nil)
)
