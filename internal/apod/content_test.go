package apod_test

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"time"

	"apod-go/internal/apod"
	"apod-go/internal/testutil"
)

func TestParseDate(t *testing.T) {
	clock := testutil.FixedClock()

	tests := []struct {
		date    string
		wantErr bool
	}{
		{"2024-01-15", false},
		{"1995-06-16", false},
		{"2000-02-29", false},
		{"1995-06-15", true},
		{"2024-01-16", true},
		{"2023-02-29", true},
		{"2024-1-15", true},
		{"20240115", true},
		{" 2024-01-15", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			got, err := apod.ParseDate(tt.date, clock)
			if tt.wantErr {
				if !errors.Is(err, apod.ErrInvalidDate) {
					t.Errorf("ParseDate(%q) error = %v, want ErrInvalidDate", tt.date, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDate(%q) error = %v", tt.date, err)
			}
			if got != tt.date {
				t.Errorf("ParseDate(%q) = %q", tt.date, got)
			}
		})
	}
}

func TestToday(t *testing.T) {
	clock := testutil.NewStubClock(time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC))
	if got := apod.Today(clock); got != "2024-03-01" {
		t.Errorf("Today() = %q, want 2024-03-01", got)
	}
}

func TestContentHash(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("apod"),
		[]byte(strings.Repeat("\xab", 1024)),
	}
	for _, in := range inputs {
		got := apod.ContentHash(in)
		if want := testutil.SHA256Hex(in); got != want {
			t.Errorf("ContentHash(%d bytes) = %q, want %q", len(in), got, want)
		}
		if !apod.IsContentHash(got) {
			t.Errorf("IsContentHash(%q) = false", got)
		}
	}
}

func TestIsContentHash(t *testing.T) {
	valid := testutil.SHA256Hex([]byte("x"))

	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"sha256 hex", valid, true},
		{"uppercase", strings.ToUpper(valid), false},
		{"too short", valid[:63], false},
		{"non hex", strings.Repeat("g", 64), false},
		{"date", "2024-01-15", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apod.IsContentHash(tt.in); got != tt.want {
				t.Errorf("IsContentHash(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"invalid date", fmt.Errorf("%w: bad", apod.ErrInvalidDate), "InvalidDate"},
		{"provider", &apod.ProviderError{Date: "2024-01-15", Err: errors.New("503")}, "ProviderError"},
		{"store unavailable", fmt.Errorf("opening: %w", apod.ErrStoreUnavailable), "StoreUnavailable"},
		{"duplicate", apod.ErrDuplicateHash, "DuplicateHash"},
		{"write failed", errors.Join(apod.ErrStoreWriteFailed, errors.New("disk I/O")), "StoreWriteFailed"},
		{"filesystem", &apod.FilesystemError{Op: "write", Path: "/x", Err: fs.ErrPermission}, "FilesystemError"},
		{"not found", fmt.Errorf("getting: %w", apod.ErrNotFound), "NotFound"},
		{"wallpaper", fmt.Errorf("%w: boom", apod.ErrWallpaper), "WallpaperError"},
		{"other", errors.New("boom"), "Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apod.ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}
