package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"apod-go/internal/apod"
)

const userAgent = "apod-go/1.0 (+https://apod.nasa.gov/apod/)"

// ErrNotImage is returned when the APOD for a date is not a still image.
var ErrNotImage = errors.New("apod is not an image")

// NASAOptions configures a NASAProvider.
type NASAOptions struct {
	APIKey          string
	Endpoint        string
	HD              bool
	Timeout         time.Duration
	RequestsPerHour int   // <= 0 disables client-side limiting
	MaxImageBytes   int64 // <= 0 means unlimited
}

// NASAProvider fetches pictures from the NASA APOD API.
type NASAProvider struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    NASAOptions
}

// apodResponse is the subset of the APOD API response we use.
type apodResponse struct {
	Date        string `json:"date"`
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
	URL         string `json:"url"`
	HDURL       string `json:"hdurl"`
	MediaType   string `json:"media_type"`
	Copyright   string `json:"copyright"`
}

// apiError covers both error shapes the API returns.
type apiError struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewNASAProvider creates a provider. The HTTP client uses the default
// transport so requests share its connection pool.
func NewNASAProvider(opts NASAOptions) *NASAProvider {
	limit := rate.Inf
	if opts.RequestsPerHour > 0 {
		limit = rate.Every(time.Hour / time.Duration(opts.RequestsPerHour))
	}
	// Burst 1 spaces consecutive metadata requests evenly across the hour.
	return &NASAProvider{
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
	}
}

// GetPicture fetches the metadata for date, then downloads the image it points at.
func (p *NASAProvider) GetPicture(ctx context.Context, date string) (*apod.Picture, error) {
	meta, err := p.fetchMetadata(ctx, date)
	if err != nil {
		return nil, err
	}
	if meta.MediaType != "image" {
		return nil, fmt.Errorf("%w: %s has media type %q", ErrNotImage, date, meta.MediaType)
	}

	imageURL := meta.URL
	if p.opts.HD && meta.HDURL != "" {
		imageURL = meta.HDURL
	}
	if imageURL == "" {
		return nil, fmt.Errorf("apod %s has no image url", date)
	}

	data, err := p.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image header from %s: %w", imageURL, err)
	}

	return &apod.Picture{
		Data:     data,
		WidthPx:  cfg.Width,
		HeightPx: cfg.Height,
		Title:    meta.Title,
		URL:      imageURL,
	}, nil
}

func (p *NASAProvider) fetchMetadata(ctx context.Context, date string) (*apodResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("api_key", p.opts.APIKey)
	q.Set("date", date)
	q.Set("thumbs", "false")
	reqURL := p.opts.Endpoint + "?" + q.Encode()

	resp, err := p.get(ctx, reqURL, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("apod api returned %s: %s", resp.Status, readAPIError(resp.Body))
	}

	var meta apodResponse
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decoding apod response: %w", err)
	}
	return &meta, nil
}

func (p *NASAProvider) download(ctx context.Context, imageURL string) ([]byte, error) {
	resp, err := p.get(ctx, imageURL, "image/*")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("downloading %s: unexpected status %s", imageURL, resp.Status)
	}

	body := io.Reader(resp.Body)
	if p.opts.MaxImageBytes > 0 {
		body = io.LimitReader(resp.Body, p.opts.MaxImageBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", imageURL, err)
	}
	if p.opts.MaxImageBytes > 0 && int64(len(data)) > p.opts.MaxImageBytes {
		return nil, fmt.Errorf("image at %s exceeds %d bytes", imageURL, p.opts.MaxImageBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image at %s is empty", imageURL)
	}
	return data, nil
}

func (p *NASAProvider) get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)

	resp, err := p.client.Do(req)
	if err != nil {
		// url.Error repeats the full URL, key included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("requesting %s: %w", redact(req.URL), err)
	}
	return resp, nil
}

// readAPIError extracts a human-readable message from an API error body.
func readAPIError(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4096))
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Msg != "" {
			return e.Msg
		}
		if e.Error.Message != "" {
			return e.Error.Message
		}
	}
	return strings.TrimSpace(string(body))
}

// redact hides the API key in URLs that end up in error messages.
func redact(u *url.URL) string {
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		c := *u
		c.RawQuery = q.Encode()
		return c.String()
	}
	return u.String()
}

// Compile-time check that NASAProvider implements apod.Provider interface
var _ apod.Provider = (*NASAProvider)(nil)
