package provider

import (
	"context"
	"fmt"
	"sync"

	"apod-go/internal/apod"
)

// MemoryProvider serves fixed pictures by date. Use in tests.
type MemoryProvider struct {
	mu       sync.Mutex
	pictures map[string]*apod.Picture
	calls    map[string]int
}

// NewMemoryProvider creates an empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		pictures: make(map[string]*apod.Picture),
		calls:    make(map[string]int),
	}
}

// Set registers the picture returned for date.
func (p *MemoryProvider) Set(date string, pic *apod.Picture) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pictures[date] = pic
}

// GetPicture returns a copy of the picture registered for date.
func (p *MemoryProvider) GetPicture(ctx context.Context, date string) (*apod.Picture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[date]++

	pic, ok := p.pictures[date]
	if !ok {
		return nil, fmt.Errorf("no picture for %s", date)
	}
	c := *pic
	c.Data = append([]byte(nil), pic.Data...)
	return &c, nil
}

// Calls returns how many times GetPicture was called for date.
func (p *MemoryProvider) Calls(date string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[date]
}

// Compile-time check that MemoryProvider implements apod.Provider interface
var _ apod.Provider = (*MemoryProvider)(nil)
