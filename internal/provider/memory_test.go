package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apod-go/internal/apod"
	"apod-go/internal/config"
)

func TestMemoryProvider(t *testing.T) {
	p := NewMemoryProvider()
	p.Set("2024-01-01", &apod.Picture{Data: []byte("abc"), WidthPx: 1, HeightPx: 2})

	pic, err := p.GetPicture(context.Background(), "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), pic.Data)

	pic.Data[0] = 'z'
	again, err := p.GetPicture(context.Background(), "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again.Data, "callers get their own copy")

	_, err = p.GetPicture(context.Background(), "2024-01-02")
	assert.Error(t, err)

	assert.Equal(t, 2, p.Calls("2024-01-01"))
	assert.Equal(t, 1, p.Calls("2024-01-02"))
}

func TestNewProviderFromConfig(t *testing.T) {
	t.Run("nasa", func(t *testing.T) {
		cfg := config.NewConfig("h", t.TempDir())
		p, err := NewProviderFromConfig(cfg.Provider)
		require.NoError(t, err)
		assert.IsType(t, &NASAProvider{}, p)
	})

	t.Run("memory", func(t *testing.T) {
		p, err := NewProviderFromConfig(config.ProviderConfig{Type: "memory"})
		require.NoError(t, err)
		assert.IsType(t, &MemoryProvider{}, p)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewProviderFromConfig(config.ProviderConfig{Type: "flickr"})
		assert.Error(t, err)
	})
}
