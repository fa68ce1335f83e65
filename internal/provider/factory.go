package provider

import (
	"fmt"
	"time"

	"apod-go/internal/apod"
	"apod-go/internal/config"
)

// NewProviderFromConfig creates a Provider from configuration.
func NewProviderFromConfig(cfg config.ProviderConfig) (apod.Provider, error) {
	switch cfg.Type {
	case "nasa", "":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("nasa provider requires an endpoint")
		}
		return NewNASAProvider(NASAOptions{
			APIKey:          cfg.APIKey,
			Endpoint:        cfg.Endpoint,
			HD:              cfg.HD,
			Timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
			RequestsPerHour: cfg.RequestsPerHour,
			MaxImageBytes:   cfg.MaxImageBytes,
		}), nil
	case "memory":
		return NewMemoryProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %q", cfg.Type)
	}
}
