package database

import (
	"fmt"
	"path/filepath"

	"apod-go/internal/config"
)

// CatalogFileName is the catalog's file name inside the image directory.
const CatalogFileName = "apod_images.db"

// NewDatabaseFromConfig opens the catalog described by cfg. A sqlite catalog
// without an explicit path lives inside imageDir.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, imageDir string) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite", "":
		path := cfg.Path
		if path == "" {
			if imageDir == "" {
				return nil, fmt.Errorf("image directory required for sqlite catalog")
			}
			path = filepath.Join(imageDir, CatalogFileName)
		}
		return NewSQLiteDatabase(path)
	case "memory":
		return NewSQLiteDatabase(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
