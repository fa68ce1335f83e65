package vault

import (
	"context"
	"fmt"

	"apod-go/internal/apod"
	"apod-go/internal/config"
)

// NewVaultFromConfig creates a Vault implementation based on the vault config type.
// Type "none" returns a nil Vault and no error.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig) (apod.Vault, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		v, err := NewS3Vault(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		v, err := NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
