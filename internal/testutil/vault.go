package testutil

import (
	"apod-go/internal/vault"
)

// NewTestVault creates a new in-memory mirror vault for testing.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault("test-vault")
}
