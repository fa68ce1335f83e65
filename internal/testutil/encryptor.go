package testutil

import (
	"apod-go/internal/apod"
	"apod-go/internal/encryption"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() apod.Encryptor {
	return encryption.NewTestEncryptor()
}
