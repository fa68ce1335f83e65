package apod

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNoMirror is returned by mirror operations when no mirror vault is configured.
var ErrNoMirror = errors.New("no mirror configured")

// MirrorImage uploads the record's image to the mirror vault unless the
// mirror already holds it. Returns true if content was uploaded.
func (s *APODService) MirrorImage(ctx context.Context, record *ImageRecord) (bool, error) {
	if s.mirror == nil {
		return false, ErrNoMirror
	}

	has, err := s.mirror.HasContent(ctx, record.ContentHash)
	if err != nil {
		return false, fmt.Errorf("checking mirror for %s: %w", record.ContentHash, err)
	}
	if has {
		s.logger.Debug("image already mirrored", "hash", record.ContentHash)
		return false, nil
	}

	data, err := s.files.Read(record.LocalPath)
	if err != nil {
		return false, fmt.Errorf("reading image: %w", err)
	}
	// Never propagate a corrupted file to the mirror.
	if got := ContentHash(data); got != record.ContentHash {
		return false, fmt.Errorf("image %s is corrupt (hash %s), run verify", record.ContentHash, got)
	}

	payload := data
	if s.encryptor != nil {
		var buf bytes.Buffer
		if err := s.encryptor.Encrypt(bytes.NewReader(data), &buf); err != nil {
			return false, fmt.Errorf("encrypting image: %w", err)
		}
		payload = buf.Bytes()
	}

	if err := s.mirror.PutContent(ctx, record.ContentHash, bytes.NewReader(payload), int64(len(payload))); err != nil {
		return false, fmt.Errorf("uploading to mirror: %w", err)
	}

	s.logger.Info("image mirrored", "hash", record.ContentHash, "encrypted", s.encryptor != nil)
	return true, nil
}

// SyncMirror uploads every catalogued image the mirror does not have yet.
// Returns the number of images uploaded.
func (s *APODService) SyncMirror(ctx context.Context) (int, error) {
	if s.mirror == nil {
		return 0, ErrNoMirror
	}

	records, err := s.catalog.List(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("listing images: %w", err)
	}

	count := 0
	for _, rec := range records {
		uploaded, err := s.MirrorImage(ctx, rec)
		if err != nil {
			return count, err
		}
		if uploaded {
			count++
		}
	}

	s.logger.Info("mirror sync complete", "uploaded", count, "images", len(records))
	return count, nil
}

// MirrorEncrypted reports whether mirror content is encrypted and so needs a
// DecryptionContext to restore.
func (s *APODService) MirrorEncrypted() bool {
	return s.encryptor != nil
}

// Restore brings a catalogued image back from the mirror when its local file
// is missing or corrupt. decryptCtx is required when the mirror is encrypted.
// Returns false if the local file was already intact.
func (s *APODService) Restore(ctx context.Context, hash string, decryptCtx DecryptionContext) (bool, error) {
	if s.mirror == nil {
		return false, ErrNoMirror
	}

	record, err := s.catalog.Get(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("getting image %s: %w", hash, err)
	}

	if problem := s.checkFile(record); problem == "" {
		s.logger.Debug("image intact, nothing to restore", "hash", hash)
		return false, nil
	}

	if s.encryptor != nil && decryptCtx == nil {
		return false, fmt.Errorf("mirror content is encrypted: unlock required")
	}

	var stored bytes.Buffer
	if err := s.mirror.GetContent(ctx, hash, &stored); err != nil {
		return false, fmt.Errorf("downloading from mirror: %w", err)
	}

	data := stored.Bytes()
	if s.encryptor != nil {
		var plain bytes.Buffer
		if err := decryptCtx.Decrypt(&stored, &plain); err != nil {
			return false, fmt.Errorf("decrypting image: %w", err)
		}
		data = plain.Bytes()
	}

	if got := ContentHash(data); got != hash {
		return false, fmt.Errorf("mirror copy of %s is corrupt (hash %s)", hash, got)
	}

	ext := strings.TrimPrefix(filepath.Ext(record.LocalPath), ".")
	path, err := s.files.Write(hash, ext, data)
	if err != nil {
		return false, err
	}
	if path != record.LocalPath {
		s.logger.Warn("restored image path differs from catalog", "hash", hash, "catalog_path", record.LocalPath, "path", path)
	}

	s.logger.Info("image restored", "hash", hash, "path", path)
	return true, nil
}
