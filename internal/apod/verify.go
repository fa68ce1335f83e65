package apod

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// VerifyIssue describes a catalog record whose file does not match it, or
// a stored file no record points at (Record is nil then).
type VerifyIssue struct {
	Record  *ImageRecord
	Path    string
	Problem string
}

// Verify re-hashes the file behind every record and reports records whose
// file is missing or no longer hashes to the record's content hash. Files in
// the image directory that no record references are reported as orphans.
func (s *APODService) Verify(ctx context.Context) ([]*VerifyIssue, error) {
	records, err := s.catalog.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}

	var issues []*VerifyIssue
	known := make(map[string]bool, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return issues, err
		}
		known[rec.LocalPath] = true
		if problem := s.checkFile(rec); problem != "" {
			s.logger.Warn("image verification failed", "hash", rec.ContentHash, "path", rec.LocalPath, "problem", problem)
			issues = append(issues, &VerifyIssue{Record: rec, Path: rec.LocalPath, Problem: problem})
		}
	}

	paths, err := s.files.List()
	if err != nil {
		return issues, fmt.Errorf("listing image files: %w", err)
	}
	for _, path := range paths {
		if !known[path] {
			s.logger.Warn("orphaned image file", "path", path)
			issues = append(issues, &VerifyIssue{Path: path, Problem: "orphan"})
		}
	}

	s.logger.Info("verification complete", "images", len(records), "issues", len(issues))
	return issues, nil
}

// checkFile returns a description of what is wrong with rec's file, or "".
func (s *APODService) checkFile(rec *ImageRecord) string {
	data, err := s.files.Read(rec.LocalPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "missing"
		}
		return fmt.Sprintf("unreadable: %v", err)
	}
	if got := ContentHash(data); got != rec.ContentHash {
		return fmt.Sprintf("hash mismatch: %s", got)
	}
	return ""
}
