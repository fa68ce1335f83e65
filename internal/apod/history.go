package apod

import (
	"context"
	"fmt"
)

// GetHistory returns the most recent operations, ordered newest first.
func (s *APODService) GetHistory(ctx context.Context, limit int) ([]*FetchOperation, error) {
	ops, err := s.catalog.ListFetchOperations(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}
