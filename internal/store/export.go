package store

import (
	"context"
	"fmt"
	"time"

	"github.com/intelligrade/intelligrade/internal/model"
)

// ExportAttempts builds the export document for all recorded attempts, or for
// one exam when examID is set.
func (s *Store) ExportAttempts(ctx context.Context, examID string) (model.AttemptExport, error) {
	attempts, err := s.ListAttempts(ctx, examID)
	if err != nil {
		return model.AttemptExport{}, fmt.Errorf("list attempts: %w", err)
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	return model.AttemptExport{
		ExportedAt: time.Now().UTC(),
		Count:      len(attempts),
		Attempts:   attempts,
	}, nil
}
