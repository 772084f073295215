// Package memory provides process-local stores for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/AstrixelHQ/gigways/internal/domain"
)

// SummaryStore keeps summaries in a map guarded by a mutex.
type SummaryStore struct {
	mu        sync.Mutex
	summaries map[string]domain.UserSummary
}

// NewSummaryStore returns an empty store.
func NewSummaryStore() *SummaryStore {
	return &SummaryStore{summaries: make(map[string]domain.UserSummary)}
}

// GetSummary implements domain.SummaryRepository.
func (s *SummaryStore) GetSummary(_ context.Context, userID string) (*domain.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, ok := s.summaries[userID]
	if !ok {
		return nil, nil
	}
	return &summary, nil
}

// CompareAndSwap implements domain.SummaryRepository.
func (s *SummaryStore) CompareAndSwap(_ context.Context, summary domain.UserSummary, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	if current, ok := s.summaries[summary.UserID]; ok {
		stored = current.Version
	}
	if stored != expectedVersion {
		return errors.Wrapf(domain.ErrVersionConflict, "user %s at version %d, expected %d", summary.UserID, stored, expectedVersion)
	}
	s.summaries[summary.UserID] = summary
	return nil
}
