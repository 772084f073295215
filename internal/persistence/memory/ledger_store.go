package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/AstrixelHQ/gigways/internal/domain"
)

// LedgerStore keeps pending updates in insertion order.
type LedgerStore struct {
	mu      sync.Mutex
	now     func() time.Time
	updates map[string]domain.PendingUpdate
	order   []string
}

// NewLedgerStore returns an empty ledger.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{now: time.Now, updates: make(map[string]domain.PendingUpdate)}
}

// Enqueue implements domain.LedgerRepository.
func (s *LedgerStore) Enqueue(_ context.Context, update domain.PendingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.ID == "" {
		update.ID = uuid.NewString()
	}
	if _, exists := s.updates[update.ID]; exists {
		return errors.Newf("pending update %s already exists", update.ID)
	}
	if update.Status == "" {
		update.Status = domain.PendingStatusPending
	}
	if update.EnqueuedAt.IsZero() {
		update.EnqueuedAt = s.now().UTC()
	}
	update.UpdatedAt = update.EnqueuedAt
	s.updates[update.ID] = update
	s.order = append(s.order, update.ID)
	return nil
}

// ListPending implements domain.LedgerRepository.
func (s *LedgerStore) ListPending(_ context.Context, userID string, limit int) ([]domain.PendingUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.PendingUpdate
	for _, id := range s.order {
		update := s.updates[id]
		if update.UserID != userID || update.Status != domain.PendingStatusPending {
			continue
		}
		out = append(out, update)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkCompleted implements domain.LedgerRepository.
func (s *LedgerStore) MarkCompleted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	update, ok := s.updates[id]
	if !ok {
		return errors.Wrapf(domain.ErrPendingUpdateNotFound, "id %s", id)
	}
	update.Status = domain.PendingStatusCompleted
	update.UpdatedAt = s.now().UTC()
	s.updates[id] = update
	return nil
}

// RecordFailure implements domain.LedgerRepository.
func (s *LedgerStore) RecordFailure(_ context.Context, id string, retryCount int, lastError string, status domain.PendingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	update, ok := s.updates[id]
	if !ok {
		return errors.Wrapf(domain.ErrPendingUpdateNotFound, "id %s", id)
	}
	update.RetryCount = retryCount
	update.LastError = lastError
	update.Status = status
	update.UpdatedAt = s.now().UTC()
	s.updates[id] = update
	return nil
}

// Get returns a copy of the row with id.
func (s *LedgerStore) Get(id string) (domain.PendingUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update, ok := s.updates[id]
	return update, ok
}

// All returns every row in insertion order.
func (s *LedgerStore) All() []domain.PendingUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PendingUpdate, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.updates[id])
	}
	return out
}
