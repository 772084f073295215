package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrPendingUpdateNotFound is returned when a ledger row to update is missing.
var ErrPendingUpdateNotFound = errors.New("pending update not found")

// PendingStatus is the lifecycle state of a ledger row.
type PendingStatus string

const (
	PendingStatusPending   PendingStatus = "pending"
	PendingStatusCompleted PendingStatus = "completed"
	PendingStatusFailed    PendingStatus = "failed"
)

// PendingUpdate is a change event that could not be committed and awaits
// manual replay. Only the after state is captured.
type PendingUpdate struct {
	ID         string
	UserID     string
	SessionID  string
	UpdateType ChangeKind
	Payload    json.RawMessage
	Status     PendingStatus
	RetryCount int
	LastError  string
	EnqueuedAt time.Time
	UpdatedAt  time.Time
}

// LedgerRepository persists pending updates.
type LedgerRepository interface {
	Enqueue(ctx context.Context, update PendingUpdate) error
	// ListPending returns up to limit rows with status pending for userID,
	// oldest first.
	ListPending(ctx context.Context, userID string, limit int) ([]PendingUpdate, error)
	MarkCompleted(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id string, retryCount int, lastError string, status PendingStatus) error
}
