package postgres

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/AstrixelHQ/gigways/internal/domain"
)

// LedgerRepository persists pending updates in insight_summary_queue.
type LedgerRepository struct {
	db  Querier
	now func() time.Time
}

// NewLedgerRepository constructs a LedgerRepository.
func NewLedgerRepository(db Querier) *LedgerRepository {
	return &LedgerRepository{db: db, now: time.Now}
}

// Enqueue implements domain.LedgerRepository.
func (r *LedgerRepository) Enqueue(ctx context.Context, update domain.PendingUpdate) error {
	const insert = `INSERT INTO insight_summary_queue (id, user_id, session_id, update_type, payload, status, retry_count, last_error, enqueued_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	payload := []byte(update.Payload)
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	status := update.Status
	if status == "" {
		status = domain.PendingStatusPending
	}
	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = update.EnqueuedAt
	}

	_, err := r.db.Exec(ctx, insert,
		update.ID,
		update.UserID,
		update.SessionID,
		string(update.UpdateType),
		payload,
		string(status),
		update.RetryCount,
		update.LastError,
		update.EnqueuedAt,
		updatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insert pending update %s", update.ID)
	}
	return nil
}

// ListPending implements domain.LedgerRepository.
func (r *LedgerRepository) ListPending(ctx context.Context, userID string, limit int) ([]domain.PendingUpdate, error) {
	const query = `SELECT id, user_id, session_id, update_type, payload, status, retry_count, last_error, enqueued_at, updated_at
        FROM insight_summary_queue WHERE user_id=$1 AND status=$2 ORDER BY enqueued_at ASC LIMIT $3`

	rows, err := r.db.Query(ctx, query, userID, string(domain.PendingStatusPending), limit)
	if err != nil {
		return nil, errors.Wrapf(err, "list pending updates for %s", userID)
	}
	defer rows.Close()

	var updates []domain.PendingUpdate
	for rows.Next() {
		var (
			u          domain.PendingUpdate
			updateType string
			status     string
			payload    []byte
		)
		if err := rows.Scan(&u.ID, &u.UserID, &u.SessionID, &updateType, &payload, &status, &u.RetryCount, &u.LastError, &u.EnqueuedAt, &u.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan pending update")
		}
		u.UpdateType = domain.ChangeKind(updateType)
		u.Status = domain.PendingStatus(status)
		u.Payload = payload
		updates = append(updates, u)
	}
	return updates, errors.Wrap(rows.Err(), "iterate pending updates")
}

// MarkCompleted implements domain.LedgerRepository.
func (r *LedgerRepository) MarkCompleted(ctx context.Context, id string) error {
	const update = `UPDATE insight_summary_queue SET status=$2, updated_at=$3 WHERE id=$1`

	tag, err := r.db.Exec(ctx, update, id, string(domain.PendingStatusCompleted), r.now().UTC())
	if err != nil {
		return errors.Wrapf(err, "complete pending update %s", id)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrPendingUpdateNotFound, "id %s", id)
	}
	return nil
}

// RecordFailure implements domain.LedgerRepository.
func (r *LedgerRepository) RecordFailure(ctx context.Context, id string, retryCount int, lastError string, status domain.PendingStatus) error {
	const update = `UPDATE insight_summary_queue SET retry_count=$2, last_error=$3, status=$4, updated_at=$5 WHERE id=$1`

	tag, err := r.db.Exec(ctx, update, id, retryCount, lastError, string(status), r.now().UTC())
	if err != nil {
		return errors.Wrapf(err, "record failure on pending update %s", id)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrPendingUpdateNotFound, "id %s", id)
	}
	return nil
}
