// Package ledger records summary updates that could not be committed and
// replays them on request.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AstrixelHQ/gigways/internal/domain"
)

const (
	defaultPageSize   = 10
	defaultMaxRetries = 5
)

// Applier commits a change event to a user's summary.
type Applier interface {
	Apply(ctx context.Context, userID string, event domain.ChangeEvent) error
}

// Option configures optional behaviour for the Ledger.
type Option func(*Ledger)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithClock overrides the clock used to stamp rows.
func WithClock(clock quartz.Clock) Option {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// WithPageSize caps how many pending rows one replay processes.
func WithPageSize(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// WithMaxRetries sets the retry count at which a row is marked failed.
func WithMaxRetries(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxRetries = n
		}
	}
}

// Ledger is the pending-update queue.
type Ledger struct {
	repo       domain.LedgerRepository
	logger     *slog.Logger
	clock      quartz.Clock
	pageSize   int
	maxRetries int
}

// New constructs a Ledger over repo.
func New(repo domain.LedgerRepository, opts ...Option) *Ledger {
	l := &Ledger{
		repo:       repo,
		logger:     slog.Default().With("component", "ledger"),
		clock:      quartz.NewReal(),
		pageSize:   defaultPageSize,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enqueue records event as pending. Only the after state is kept. Failures
// are logged and counted but never returned, since the caller is already
// handling a failed update.
func (l *Ledger) Enqueue(ctx context.Context, event domain.ChangeEvent, cause error) {
	payload, err := domain.EncodePayload(event.After)
	if err != nil {
		l.enqueueFailed(ctx, event, err)
		return
	}

	var lastError string
	if cause != nil {
		lastError = cause.Error()
	}
	now := l.clock.Now().UTC()
	update := domain.PendingUpdate{
		ID:         uuid.NewString(),
		UserID:     event.UserID,
		SessionID:  event.SessionID,
		UpdateType: event.Kind,
		Payload:    payload,
		Status:     domain.PendingStatusPending,
		LastError:  lastError,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
	if err := l.repo.Enqueue(ctx, update); err != nil {
		l.enqueueFailed(ctx, event, err)
		return
	}

	recordEnqueued(event.Kind)
	l.logger.InfoContext(ctx, "pending update recorded",
		"id", update.ID, "user_id", event.UserID, "session_id", event.SessionID, "kind", event.Kind)
}

func (l *Ledger) enqueueFailed(ctx context.Context, event domain.ChangeEvent, err error) {
	recordEnqueueFailure()
	l.logger.ErrorContext(ctx, "failed to record pending update",
		"user_id", event.UserID, "session_id", event.SessionID, "kind", event.Kind, "error", err)
}

// Outcome describes what a replay did with one pending row.
type Outcome struct {
	UpdateID   string
	SessionID  string
	Status     domain.PendingStatus
	RetryCount int
	Err        error
}

// ReplayResult summarises a replay call.
type ReplayResult struct {
	RetriedCount int
	Outcomes     []Outcome
}

// Message is the human readable summary returned to callers.
func (r ReplayResult) Message() string {
	return fmt.Sprintf("Processed %d pending updates", r.RetriedCount)
}

// Replay re-applies up to one page of the caller's pending rows. Each row is
// rebuilt from its stored type and after state only, so a replayed UPDATE adds
// without subtracting and a replayed DELETE changes nothing but the version.
// The call fails only when listing or a status write fails; individual apply
// failures are recorded on their rows.
func (l *Ledger) Replay(ctx context.Context, caller string, applier Applier) (ReplayResult, error) {
	pending, err := l.repo.ListPending(ctx, caller, l.pageSize)
	if err != nil {
		recordReplay("error")
		return ReplayResult{}, errors.Wrapf(err, "list pending updates for %s", caller)
	}

	result := ReplayResult{
		RetriedCount: len(pending),
		Outcomes:     make([]Outcome, len(pending)),
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	for i, update := range pending {
		g.Go(func() error {
			outcome, err := l.replayOne(ctx, update, applier)
			mu.Lock()
			result.Outcomes[i] = outcome
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		recordReplay("error")
		return result, err
	}

	recordReplay("ok")
	l.logger.InfoContext(ctx, "replayed pending updates", "user_id", caller, "count", result.RetriedCount)
	return result, nil
}

func (l *Ledger) replayOne(ctx context.Context, update domain.PendingUpdate, applier Applier) (Outcome, error) {
	outcome := Outcome{UpdateID: update.ID, SessionID: update.SessionID}

	applyErr := l.apply(ctx, update, applier)
	if applyErr == nil {
		if err := l.repo.MarkCompleted(ctx, update.ID); err != nil {
			return outcome, errors.Wrapf(err, "mark pending update %s completed", update.ID)
		}
		recordReplayOutcome(domain.PendingStatusCompleted)
		outcome.Status = domain.PendingStatusCompleted
		outcome.RetryCount = update.RetryCount
		return outcome, nil
	}

	retries := update.RetryCount + 1
	status := domain.PendingStatusPending
	if retries >= l.maxRetries {
		status = domain.PendingStatusFailed
	}
	if err := l.repo.RecordFailure(ctx, update.ID, retries, applyErr.Error(), status); err != nil {
		return outcome, errors.Wrapf(err, "record failure for pending update %s", update.ID)
	}

	recordReplayOutcome(status)
	l.logger.WarnContext(ctx, "pending update replay failed",
		"id", update.ID, "user_id", update.UserID, "retry_count", retries, "status", status, "error", applyErr)
	outcome.Status = status
	outcome.RetryCount = retries
	outcome.Err = applyErr
	return outcome, nil
}

func (l *Ledger) apply(ctx context.Context, update domain.PendingUpdate, applier Applier) error {
	if !update.UpdateType.Valid() {
		return errors.Newf("unknown update type %q", update.UpdateType)
	}
	after, err := domain.DecodePayload(update.Payload)
	if err != nil {
		return err
	}
	event := domain.ChangeEvent{
		UserID:    update.UserID,
		SessionID: update.SessionID,
		Kind:      update.UpdateType,
		After:     after,
	}
	return applier.Apply(ctx, update.UserID, event)
}
