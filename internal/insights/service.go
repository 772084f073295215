// Package insights wires change events through the coordinator and falls back
// to the pending-update ledger when a commit cannot be made.
package insights

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/coder/quartz"

	"github.com/AstrixelHQ/gigways/internal/domain"
	"github.com/AstrixelHQ/gigways/internal/ledger"
)

// Ledger is the subset of ledger.Ledger used by the service.
type Ledger interface {
	Enqueue(ctx context.Context, event domain.ChangeEvent, cause error)
	Replay(ctx context.Context, caller string, applier ledger.Applier) (ledger.ReplayResult, error)
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithClock overrides the clock used to roll periods forward on reads.
func WithClock(clock quartz.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithCalculator pins the calendar used on reads. It must match the
// coordinator's.
func WithCalculator(calc domain.Calculator) Option {
	return func(s *Service) {
		s.calc = calc
	}
}

// Service handles session change events and replay requests.
type Service struct {
	coordinator ledger.Applier
	ledger      Ledger
	summaries   domain.SummaryRepository
	logger      *slog.Logger
	clock       quartz.Clock
	calc        domain.Calculator
}

// NewService constructs a Service.
func NewService(coordinator ledger.Applier, pending Ledger, summaries domain.SummaryRepository, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		coordinator: coordinator,
		ledger:      pending,
		summaries:   summaries,
		logger:      logger.With("component", "insights"),
		clock:       quartz.NewReal(),
		calc:        domain.NewCalculator(time.UTC),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleChange classifies a session write and applies it. A failed commit is
// recorded in the ledger and not returned; the only error surfaced is context
// cancellation, so the triggering message can be redelivered.
func (s *Service) HandleChange(ctx context.Context, userID, sessionID string, before, after *domain.SessionSnapshot) error {
	event, ok := domain.NewChangeEvent(userID, sessionID, before, after)
	if !ok {
		s.logger.DebugContext(ctx, "ignoring change with no session state", "user_id", userID, "session_id", sessionID)
		return nil
	}

	err := s.coordinator.Apply(ctx, userID, event)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	s.logger.WarnContext(ctx, "summary update failed, recording for replay",
		"user_id", userID, "session_id", sessionID, "update_type", event.Kind, "error", err)
	s.ledger.Enqueue(ctx, event, err)
	return nil
}

// Replay re-applies the caller's pending updates.
func (s *Service) Replay(ctx context.Context, caller string) (ledger.ReplayResult, error) {
	if caller == "" {
		return ledger.ReplayResult{}, errors.New("replay requires a caller identity")
	}
	return s.ledger.Replay(ctx, caller, s.coordinator)
}

// Summary returns the caller's summary as of now or domain.ErrSummaryNotFound.
// Periods that ended since the last commit read as empty current periods.
func (s *Service) Summary(ctx context.Context, userID string) (domain.UserSummary, error) {
	summary, err := s.summaries.GetSummary(ctx, userID)
	if err != nil {
		return domain.UserSummary{}, errors.Wrapf(err, "load summary for %s", userID)
	}
	if summary == nil {
		return domain.UserSummary{}, domain.ErrSummaryNotFound
	}
	return summary.AsOf(s.clock.Now(), s.calc), nil
}
