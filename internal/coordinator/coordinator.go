// Package coordinator applies change events to user summaries with an
// optimistic read-modify-write loop and bounded retry on version conflicts.
package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/coder/quartz"

	"github.com/AstrixelHQ/gigways/internal/domain"
)

// ErrTerminalFailure marks an Apply call that gave up. The wrapped cause is
// either the last version conflict or the first non-retryable error.
var ErrTerminalFailure = errors.New("summary update failed")

// RetryPolicy bounds the conflict retry loop. Backoff receives the number of
// the attempt that just failed, starting at 1.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// MaxBackoff caps every wait produced by ExponentialBackoff.
const MaxBackoff = 30 * time.Second

// ExponentialBackoff returns 2^attempt * base, capped at MaxBackoff.
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if base <= 0 {
			return 0
		}
		if attempt < 0 {
			attempt = 0
		}
		delay := base
		for i := 0; i < attempt; i++ {
			if delay >= MaxBackoff/2 {
				return MaxBackoff
			}
			delay *= 2
		}
		return min(delay, MaxBackoff)
	}
}

// DefaultRetryPolicy allows three attempts waiting 200ms then 400ms between
// them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: ExponentialBackoff(100 * time.Millisecond)}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option configures optional behaviour for the Coordinator.
type Option func(*Coordinator)

// WithLogger overrides the logger used to report conflicts and failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithClock overrides the clock used for period evaluation and backoff.
func WithClock(clock quartz.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithRetryPolicy overrides the conflict retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Coordinator) {
		if policy.MaxAttempts < 1 {
			policy.MaxAttempts = 1
		}
		if policy.Backoff == nil {
			policy.Backoff = DefaultRetryPolicy().Backoff
		}
		c.policy = policy
	}
}

// WithSleeper replaces the backoff wait.
func WithSleeper(sleep Sleeper) Option {
	return func(c *Coordinator) {
		c.sleep = sleep
	}
}

// WithCalculator pins the calendar used for period boundaries.
func WithCalculator(calc domain.Calculator) Option {
	return func(c *Coordinator) {
		c.calc = calc
	}
}

// Coordinator performs the transactional summary update.
type Coordinator struct {
	repo   domain.SummaryRepository
	logger *slog.Logger
	clock  quartz.Clock
	calc   domain.Calculator
	policy RetryPolicy
	sleep  Sleeper
}

// New constructs a Coordinator over repo.
func New(repo domain.SummaryRepository, opts ...Option) *Coordinator {
	c := &Coordinator{
		repo:   repo,
		logger: slog.Default().With("component", "coordinator"),
		clock:  quartz.NewReal(),
		calc:   domain.NewCalculator(time.UTC),
		policy: DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sleep == nil {
		c.sleep = c.timerSleep
	}
	return c
}

// Apply folds event into the user's summary and commits it with a version
// check. Conflicts are retried with backoff up to the policy's attempt limit;
// any other error aborts immediately. Errors returned here match
// ErrTerminalFailure.
func (c *Coordinator) Apply(ctx context.Context, userID string, event domain.ChangeEvent) error {
	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		err := c.attempt(ctx, userID, event)
		if err == nil {
			recordAttempts(attempt)
			return nil
		}
		lastErr = err

		if !errors.Is(err, domain.ErrVersionConflict) {
			recordTerminalFailure("error")
			c.logger.ErrorContext(ctx, "summary update aborted",
				"user_id", userID, "session_id", event.SessionID, "kind", event.Kind, "attempt", attempt, "error", err)
			return errors.Mark(errors.Wrapf(err, "apply %s for user %s", event.Kind, userID), ErrTerminalFailure)
		}

		recordConflict()
		if attempt == c.policy.MaxAttempts {
			break
		}

		wait := c.policy.Backoff(attempt)
		c.logger.WarnContext(ctx, "summary version conflict, retrying",
			"user_id", userID, "session_id", event.SessionID, "attempt", attempt, "backoff", wait)
		if sleepErr := c.sleep(ctx, wait); sleepErr != nil {
			recordTerminalFailure("cancelled")
			return errors.Mark(errors.Wrap(sleepErr, "backoff interrupted"), ErrTerminalFailure)
		}
	}

	recordTerminalFailure("conflict")
	c.logger.ErrorContext(ctx, "summary update exhausted retries",
		"user_id", userID, "session_id", event.SessionID, "kind", event.Kind, "attempts", c.policy.MaxAttempts)
	return errors.Mark(
		errors.Wrapf(lastErr, "apply %s for user %s after %d attempts", event.Kind, userID, c.policy.MaxAttempts),
		ErrTerminalFailure,
	)
}

func (c *Coordinator) attempt(ctx context.Context, userID string, event domain.ChangeEvent) error {
	current, err := c.repo.GetSummary(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "load summary")
	}

	now := c.clock.Now()
	var summary domain.UserSummary
	if current == nil {
		summary = domain.NewUserSummary(userID, now, c.calc)
	} else {
		summary = *current
	}
	expected := summary.Version

	next := domain.ApplyEvent(summary, event, now, c.calc)
	next.Version = expected + 1
	next.LastUpdated = now

	if err := c.repo.CompareAndSwap(ctx, next, expected); err != nil {
		return err
	}
	recordCommit(next.LastUpdated)
	return nil
}

func (c *Coordinator) timerSleep(ctx context.Context, d time.Duration) error {
	timer := c.clock.NewTimer(d, "coordinator", "backoff")
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
