// Package domain holds the insight summary model and the pure logic that
// maintains it: period boundaries, event classification and accumulation.
package domain

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrVersionConflict is returned by a SummaryRepository when another writer
	// committed since the expected version was read.
	ErrVersionConflict = errors.New("summary version conflict")
	// ErrSummaryNotFound is returned when a user has no summary yet.
	ErrSummaryNotFound = errors.New("insight summary not found")
)

// ValidationMeta is bookkeeping consumed by the reconciliation job.
type ValidationMeta struct {
	LastValidated                    time.Time `json:"lastValidated"`
	LastValidatedPeriod              string    `json:"lastValidatedPeriod"`
	NeedsValidation                  bool      `json:"needsValidation"`
	ConsecutiveSuccessfulValidations int       `json:"consecutiveSuccessfulValidations"`
}

// UserSummary is the per-user rollup document. Version is 0 until the first
// commit, which stores version 1.
type UserSummary struct {
	UserID      string          `json:"userId"`
	Today       PeriodAggregate `json:"today"`
	ThisWeek    PeriodAggregate `json:"thisWeek"`
	ThisMonth   PeriodAggregate `json:"thisMonth"`
	ThisYear    PeriodAggregate `json:"thisYear"`
	Version     int64           `json:"version"`
	LastUpdated time.Time       `json:"lastUpdated"`
	Validation  ValidationMeta  `json:"validation"`
}

// NewUserSummary synthesises the summary used before a user's first commit.
func NewUserSummary(userID string, now time.Time, calc Calculator) UserSummary {
	local := now.In(calc.Location())
	summary := UserSummary{
		UserID:      userID,
		LastUpdated: now,
		Validation: ValidationMeta{
			LastValidated:       now,
			LastValidatedPeriod: local.Format("2006-01"),
			NeedsValidation:     true,
		},
	}
	for _, g := range Granularities {
		*summary.Period(g) = EmptyAggregate(calc.PeriodStart(now, g), calc.PeriodEnd(now, g))
	}
	return summary
}

// AsOf returns s as seen at now: an aggregate whose period has ended is
// replaced by an empty aggregate for the period containing now. The version
// and stored totals are untouched.
func (s UserSummary) AsOf(now time.Time, calc Calculator) UserSummary {
	for _, g := range Granularities {
		agg := s.Period(g)
		*agg = currentAggregate(*agg, now, g, calc)
	}
	return s
}

// Period returns a pointer to the aggregate tracked for g.
func (s *UserSummary) Period(g Granularity) *PeriodAggregate {
	switch g {
	case GranularityDay:
		return &s.Today
	case GranularityWeek:
		return &s.ThisWeek
	case GranularityMonth:
		return &s.ThisMonth
	case GranularityYear:
		return &s.ThisYear
	default:
		panic("domain: unknown granularity " + string(g))
	}
}

// SummaryRepository is keyed storage for summaries with a compare-and-swap
// write.
type SummaryRepository interface {
	// GetSummary returns nil, nil when the user has no summary.
	GetSummary(ctx context.Context, userID string) (*UserSummary, error)
	// CompareAndSwap stores summary only if the stored version still equals
	// expectedVersion (0 meaning "no document yet"), otherwise it returns an
	// error matching ErrVersionConflict.
	CompareAndSwap(ctx context.Context, summary UserSummary, expectedVersion int64) error
}
