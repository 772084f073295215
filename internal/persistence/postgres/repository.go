package postgres

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AstrixelHQ/gigways/internal/domain"
)

// Querier is the subset of pgx used by the repositories. *pgxpool.Pool and
// pgxmock pools both satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SummaryRepository stores one JSON summary document per user with a version
// column used for compare-and-swap.
type SummaryRepository struct {
	db Querier
}

// NewSummaryRepository constructs a SummaryRepository.
func NewSummaryRepository(db Querier) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// GetSummary implements domain.SummaryRepository.
func (r *SummaryRepository) GetSummary(ctx context.Context, userID string) (*domain.UserSummary, error) {
	const query = `SELECT document, version FROM insight_summaries WHERE user_id=$1`

	var (
		document []byte
		version  int64
	)
	if err := r.db.QueryRow(ctx, query, userID).Scan(&document, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "select summary for %s", userID)
	}

	var summary domain.UserSummary
	if err := json.Unmarshal(document, &summary); err != nil {
		return nil, errors.Wrapf(err, "decode summary for %s", userID)
	}
	// The column is authoritative for concurrency control.
	summary.Version = version
	return &summary, nil
}

// CompareAndSwap implements domain.SummaryRepository. Version 0 inserts the
// first document; any other version updates only a row still at that version.
func (r *SummaryRepository) CompareAndSwap(ctx context.Context, summary domain.UserSummary, expectedVersion int64) error {
	document, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrapf(err, "encode summary for %s", summary.UserID)
	}

	var tag pgconn.CommandTag
	if expectedVersion == 0 {
		const insert = `INSERT INTO insight_summaries (user_id, version, document, last_updated)
        VALUES ($1,$2,$3,$4) ON CONFLICT (user_id) DO NOTHING`
		tag, err = r.db.Exec(ctx, insert, summary.UserID, summary.Version, document, summary.LastUpdated)
	} else {
		const update = `UPDATE insight_summaries SET version=$3, document=$4, last_updated=$5
        WHERE user_id=$1 AND version=$2`
		tag, err = r.db.Exec(ctx, update, summary.UserID, expectedVersion, summary.Version, document, summary.LastUpdated)
	}
	if err != nil {
		return classify(err, summary.UserID)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrVersionConflict, "user %s moved past version %d", summary.UserID, expectedVersion)
	}
	return nil
}

// classify marks serialization failures and deadlocks as version conflicts so
// the coordinator retries them.
func classify(err error, userID string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return errors.Mark(errors.Wrapf(err, "write summary for %s", userID), domain.ErrVersionConflict)
		}
	}
	return errors.Wrapf(err, "write summary for %s", userID)
}
