// Package redisstore keeps user summaries in Redis hashes and implements
// compare-and-swap with WATCH/MULTI.
package redisstore

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/AstrixelHQ/gigways/internal/domain"
)

const (
	keyPrefix     = "insights:summary:"
	fieldVersion  = "version"
	fieldDocument = "document"
)

// Connect returns a client for addr, or nil when addr is empty.
func Connect(addr, password string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

// SummaryStore implements domain.SummaryRepository on Redis.
type SummaryStore struct {
	client *redis.Client
}

// NewSummaryStore constructs a SummaryStore.
func NewSummaryStore(client *redis.Client) *SummaryStore {
	return &SummaryStore{client: client}
}

func summaryKey(userID string) string {
	return keyPrefix + userID
}

// GetSummary implements domain.SummaryRepository.
func (s *SummaryStore) GetSummary(ctx context.Context, userID string) (*domain.UserSummary, error) {
	fields, err := s.client.HGetAll(ctx, summaryKey(userID)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "load summary for %s", userID)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decode(userID, fields)
}

// CompareAndSwap implements domain.SummaryRepository. The key is watched
// while its version is checked, so a concurrent write aborts the transaction.
func (s *SummaryStore) CompareAndSwap(ctx context.Context, summary domain.UserSummary, expectedVersion int64) error {
	document, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrapf(err, "encode summary for %s", summary.UserID)
	}
	key := summaryKey(summary.UserID)

	txn := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, fieldVersion).Result()
		var stored int64
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return errors.Wrapf(err, "read version for %s", summary.UserID)
		default:
			stored, err = strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return errors.Wrapf(err, "parse version for %s", summary.UserID)
			}
		}
		if stored != expectedVersion {
			return errors.Wrapf(domain.ErrVersionConflict, "user %s at version %d, expected %d", summary.UserID, stored, expectedVersion)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldVersion, summary.Version, fieldDocument, document)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		return errors.Mark(errors.Wrapf(err, "write summary for %s", summary.UserID), domain.ErrVersionConflict)
	}
	return err
}

func decode(userID string, fields map[string]string) (*domain.UserSummary, error) {
	var summary domain.UserSummary
	if err := json.Unmarshal([]byte(fields[fieldDocument]), &summary); err != nil {
		return nil, errors.Wrapf(err, "decode summary for %s", userID)
	}
	version, err := strconv.ParseInt(fields[fieldVersion], 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "parse version for %s", userID)
	}
	summary.Version = version
	return &summary, nil
}
