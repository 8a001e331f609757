package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/user/price-aggregator/internal/entity"
	"github.com/user/price-aggregator/internal/repository"
)

const (
	failureKeyPrefix = "prices:failures:"
	counterTTL       = 7 * 24 * time.Hour
	defaultLogSize   = 50
)

// FailureRecorderImpl keeps a capped list of recent failures per source in a
// Redis list, plus a rolling failure counter.
type FailureRecorderImpl struct {
	client  redis.Cmdable
	logSize int64
}

var _ repository.FailureRecorder = (*FailureRecorderImpl)(nil)

// NewFailureRecorder creates a new instance of FailureRecorderImpl.
func NewFailureRecorder(client redis.Cmdable, logSize int) *FailureRecorderImpl {
	if logSize <= 0 {
		logSize = defaultLogSize
	}
	return &FailureRecorderImpl{client: client, logSize: int64(logSize)}
}

func listKey(source string) string    { return failureKeyPrefix + source }
func counterKey(source string) string { return failureKeyPrefix + source + ":count" }

// Record pushes the failure to the head of the source's list and trims it.
func (r *FailureRecorderImpl) Record(ctx context.Context, failure entity.SourceFailure) error {
	payload, err := json.Marshal(failure)
	if err != nil {
		return eris.Wrap(err, "redis: encode failure")
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, listKey(failure.Source), payload)
		pipe.LTrim(ctx, listKey(failure.Source), 0, r.logSize-1)
		pipe.Incr(ctx, counterKey(failure.Source))
		pipe.Expire(ctx, counterKey(failure.Source), counterTTL)
		return nil
	})
	if err != nil {
		return eris.Wrapf(err, "redis: record failure for %s", failure.Source)
	}
	return nil
}

// Recent returns up to n of the latest failures for source, newest first.
func (r *FailureRecorderImpl) Recent(ctx context.Context, source string, n int) ([]entity.SourceFailure, error) {
	if n <= 0 {
		return []entity.SourceFailure{}, nil
	}
	raw, err := r.client.LRange(ctx, listKey(source), 0, int64(n)-1).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "redis: read failures for %s", source)
	}
	failures := make([]entity.SourceFailure, 0, len(raw))
	for _, item := range raw {
		var f entity.SourceFailure
		if err := json.Unmarshal([]byte(item), &f); err != nil {
			return nil, eris.Wrapf(err, "redis: decode failure for %s", source)
		}
		failures = append(failures, f)
	}
	return failures, nil
}

// Count returns how many failures source had since its counter last expired.
func (r *FailureRecorderImpl) Count(ctx context.Context, source string) (int64, error) {
	n, err := r.client.Get(ctx, counterKey(source)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "redis: read failure count for %s", source)
	}
	return n, nil
}
