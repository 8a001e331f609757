package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/price-aggregator/internal/entity"
)

func newRecorder(t *testing.T, size int) (*FailureRecorderImpl, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewFailureRecorder(client, size), mr
}

func TestRecordAndRecent(t *testing.T) {
	rec, mr := newRecorder(t, 3)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, rec.Record(ctx, entity.SourceFailure{
			Source:     "tottus",
			Kind:       "timeout",
			Message:    fmt.Sprintf("attempt %d", i),
			OccurredAt: at.Add(time.Duration(i) * time.Minute),
		}))
	}

	recent, err := rec.Recent(ctx, "tottus", 10)
	require.NoError(t, err)
	require.Len(t, recent, 3, "list is trimmed to the log size")
	assert.Equal(t, "attempt 4", recent[0].Message)
	assert.Equal(t, "attempt 2", recent[2].Message)
	assert.True(t, at.Add(4*time.Minute).Equal(recent[0].OccurredAt))

	count, err := rec.Count(ctx, "tottus")
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	assert.Equal(t, counterTTL, mr.TTL(counterKey("tottus")))
}

func TestRecent_Limit(t *testing.T) {
	rec, _ := newRecorder(t, 10)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, rec.Record(ctx, entity.SourceFailure{Source: "wong", Kind: "network"}))
	}

	recent, err := rec.Recent(ctx, "wong", 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	none, err := rec.Recent(ctx, "wong", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecent_UnknownSource(t *testing.T) {
	rec, _ := newRecorder(t, 10)

	recent, err := rec.Recent(context.Background(), "metro", 5)
	require.NoError(t, err)
	assert.Empty(t, recent)

	count, err := rec.Count(context.Background(), "metro")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecord_ServerDown(t *testing.T) {
	rec, mr := newRecorder(t, 10)
	mr.Close()

	err := rec.Record(context.Background(), entity.SourceFailure{Source: "vivanda"})
	assert.Error(t, err)
}
