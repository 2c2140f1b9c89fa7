package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/namescreen/internal/core"
	"github.com/target/namescreen/internal/domain/model"
	"github.com/target/namescreen/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func newTestQueue(t *testing.T, client redis.UniversalClient, now func() time.Time) *Queue {
	t.Helper()
	q, err := NewQueue(QueueOptions{
		Client:            client,
		Name:              "test:queue:" + uuid.NewString(),
		VisibilityTimeout: time.Minute,
		PollTimeout:       100 * time.Millisecond,
		Now:               now,
	})
	require.NoError(t, err)
	return q
}

var queueItem = model.WorkItem{JobID: "job-1", Bucket: "uploads", Key: "batches/a.csv"}

func TestNewQueue_Validation(t *testing.T) {
	_, err := NewQueue(QueueOptions{Name: "q"})
	require.Error(t, err)

	_, err = NewQueue(QueueOptions{Client: redis.NewClient(&redis.Options{})})
	require.Error(t, err)
}

func TestQueue_PublishReceiveAck(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	ctx := context.Background()
	q := newTestQueue(t, client, nil)

	require.NoError(t, q.Publish(ctx, queueItem))

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	item, err := model.DecodeWorkItem(d.Body())
	require.NoError(t, err)
	assert.Equal(t, queueItem, item)

	assert.EqualValues(t, 0, client.LLen(ctx, q.pending).Val())
	assert.EqualValues(t, 1, client.LLen(ctx, q.processing).Val())
	assert.EqualValues(t, 1, client.ZCard(ctx, q.inflight).Val())

	require.NoError(t, d.Ack(ctx))
	assert.EqualValues(t, 0, client.LLen(ctx, q.processing).Val())
	assert.EqualValues(t, 0, client.ZCard(ctx, q.inflight).Val())
}

func TestQueue_PublishRejectsInvalidItem(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	q := newTestQueue(t, client, nil)

	err := q.Publish(context.Background(), model.WorkItem{JobID: "job-1"})
	require.ErrorIs(t, err, model.ErrInvalidWorkItem)
}

func TestQueue_FIFOOrder(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	ctx := context.Background()
	q := newTestQueue(t, client, nil)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Publish(ctx, model.WorkItem{JobID: id, Bucket: "b", Key: "k"}))
	}
	for _, want := range []string{"a", "b", "c"} {
		d, err := q.Receive(ctx)
		require.NoError(t, err)
		item, err := model.DecodeWorkItem(d.Body())
		require.NoError(t, err)
		assert.Equal(t, want, item.JobID)
		require.NoError(t, d.Ack(ctx))
	}
}

func TestQueue_NackRedelivers(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	ctx := context.Background()
	q := newTestQueue(t, client, nil)

	require.NoError(t, q.Publish(ctx, queueItem))
	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Nack(ctx))

	assert.EqualValues(t, 1, client.LLen(ctx, q.pending).Val())
	assert.EqualValues(t, 0, client.ZCard(ctx, q.inflight).Val())

	again, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, d.Body(), again.Body())
}

func TestQueue_RequeueExpired(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := newTestQueue(t, client, func() time.Time { return now })

	require.NoError(t, q.Publish(ctx, queueItem))
	_, err := q.Receive(ctx)
	require.NoError(t, err)

	n, err := q.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "deadline not reached")

	now = now.Add(2 * time.Minute)
	n, err = q.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 1, client.LLen(ctx, q.pending).Val())
	assert.EqualValues(t, 0, client.LLen(ctx, q.processing).Val())
}

func TestQueue_ReceiveRegistersDeadlineWithMove(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := newTestQueue(t, client, testutil.FixedTimeFunc(now))
	require.NoError(t, q.Publish(ctx, queueItem))

	_, err := q.Receive(ctx)
	require.NoError(t, err)

	processing := client.LRange(ctx, q.processing, 0, -1).Val()
	require.Len(t, processing, 1)
	score, err := client.ZScore(ctx, q.inflight, processing[0]).Result()
	require.NoError(t, err, "processing entry has a deadline")
	assert.InDelta(t, float64(now.Add(time.Minute).UnixMilli()), score, 0)
}

func TestQueue_DuplicatePayloadsSettleIndependently(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := newTestQueue(t, client, func() time.Time { return now })

	require.NoError(t, q.Publish(ctx, queueItem))
	require.NoError(t, q.Publish(ctx, queueItem))

	first, err := q.Receive(ctx)
	require.NoError(t, err)
	second, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Body(), second.Body())
	assert.EqualValues(t, 2, client.ZCard(ctx, q.inflight).Val())

	require.NoError(t, first.Ack(ctx))
	assert.EqualValues(t, 1, client.LLen(ctx, q.processing).Val())
	assert.EqualValues(t, 1, client.ZCard(ctx, q.inflight).Val(), "second copy keeps its deadline")

	now = now.Add(2 * time.Minute)
	n, err := q.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Body(), again.Body(), "requeued with the original payload")
}

func TestQueue_ExtendDefersRedelivery(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := newTestQueue(t, client, func() time.Time { return now })

	require.NoError(t, q.Publish(ctx, queueItem))
	d, err := q.Receive(ctx)
	require.NoError(t, err)

	now = now.Add(50 * time.Second)
	require.NoError(t, d.Extend(ctx))

	now = now.Add(30 * time.Second)
	n, err := q.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "original deadline passed but was extended")

	require.NoError(t, d.Ack(ctx))
	require.ErrorIs(t, d.Extend(ctx), core.ErrDeliveryExpired)
}

func TestQueue_CompetingConsumersClaimOnce(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	name := "test:queue:" + uuid.NewString()
	newQ := func() *Queue {
		q, err := NewQueue(QueueOptions{Client: client, Name: name, PollTimeout: 100 * time.Millisecond})
		require.NoError(t, err)
		return q
	}
	a, b := newQ(), newQ()
	require.NoError(t, a.Publish(ctx, queueItem))

	got, err := a.Receive(ctx)
	require.NoError(t, err)
	assert.NotNil(t, got)

	rctx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = b.Receive(rctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_ReceiveStopsOnCancel(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	q := newTestQueue(t, client, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	_, err := q.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
