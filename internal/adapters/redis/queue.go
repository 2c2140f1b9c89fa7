// Package redis provides Redis-backed work queue and job lock adapters.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/namescreen/internal/core"
	"github.com/target/namescreen/internal/domain/model"
)

const (
	defaultVisibilityTimeout = 30 * time.Minute
	defaultPollTimeout       = 2 * time.Second
)

// claimScript moves the oldest pending payload to the processing list and
// registers its visibility deadline in one step. In-flight entries are
// "<seq>|<payload>" so identical payloads stay distinct.
var claimScript = redis.NewScript(`
local body = redis.call("RPOP", KEYS[1])
if not body then
	return false
end
local member = redis.call("INCR", KEYS[4]) .. "|" .. body
redis.call("LPUSH", KEYS[2], member)
redis.call("ZADD", KEYS[3], ARGV[1], member)
return member
`)

// requeueScript moves an in-flight entry back to the pending list if it is
// still present in the processing list.
var requeueScript = redis.NewScript(`
local removed = redis.call("LREM", KEYS[2], 1, ARGV[1])
if removed > 0 then
	redis.call("LPUSH", KEYS[1], ARGV[2])
end
redis.call("ZREM", KEYS[3], ARGV[1])
return removed
`)

// extendScript moves the deadline of an entry that is still in flight.
var extendScript = redis.NewScript(`
if redis.call("ZSCORE", KEYS[1], ARGV[1]) then
	redis.call("ZADD", KEYS[1], ARGV[2], ARGV[1])
	return 1
end
return 0
`)

// QueueOptions configures a Queue.
type QueueOptions struct {
	Client            redis.UniversalClient // Required
	Name              string                // Required: pending list key
	VisibilityTimeout time.Duration         // Optional: how long a received item stays hidden
	PollTimeout       time.Duration         // Optional: blocking move timeout per attempt
	Now               func() time.Time      // Optional: clock
	Logger            *slog.Logger          // Optional
}

// Queue is a reliable list queue. A received item is moved to a processing
// list and given a visibility deadline in one script call. Items whose
// deadline passes without an Ack are returned to the pending list.
type Queue struct {
	client     redis.UniversalClient
	pending    string
	processing string
	inflight   string
	seq        string
	visibility time.Duration
	poll       time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

var _ core.WorkQueue = (*Queue)(nil)

// NewQueue creates a Queue.
func NewQueue(opts QueueOptions) (*Queue, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Name == "" {
		return nil, errors.New("queue name is required")
	}
	// Keys share a hash tag so the scripts stay in one cluster slot.
	tag := "{" + opts.Name + "}"
	q := &Queue{
		client:     opts.Client,
		pending:    tag,
		processing: tag + ":processing",
		inflight:   tag + ":inflight",
		seq:        tag + ":seq",
		visibility: opts.VisibilityTimeout,
		poll:       opts.PollTimeout,
		now:        opts.Now,
		logger:     opts.Logger,
	}
	if q.visibility <= 0 {
		q.visibility = defaultVisibilityTimeout
	}
	if q.poll <= 0 {
		q.poll = defaultPollTimeout
	}
	if q.now == nil {
		q.now = time.Now
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	q.logger = q.logger.With("component", "redis_queue", "queue", opts.Name)
	return q, nil
}

// Publish appends a work item to the pending list.
func (q *Queue) Publish(ctx context.Context, item model.WorkItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal work item: %w", err)
	}
	if err := q.client.LPush(ctx, q.pending, body).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// Receive blocks until an item is available or ctx is done. Expired in-flight
// items are requeued before each attempt.
func (q *Queue) Receive(ctx context.Context) (core.Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := q.RequeueExpired(ctx); err != nil && ctx.Err() == nil {
			q.logger.WarnContext(ctx, "requeue expired items failed", "error", err)
		}

		// Rotating the tail onto itself blocks until the list is non-empty
		// without taking the item.
		_, err := q.client.BLMove(ctx, q.pending, q.pending, "RIGHT", "RIGHT", q.poll).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("redis blmove: %w", err)
		}

		d, ok, err := q.claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if ok {
			return d, nil
		}
		// Another consumer claimed the item first.
	}
}

func (q *Queue) claim(ctx context.Context) (*delivery, bool, error) {
	deadline := q.now().Add(q.visibility).UnixMilli()
	member, err := claimScript.Run(ctx, q.client,
		[]string{q.pending, q.processing, q.inflight, q.seq}, deadline).Text()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis claim: %w", err)
	}
	_, body, ok := strings.Cut(member, "|")
	if !ok {
		return nil, false, fmt.Errorf("redis claim: malformed in-flight entry %q", member)
	}
	return &delivery{queue: q, member: member, body: body}, true, nil
}

// RequeueExpired returns in-flight items whose visibility deadline has passed
// to the pending list. It returns the number of items requeued.
func (q *Queue) RequeueExpired(ctx context.Context) (int, error) {
	cutoff := strconv.FormatInt(q.now().UnixMilli(), 10)
	expired, err := q.client.ZRangeByScore(ctx, q.inflight, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zrangebyscore: %w", err)
	}
	requeued := 0
	for _, member := range expired {
		n, err := q.requeue(ctx, member)
		if err != nil {
			return requeued, fmt.Errorf("requeue item: %w", err)
		}
		if n > 0 {
			requeued++
		}
	}
	if requeued > 0 {
		q.logger.InfoContext(ctx, "requeued expired work items", "count", requeued)
	}
	return requeued, nil
}

func (q *Queue) requeue(ctx context.Context, member string) (int64, error) {
	_, body, _ := strings.Cut(member, "|")
	return requeueScript.Run(ctx, q.client,
		[]string{q.pending, q.processing, q.inflight}, member, body).Int64()
}

// Close is a no-op; the Redis client is owned by the caller.
func (q *Queue) Close() error { return nil }

func (q *Queue) remove(ctx context.Context, member string) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processing, 1, member)
	pipe.ZRem(ctx, q.inflight, member)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis ack: %w", err)
	}
	return nil
}

type delivery struct {
	queue  *Queue
	member string
	body   string
}

func (d *delivery) Body() []byte { return []byte(d.body) }

func (d *delivery) Ack(ctx context.Context) error {
	return d.queue.remove(ctx, d.member)
}

func (d *delivery) Nack(ctx context.Context) error {
	n, err := d.queue.requeue(ctx, d.member)
	if err != nil {
		return fmt.Errorf("redis nack: %w", err)
	}
	if n == 0 {
		d.queue.logger.DebugContext(ctx, "nacked item was already requeued")
	}
	return nil
}

// Extend moves the visibility deadline to now plus the visibility timeout.
func (d *delivery) Extend(ctx context.Context) error {
	deadline := d.queue.now().Add(d.queue.visibility).UnixMilli()
	n, err := extendScript.Run(ctx, d.queue.client, []string{d.queue.inflight}, d.member, deadline).Int64()
	if err != nil {
		return fmt.Errorf("redis extend: %w", err)
	}
	if n == 0 {
		return core.ErrDeliveryExpired
	}
	return nil
}
