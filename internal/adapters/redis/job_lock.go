package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/target/namescreen/internal/core"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// JobLock is a per-job mutex stored as a Redis key with a TTL.
type JobLock struct {
	client redis.UniversalClient
	prefix string
}

var _ core.JobLock = (*JobLock)(nil)

// NewJobLock creates a JobLock using the default key prefix.
func NewJobLock(client redis.UniversalClient) *JobLock {
	return NewJobLockWithPrefix(client, "namescreen:job_lock:")
}

// NewJobLockWithPrefix creates a JobLock with a custom key prefix.
func NewJobLockWithPrefix(client redis.UniversalClient, prefix string) *JobLock {
	return &JobLock{client: client, prefix: prefix}
}

// Acquire sets the lock key if absent. The returned token must be passed to Release.
func (l *JobLock) Acquire(ctx context.Context, jobID string, ttl time.Duration) (string, bool, error) {
	if jobID == "" {
		return "", false, errors.New("job ID cannot be empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}
	token := uuid.NewString()
	_, err := l.client.SetArgs(ctx, l.prefix+jobID, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis set nx: %w", err)
	}
	return token, true, nil
}

// Release deletes the lock key only if it still holds token. It returns
// core.ErrLockNotHeld otherwise.
func (l *JobLock) Release(ctx context.Context, jobID, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.prefix + jobID}, token).Int64()
	if err != nil {
		return fmt.Errorf("redis release lock: %w", err)
	}
	if n == 0 {
		return core.ErrLockNotHeld
	}
	return nil
}

// Refresh resets the lock TTL only if the key still holds token. It returns
// core.ErrLockNotHeld otherwise.
func (l *JobLock) Refresh(ctx context.Context, jobID, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("lock ttl must be positive")
	}
	n, err := refreshScript.Run(ctx, l.client, []string{l.prefix + jobID}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("redis refresh lock: %w", err)
	}
	if n == 0 {
		return core.ErrLockNotHeld
	}
	return nil
}
