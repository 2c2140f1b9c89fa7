package core

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/target/namescreen/internal/domain/model"
)

// This file contains the ports the screening service depends on.
// Adapters under internal/data and internal/adapters provide the implementations.

// Sentinel errors shared by every store implementation.
var (
	// ErrDuplicateRecord is returned by RecordResultRepository.Create when a result
	// for the same (job, record) already exists.
	ErrDuplicateRecord = errors.New("record result already exists")
	// ErrJobNotFound is returned when a job lookup finds nothing.
	ErrJobNotFound = errors.New("job not found")
	// ErrObjectNotFound is returned by ObjectStore.Open for a missing object.
	ErrObjectNotFound = errors.New("object not found")
	// ErrLockNotHeld is returned by JobLock.Release and JobLock.Refresh when the
	// lock expired or belongs to another holder.
	ErrLockNotHeld = errors.New("job lock not held")
	// ErrDeliveryExpired is returned by Delivery.Extend once the item was
	// redelivered or settled.
	ErrDeliveryExpired = errors.New("delivery no longer in flight")
)

// CreateQueuedJobParams groups parameters for JobRepository.CreateQueued.
type CreateQueuedJobParams struct {
	JobID string
	TTL   *int64
}

// MarkProcessingParams groups parameters for JobRepository.MarkProcessing.
type MarkProcessingParams struct {
	JobID string
	TTL   *int64
}

// CompleteJobParams groups parameters for JobRepository.Complete.
type CompleteJobParams struct {
	JobID   string
	Summary model.Summary
	TTL     *int64
}

// FailJobParams groups parameters for JobRepository.Fail.
type FailJobParams struct {
	JobID string
	Error string
	TTL   *int64
}

// JobRepository persists screening jobs.
//
// Each status change is a single conditional update keyed by job ID. When the
// stored status is not an allowed source for the transition the call returns an
// error matching job.ErrInvalidTransition and nothing is written.
type JobRepository interface {
	CreateQueued(ctx context.Context, params CreateQueuedJobParams) (*model.Job, error)
	Get(ctx context.Context, jobID string) (*model.Job, error)
	// MarkProcessing moves a QUEUED or PROCESSING job to PROCESSING. A job that
	// does not exist yet is created directly in PROCESSING.
	MarkProcessing(ctx context.Context, params MarkProcessingParams) error
	// Complete moves a PROCESSING job to DONE and stores the summary in the same write.
	Complete(ctx context.Context, params CompleteJobParams) error
	// Fail moves a PROCESSING job to FAILED and stores the error string.
	Fail(ctx context.Context, params FailJobParams) error
}

// RecordResultRepository persists per-row screening results.
type RecordResultRepository interface {
	// Create writes a result only if none exists for (JobID, RecordID).
	// It returns ErrDuplicateRecord otherwise.
	Create(ctx context.Context, result *model.RecordResult) error
	// ListByJob returns all results of a job ordered by numeric record ID.
	ListByJob(ctx context.Context, jobID string) ([]*model.RecordResult, error)
}

// ReaperRepository removes data whose retention TTL has passed.
type ReaperRepository interface {
	// DeleteExpiredJobs deletes up to batchSize jobs with ttl before now together
	// with their record results. Returns the number of jobs deleted.
	DeleteExpiredJobs(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

// PutObjectParams groups parameters for ObjectStore.Put.
type PutObjectParams struct {
	Bucket      string
	Key         string
	Body        io.Reader
	ContentType string
}

// ObjectStore reads and writes blobs addressed by bucket and key.
type ObjectStore interface {
	// Open streams an object. The caller must close the reader.
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, params PutObjectParams) error
}

// Delivery is one received work item awaiting acknowledgement.
type Delivery interface {
	Body() []byte
	// Ack removes the item from the queue.
	Ack(ctx context.Context) error
	// Nack hands the item back for redelivery.
	Nack(ctx context.Context) error
	// Extend pushes the redelivery deadline out by the queue's visibility timeout.
	Extend(ctx context.Context) error
}

// WorkQueue carries work items between submitters and workers.
type WorkQueue interface {
	// Receive blocks until an item is available or ctx is done.
	Receive(ctx context.Context) (Delivery, error)
	Publish(ctx context.Context, item model.WorkItem) error
	Close() error
}

// JobLock guarantees at most one active worker per job.
type JobLock interface {
	// Acquire takes the lock for jobID. ok is false when another holder owns it.
	Acquire(ctx context.Context, jobID string, ttl time.Duration) (token string, ok bool, err error)
	// Release drops the lock only if it is still held with token.
	Release(ctx context.Context, jobID, token string) error
	// Refresh resets the lock lifetime to ttl only if it is still held with token.
	Refresh(ctx context.Context, jobID, token string, ttl time.Duration) error
}
