package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/namescreen/internal/core"
	domainjob "github.com/target/namescreen/internal/domain/job"
	"github.com/target/namescreen/internal/domain/model"
	obserrors "github.com/target/namescreen/internal/observability/errors"
	"github.com/target/namescreen/internal/observability/metrics"
	"github.com/target/namescreen/internal/observability/statsd"
)

// ErrStatusUpdate marks a job status write that failed for a reason other than
// a rejected transition. The work item must not be acknowledged.
var ErrStatusUpdate = errors.New("job status update failed")

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo      core.JobRepository // Required: job repository
	Retention time.Duration      // Optional: job TTL; zero disables expiry
	Now       func() time.Time   // Optional: clock, defaults to time.Now
	Logger    *slog.Logger       // Optional: structured logger
	Metrics   statsd.Sink        // Optional: metrics sink
}

// JobService drives screening jobs through QUEUED → PROCESSING → DONE | FAILED.
//
// Every transition is a single conditional write in the repository; the service
// adds retention TTLs, failure message formatting, logging and metrics.
type JobService struct {
	repo      core.JobRepository
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Retention < 0 {
		return nil, errors.New("Retention must not be negative")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		repo:      opts.Repo,
		retention: opts.Retention,
		now:       now,
		logger:    logger.With("component", "job_service"),
		metrics:   opts.Metrics,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Create records a new QUEUED job.
func (s *JobService) Create(ctx context.Context, jobID string) (*model.Job, error) {
	if jobID == "" {
		return nil, errors.New("job id is required")
	}
	job, err := s.repo.CreateQueued(ctx, core.CreateQueuedJobParams{JobID: jobID, TTL: s.Expiry()})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.logger.DebugContext(ctx, "job created", "job_id", job.ID, "status", job.Status)
	return job, nil
}

// Get returns a job by ID.
func (s *JobService) Get(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// MarkProcessing moves the job to PROCESSING.
func (s *JobService) MarkProcessing(ctx context.Context, jobID string) error {
	err := s.repo.MarkProcessing(ctx, core.MarkProcessingParams{JobID: jobID, TTL: s.Expiry()})
	return s.finish(ctx, jobID, model.JobStatusProcessing, err)
}

// Complete moves the job to DONE, committing summary in the same write.
func (s *JobService) Complete(ctx context.Context, jobID string, summary model.Summary) error {
	if !summary.Consistent() {
		return fmt.Errorf("complete job %s: inconsistent summary %+v", jobID, summary)
	}
	err := s.repo.Complete(ctx, core.CompleteJobParams{JobID: jobID, Summary: summary, TTL: s.Expiry()})
	return s.finish(ctx, jobID, model.JobStatusDone, err)
}

// Fail moves the job to FAILED, storing cause as "<class>: <message>".
func (s *JobService) Fail(ctx context.Context, jobID string, cause error) error {
	msg := obserrors.Describe(cause)
	if msg == "" {
		msg = "unknown: job failed"
	}
	err := s.repo.Fail(ctx, core.FailJobParams{JobID: jobID, Error: msg, TTL: s.Expiry()})
	return s.finish(ctx, jobID, model.JobStatusFailed, err)
}

func (s *JobService) finish(ctx context.Context, jobID string, to model.JobStatus, err error) error {
	transition := "to_" + string(to)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "job status updated", "job_id", jobID, "status", to)
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: transition, Result: metrics.ResultSuccess})
		return nil
	case errors.Is(err, domainjob.ErrInvalidTransition):
		s.logger.WarnContext(ctx, "job status transition rejected", "job_id", jobID, "status", to, "error", err)
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: transition, Result: metrics.ResultRejected, Err: err,
		})
		return fmt.Errorf("set job %s %s: %w", jobID, to, err)
	default:
		s.logger.ErrorContext(ctx, "job status update failed", "job_id", jobID, "status", to, "error", err)
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: transition, Result: metrics.ResultError, Err: err,
		})
		return fmt.Errorf("%w: set job %s %s: %w", ErrStatusUpdate, jobID, to, err)
	}
}

// Expiry returns the epoch-seconds TTL for writes, or nil when retention is off.
func (s *JobService) Expiry() *int64 {
	if s.retention <= 0 {
		return nil
	}
	ttl := s.now().Add(s.retention).Unix()
	return &ttl
}
