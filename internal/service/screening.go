package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/target/namescreen/internal/core"
	"github.com/target/namescreen/internal/domain/model"
	obserrors "github.com/target/namescreen/internal/observability/errors"
	"github.com/target/namescreen/internal/observability/notify"
)

// notifyTimeout bounds failure notification delivery for one job.
const notifyTimeout = 30 * time.Second

// FailureNotifier receives an alert for every job that ends FAILED.
type FailureNotifier interface {
	NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload)
}

// ScreeningServiceOptions groups dependencies for ScreeningService.
type ScreeningServiceOptions struct {
	Jobs           *JobService        // Required: job state machine
	Watchlist      *WatchlistProvider // Required: watchlist snapshot loader
	Objects        core.ObjectStore   // Required: input record storage
	Processor      *RecordProcessor   // Required: per-row screening
	DefaultCountry string             // Optional: country for items without one
	Notifier       FailureNotifier    // Optional: alerting on FAILED jobs
	Now            func() time.Time   // Optional: clock, defaults to time.Now
	Logger         *slog.Logger       // Optional: structured logger
}

// ScreeningService processes one work item end to end.
type ScreeningService struct {
	jobs           *JobService
	watchlist      *WatchlistProvider
	objects        core.ObjectStore
	processor      *RecordProcessor
	defaultCountry string
	notifier       FailureNotifier
	now            func() time.Time
	logger         *slog.Logger
}

// NewScreeningService constructs a ScreeningService.
func NewScreeningService(opts ScreeningServiceOptions) (*ScreeningService, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("JobService is required")
	case opts.Watchlist == nil:
		return nil, errors.New("WatchlistProvider is required")
	case opts.Objects == nil:
		return nil, errors.New("ObjectStore is required")
	case opts.Processor == nil:
		return nil, errors.New("RecordProcessor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ScreeningService{
		jobs:           opts.Jobs,
		watchlist:      opts.Watchlist,
		objects:        opts.Objects,
		processor:      opts.Processor,
		defaultCountry: strings.TrimSpace(opts.DefaultCountry),
		notifier:       opts.Notifier,
		now:            now,
		logger:         logger.With("component", "screening"),
	}, nil
}

// Process marks the job PROCESSING, screens the input file and commits the
// summary with DONE. Failures after PROCESSING move the job to FAILED.
//
// The returned status is the job's final status when Process returns nil.
// A non-nil error means the work item was not handled: errors matching
// job.ErrInvalidTransition mean another delivery already settled the job, any
// other error (including ErrStatusUpdate and context cancellation) means the
// item should be redelivered.
func (s *ScreeningService) Process(ctx context.Context, item model.WorkItem) (model.JobStatus, error) {
	if err := item.Validate(); err != nil {
		return "", err
	}
	logger := s.logger.With("job_id", item.JobID)

	if err := s.jobs.MarkProcessing(ctx, item.JobID); err != nil {
		return "", err
	}

	summary, err := s.screen(ctx, item)
	if err != nil {
		if ctx.Err() != nil {
			logger.WarnContext(ctx, "screening interrupted, leaving job for redelivery", "error", err)
			return model.JobStatusProcessing, err
		}
		return s.fail(ctx, item, err)
	}

	if err := s.jobs.Complete(ctx, item.JobID, summary); err != nil {
		if errors.Is(err, ErrStatusUpdate) {
			// The summary commit itself failed; record that on the job if possible.
			return s.fail(ctx, item, err)
		}
		return "", err
	}
	logger.InfoContext(ctx, "screening job done",
		"total", summary.Total, "high", summary.High, "truncated", summary.Truncated)
	return model.JobStatusDone, nil
}

func (s *ScreeningService) screen(ctx context.Context, item model.WorkItem) (model.Summary, error) {
	watchlist := s.watchlist.Load(ctx, item.Bucket)

	body, err := s.objects.Open(ctx, item.Bucket, item.Key)
	if err != nil {
		return model.Summary{}, &SourceFetchError{Op: fmt.Sprintf("open %s/%s", item.Bucket, item.Key), Err: err}
	}
	defer body.Close()

	rows, err := NewCSVRowSource(body)
	if err != nil {
		return model.Summary{}, err
	}

	return s.processor.Run(ctx, RecordPass{
		JobID:          item.JobID,
		DefaultCountry: item.CountryOrDefault(s.defaultCountry),
		Watchlist:      watchlist,
		Rows:           rows,
		TTL:            s.jobs.Expiry(),
	})
}

func (s *ScreeningService) fail(ctx context.Context, item model.WorkItem, cause error) (model.JobStatus, error) {
	s.logger.ErrorContext(ctx, "screening job failed", "job_id", item.JobID, "error", cause)
	if err := s.jobs.Fail(ctx, item.JobID, cause); err != nil {
		return "", errors.Join(cause, err)
	}
	s.notifyFailure(ctx, item, cause)
	return model.JobStatusFailed, nil
}

func (s *ScreeningService) notifyFailure(ctx context.Context, item model.WorkItem, cause error) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	s.notifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
		JobID:      item.JobID,
		Bucket:     item.Bucket,
		Key:        item.Key,
		Error:      cause.Error(),
		ErrorClass: obserrors.Classify(cause),
		OccurredAt: s.now(),
	})
}
