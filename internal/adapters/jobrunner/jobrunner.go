// Package jobrunner pulls screening work items from a queue and runs them under a per-job lock.
package jobrunner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/target/namescreen/internal/core"
	domainjob "github.com/target/namescreen/internal/domain/job"
	"github.com/target/namescreen/internal/domain/model"
	apperrors "github.com/target/namescreen/internal/errors"
	obserrors "github.com/target/namescreen/internal/observability/errors"
	"github.com/target/namescreen/internal/observability/metrics"
	"github.com/target/namescreen/internal/observability/statsd"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLockTTL      = 15 * time.Minute
	defaultRetryDelay   = 5 * time.Second
	defaultSettleWindow = 10 * time.Second
)

// Processor handles one decoded work item. See service.ScreeningService.Process.
type Processor interface {
	Process(ctx context.Context, item model.WorkItem) (model.JobStatus, error)
}

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Queue     core.WorkQueue // Required
	Lock      core.JobLock   // Required
	Processor Processor      // Required
	Logger    *slog.Logger
	Metrics   statsd.Sink

	Concurrency int           // number of worker goroutines; defaults to 1
	LockTTL     time.Duration // per-job lock lifetime; defaults to 15m
	// HeartbeatInterval is how often a running job refreshes its lock and
	// delivery deadline; defaults to a third of LockTTL.
	HeartbeatInterval time.Duration
	// RetryDelay is the pause before a locked or failed delivery is handed back.
	RetryDelay time.Duration
}

// Runner receives deliveries and settles each one exactly once.
type Runner struct {
	queue      core.WorkQueue
	lock       core.JobLock
	processor  Processor
	logger     *slog.Logger
	metrics    statsd.Sink
	workers    int
	lockTTL    time.Duration
	heartbeat  time.Duration
	retryDelay time.Duration
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	switch {
	case opts.Queue == nil:
		return nil, errors.New("work queue is required")
	case opts.Lock == nil:
		return nil, errors.New("job lock is required")
	case opts.Processor == nil:
		return nil, errors.New("processor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		queue:      opts.Queue,
		lock:       opts.Lock,
		processor:  opts.Processor,
		logger:     logger.With("component", "job_runner"),
		metrics:    opts.Metrics,
		workers:    opts.Concurrency,
		lockTTL:    opts.LockTTL,
		heartbeat:  opts.HeartbeatInterval,
		retryDelay: opts.RetryDelay,
	}
	if r.workers <= 0 {
		r.workers = 1
	}
	if r.lockTTL <= 0 {
		r.lockTTL = defaultLockTTL
	}
	if r.heartbeat <= 0 {
		r.heartbeat = r.lockTTL / 3
	}
	if r.retryDelay < 0 {
		r.retryDelay = 0
	} else if opts.RetryDelay == 0 {
		r.retryDelay = defaultRetryDelay
	}
	return r, nil
}

// Run starts the workers and blocks until ctx is cancelled or a worker fails
// to receive from the queue.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner", "workers", r.workers, "lock_ttl", r.lockTTL)

	g, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		g.Go(func() error {
			return r.workerLoop(gctx)
		})
	}
	err := g.Wait()
	r.logger.InfoContext(ctx, "job runner stopped")
	return err
}

func (r *Runner) workerLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		d, err := r.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !apperrors.Transient(err) {
				r.logger.ErrorContext(ctx, "receive failed", "error", err)
			}
			if !sleep(ctx, r.retryDelay) {
				return nil
			}
			continue
		}
		r.handle(ctx, d)
	}
	return nil
}

// handle decodes, locks, processes and settles one delivery.
func (r *Runner) handle(ctx context.Context, d core.Delivery) {
	start := time.Now()

	item, err := model.DecodeWorkItem(d.Body())
	if err != nil {
		r.logger.WarnContext(ctx, "discarding malformed work item", "error", err)
		r.ack(ctx, d, "")
		metrics.EmitDelivery(r.metrics, metrics.OutcomePoison, "", time.Since(start))
		return
	}
	logger := r.logger.With("job_id", item.JobID)

	token, ok, err := r.lock.Acquire(ctx, item.JobID, r.lockTTL)
	if err != nil || !ok {
		if err != nil {
			logger.ErrorContext(ctx, "acquire job lock failed", "error", err)
		} else {
			logger.InfoContext(ctx, "job is locked by another worker")
		}
		sleep(ctx, r.retryDelay)
		r.nack(ctx, d, item.JobID)
		metrics.EmitDelivery(r.metrics, metrics.OutcomeLocked, "", time.Since(start))
		return
	}
	defer r.release(ctx, item.JobID, token)

	status, err := r.process(ctx, d, item, token)
	switch {
	case err == nil:
		r.ack(ctx, d, item.JobID)
		metrics.EmitDelivery(r.metrics, metrics.OutcomeAcked, string(status), time.Since(start))
	case errors.Is(err, domainjob.ErrInvalidTransition), errors.Is(err, model.ErrInvalidWorkItem):
		logger.InfoContext(ctx, "dropping delivery for settled job", "error", err)
		r.ack(ctx, d, item.JobID)
		metrics.EmitDelivery(r.metrics, metrics.OutcomeRejected, "", time.Since(start))
	default:
		logger.WarnContext(ctx, "work item not handled, returning to queue",
			"error", err,
			"error_class", obserrors.Classify(err),
			"retryable", ctx.Err() != nil || apperrors.Transient(err),
		)
		if ctx.Err() == nil {
			sleep(ctx, r.retryDelay)
		}
		r.nack(ctx, d, item.JobID)
		metrics.EmitDelivery(r.metrics, metrics.OutcomeNacked, string(status), time.Since(start))
	}
}

// process runs the processor while a heartbeat keeps the job lock and the
// delivery deadline alive. Losing the lock cancels the processor.
func (r *Runner) process(ctx context.Context, d core.Delivery, item model.WorkItem, token string) (model.JobStatus, error) {
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.keepAlive(workCtx, cancel, d, item.JobID, token)
	}()

	status, err := r.processor.Process(workCtx, item)
	cancel()
	<-done
	return status, err
}

func (r *Runner) keepAlive(ctx context.Context, cancel context.CancelFunc, d core.Delivery, jobID, token string) {
	logger := r.logger.With("job_id", jobID)
	t := time.NewTicker(r.heartbeat)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		err := r.lock.Refresh(ctx, jobID, token, r.lockTTL)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, core.ErrLockNotHeld):
			logger.WarnContext(ctx, "job lock lost, abandoning work item")
			cancel()
			return
		case err != nil:
			logger.WarnContext(ctx, "refresh job lock failed", "error", err)
		}

		if err := d.Extend(ctx); err != nil && ctx.Err() == nil {
			logger.WarnContext(ctx, "extend delivery deadline failed", "error", err)
		}
	}
}

func (r *Runner) ack(ctx context.Context, d core.Delivery, jobID string) {
	sctx, cancel := settleContext(ctx)
	defer cancel()
	if err := d.Ack(sctx); err != nil {
		r.logger.ErrorContext(ctx, "ack failed", "job_id", jobID, "error", err)
	}
}

func (r *Runner) nack(ctx context.Context, d core.Delivery, jobID string) {
	sctx, cancel := settleContext(ctx)
	defer cancel()
	if err := d.Nack(sctx); err != nil {
		r.logger.ErrorContext(ctx, "nack failed", "job_id", jobID, "error", err)
	}
}

func (r *Runner) release(ctx context.Context, jobID, token string) {
	sctx, cancel := settleContext(ctx)
	defer cancel()
	err := r.lock.Release(sctx, jobID, token)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrLockNotHeld):
		r.logger.WarnContext(ctx, "job lock expired before release", "job_id", jobID, "lock_ttl", r.lockTTL)
	default:
		r.logger.ErrorContext(ctx, "release job lock failed", "job_id", jobID, "error", err)
	}
}

// settleContext outlives cancellation of ctx so deliveries are settled during shutdown.
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), defaultSettleWindow)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
