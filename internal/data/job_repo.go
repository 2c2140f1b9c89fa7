package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/target/namescreen/internal/core"
	domainjob "github.com/target/namescreen/internal/domain/job"
	"github.com/target/namescreen/internal/domain/model"
	apperrors "github.com/target/namescreen/internal/errors"
)

// RepoConfig holds configuration options for the Postgres repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo stores screening jobs in Postgres.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ core.JobRepository = (*JobRepo)(nil)

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

const jobColumns = `job_id, status, error, summary, created_at, updated_at, ttl`

// CreateQueued inserts a new job in QUEUED status.
func (r *JobRepo) CreateQueued(ctx context.Context, params core.CreateQueuedJobParams) (*model.Job, error) {
	if params.JobID == "" {
		return nil, ErrJobIDRequired
	}
	now := r.timeProvider.Now().UTC()
	query := `
		INSERT INTO screening_jobs (job_id, status, created_at, updated_at, ttl)
		VALUES ($1, $2, $3, $3, $4)
		RETURNING ` + jobColumns
	row := r.DB.QueryRowContext(ctx, query, params.JobID, string(model.JobStatusQueued), now, nullInt64(params.TTL))
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("insert job %s: %w", params.JobID, apperrors.MapDBError(err))
	}
	return job, nil
}

// Get returns a job by ID or core.ErrJobNotFound.
func (r *JobRepo) Get(ctx context.Context, jobID string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM screening_jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, apperrors.MapDBError(err))
	}
	return job, nil
}

// MarkProcessing upserts the job in PROCESSING when its stored status allows it.
func (r *JobRepo) MarkProcessing(ctx context.Context, params core.MarkProcessingParams) error {
	guard, guardArgs := statusGuard("screening_jobs.status", model.JobStatusProcessing, 5)
	query := `
		INSERT INTO screening_jobs (job_id, status, created_at, updated_at, ttl)
		VALUES ($1, $2, $3, $3, $4)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			ttl = COALESCE(EXCLUDED.ttl, screening_jobs.ttl)
		WHERE ` + guard
	args := append([]any{
		params.JobID, string(model.JobStatusProcessing), r.timeProvider.Now().UTC(), nullInt64(params.TTL),
	}, guardArgs...)
	return r.transition(ctx, params.JobID, model.JobStatusProcessing, query, args)
}

// Complete moves a PROCESSING job to DONE and stores its summary in the same statement.
func (r *JobRepo) Complete(ctx context.Context, params core.CompleteJobParams) error {
	summary, err := json.Marshal(params.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	guard, guardArgs := statusGuard("status", model.JobStatusDone, 6)
	query := `
		UPDATE screening_jobs
		SET status = $2, summary = $3, error = NULL, updated_at = $4, ttl = COALESCE($5, ttl)
		WHERE job_id = $1 AND ` + guard
	args := append([]any{
		params.JobID, string(model.JobStatusDone), string(summary), r.timeProvider.Now().UTC(), nullInt64(params.TTL),
	}, guardArgs...)
	return r.transition(ctx, params.JobID, model.JobStatusDone, query, args)
}

// Fail moves a PROCESSING job to FAILED with an error message.
func (r *JobRepo) Fail(ctx context.Context, params core.FailJobParams) error {
	guard, guardArgs := statusGuard("status", model.JobStatusFailed, 6)
	query := `
		UPDATE screening_jobs
		SET status = $2, error = $3, updated_at = $4, ttl = COALESCE($5, ttl)
		WHERE job_id = $1 AND ` + guard
	args := append([]any{
		params.JobID, string(model.JobStatusFailed), params.Error, r.timeProvider.Now().UTC(), nullInt64(params.TTL),
	}, guardArgs...)
	return r.transition(ctx, params.JobID, model.JobStatusFailed, query, args)
}

func (r *JobRepo) transition(ctx context.Context, jobID string, to model.JobStatus, query string, args []any) error {
	if jobID == "" {
		return ErrJobIDRequired
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set job %s %s: %w", jobID, to, apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set job %s %s: rows affected: %w", jobID, to, err)
	}
	if n > 0 {
		return nil
	}
	return r.rejected(ctx, jobID, to)
}

// rejected builds the transition error for a write whose guard matched nothing.
// The status lookup is informational only.
func (r *JobRepo) rejected(ctx context.Context, jobID string, to model.JobStatus) error {
	terr := domainjob.TransitionError{JobID: jobID, To: to}
	var status string
	err := r.DB.QueryRowContext(ctx, `SELECT status FROM screening_jobs WHERE job_id = $1`, jobID).Scan(&status)
	if err == nil {
		terr.From = model.JobStatus(status)
	} else if !errors.Is(err, sql.ErrNoRows) {
		r.logger.DebugContext(ctx, "lookup of rejected job status failed", "job_id", jobID, "error", err)
	}
	return terr
}

// statusGuard renders "<column> IN ($n, ...)" for the statuses allowed to move to target.
func statusGuard(column string, target model.JobStatus, firstArg int) (string, []any) {
	allowed := domainjob.AllowedFrom(target)
	if len(allowed) == 0 {
		return "FALSE", nil
	}
	placeholders := make([]string, len(allowed))
	args := make([]any, len(allowed))
	for i, s := range allowed {
		placeholders[i] = "$" + strconv.Itoa(firstArg+i)
		args[i] = string(s)
	}
	return column + " IN (" + strings.Join(placeholders, ", ") + ")", args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		job     model.Job
		status  string
		errMsg  sql.NullString
		summary []byte
		ttl     sql.NullInt64
	)
	if err := row.Scan(&job.ID, &status, &errMsg, &summary, &job.CreatedAt, &job.UpdatedAt, &ttl); err != nil {
		return nil, err
	}
	job.Status = model.JobStatus(status)
	if errMsg.Valid {
		job.Error = &errMsg.String
	}
	if len(summary) > 0 {
		var s model.Summary
		if err := json.Unmarshal(summary, &s); err != nil {
			return nil, fmt.Errorf("decode summary of job %s: %w", job.ID, err)
		}
		job.Summary = &s
	}
	if ttl.Valid {
		job.TTL = &ttl.Int64
	}
	return &job, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
