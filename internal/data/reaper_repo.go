package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/target/namescreen/internal/core"
	apperrors "github.com/target/namescreen/internal/errors"
)

// ReaperRepo deletes screening jobs past their retention TTL.
type ReaperRepo struct {
	DB *sql.DB
}

var _ core.ReaperRepository = (*ReaperRepo)(nil)

// NewReaperRepo constructs a ReaperRepo.
func NewReaperRepo(db *sql.DB) *ReaperRepo {
	return &ReaperRepo{DB: db}
}

// DeleteExpiredJobs removes up to batchSize jobs whose ttl (epoch seconds) is
// before now. Their record results go with them through ON DELETE CASCADE.
func (r *ReaperRepo) DeleteExpiredJobs(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, nil
	}
	const query = `
		DELETE FROM screening_jobs
		WHERE job_id IN (
			SELECT job_id FROM screening_jobs
			WHERE ttl IS NOT NULL AND ttl < $1
			ORDER BY ttl
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`
	res, err := r.DB.ExecContext(ctx, query, now.Unix(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: rows affected: %w", err)
	}
	return n, nil
}
