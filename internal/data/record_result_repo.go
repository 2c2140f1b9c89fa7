package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/target/namescreen/internal/core"
	"github.com/target/namescreen/internal/domain/model"
	apperrors "github.com/target/namescreen/internal/errors"
)

// RecordResultRepo stores per-row screening results in Postgres.
type RecordResultRepo struct {
	DB *sql.DB
}

var _ core.RecordResultRepository = (*RecordResultRepo)(nil)

// NewRecordResultRepo constructs a RecordResultRepo.
func NewRecordResultRepo(db *sql.DB) *RecordResultRepo {
	return &RecordResultRepo{DB: db}
}

// Create inserts a result. The (job_id, record_id) primary key makes the write
// conditional: an existing row is left untouched and core.ErrDuplicateRecord returned.
func (r *RecordResultRepo) Create(ctx context.Context, result *model.RecordResult) error {
	if r == nil || r.DB == nil {
		return ErrRecordResultsNotConfigured
	}
	if result == nil || result.JobID == "" || result.RecordID == "" {
		return ErrRecordKeyRequired
	}
	const query = `
		INSERT INTO record_results
			(job_id, record_id, ordinal, name, country, match_name, risk_score, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.DB.ExecContext(ctx, query,
		result.JobID,
		result.RecordID,
		result.Ordinal(),
		result.Name,
		result.Country,
		result.MatchName,
		result.RiskScore,
		result.ProcessedAt.UTC(),
	)
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return core.ErrDuplicateRecord
	}
	return fmt.Errorf("insert record result %s/%s: %w", result.JobID, result.RecordID, apperrors.MapDBError(err))
}

// ListByJob returns the results of a job ordered by record ordinal.
func (r *RecordResultRepo) ListByJob(ctx context.Context, jobID string) ([]*model.RecordResult, error) {
	if r == nil || r.DB == nil {
		return nil, ErrRecordResultsNotConfigured
	}
	if jobID == "" {
		return nil, ErrJobIDRequired
	}
	const query = `
		SELECT job_id, record_id, name, country, match_name, risk_score, processed_at
		FROM record_results
		WHERE job_id = $1
		ORDER BY ordinal, record_id`
	rows, err := r.DB.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list record results for %s: %w", jobID, apperrors.MapDBError(err))
	}
	defer rows.Close()

	var out []*model.RecordResult
	for rows.Next() {
		var res model.RecordResult
		if err := rows.Scan(
			&res.JobID,
			&res.RecordID,
			&res.Name,
			&res.Country,
			&res.MatchName,
			&res.RiskScore,
			&res.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("scan record result: %w", err)
		}
		out = append(out, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record results: %w", err)
	}
	return out, nil
}
