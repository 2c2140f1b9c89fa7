package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/target/namescreen/internal/core"
	"github.com/target/namescreen/internal/domain/model"
	"github.com/target/namescreen/internal/domain/screening"
	"github.com/target/namescreen/internal/observability/metrics"
	"github.com/target/namescreen/internal/observability/statsd"
)

// DefaultMaxRows is the row ceiling applied when none is configured.
const DefaultMaxRows = 50000

// Input columns read by the record processor.
const (
	ColumnName    = "name"
	ColumnCountry = "country"
)

// RecordProcessorOptions groups dependencies for RecordProcessor.
type RecordProcessorOptions struct {
	Results core.RecordResultRepository // Required: result store
	Scorer  screening.Scorer            // Required: similarity strategy
	MaxRows int                         // Optional: row ceiling, defaults to DefaultMaxRows
	Now     func() time.Time            // Optional: clock for processedAt
	Logger  *slog.Logger                // Optional: structured logger
	Metrics statsd.Sink                 // Optional: metrics sink
}

// RecordProcessor screens every row of one input stream against a watchlist.
type RecordProcessor struct {
	results core.RecordResultRepository
	scorer  screening.Scorer
	maxRows int
	now     func() time.Time
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewRecordProcessor constructs a RecordProcessor.
func NewRecordProcessor(opts RecordProcessorOptions) (*RecordProcessor, error) {
	if opts.Results == nil {
		return nil, errors.New("RecordResultRepository is required")
	}
	if opts.Scorer == nil {
		return nil, errors.New("Scorer is required")
	}
	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordProcessor{
		results: opts.Results,
		scorer:  opts.Scorer,
		maxRows: maxRows,
		now:     now,
		logger:  logger.With("component", "record_processor"),
		metrics: opts.Metrics,
	}, nil
}

// RecordPass is the input of a single processor run.
type RecordPass struct {
	JobID          string
	DefaultCountry string
	Watchlist      []string
	Rows           RowSource
	TTL            *int64 // expiry written on each result; nil for none
}

// Run streams pass.Rows, scoring and persisting each row that carries a name.
//
// Every row read, including rows without a name, advances the 1-based ordinal
// that becomes the record ID. Reading stops with Truncated set once the ordinal
// exceeds the row ceiling. A result that already exists is logged and skipped
// but still counted. Any other write error or a read error aborts the pass.
func (p *RecordProcessor) Run(ctx context.Context, pass RecordPass) (model.Summary, error) {
	if pass.Rows == nil {
		return model.Summary{}, errors.New("record pass has no rows")
	}
	country := strings.TrimSpace(pass.DefaultCountry)
	if country == "" {
		country = model.DefaultCountry
	}

	start := time.Now()
	var (
		counter    TierCounter
		duplicates int
	)
	for ordinal := 1; ; ordinal++ {
		if err := ctx.Err(); err != nil {
			return counter.Summary(), err
		}

		row, err := pass.Rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return counter.Summary(), err
		}
		if ordinal > p.maxRows {
			counter.MarkTruncated()
			p.logger.WarnContext(ctx, "row ceiling reached, stopping",
				"job_id", pass.JobID, "max_rows", p.maxRows)
			break
		}

		name := strings.TrimSpace(row.Get(ColumnName))
		if name == "" {
			continue
		}
		rowCountry := strings.TrimSpace(row.Get(ColumnCountry))
		if rowCountry == "" {
			rowCountry = country
		}

		match := screening.BestMatch(p.scorer, name, pass.Watchlist)
		counter.Add(screening.Classify(match.Score))

		result := &model.RecordResult{
			JobID:       pass.JobID,
			RecordID:    model.RecordID(ordinal),
			Name:        name,
			Country:     rowCountry,
			MatchName:   match.Name,
			RiskScore:   match.Score,
			ProcessedAt: p.now().UTC(),
			TTL:         pass.TTL,
		}
		if err := p.results.Create(ctx, result); err != nil {
			if errors.Is(err, core.ErrDuplicateRecord) {
				duplicates++
				p.logger.WarnContext(ctx, "record result already exists, skipping",
					"job_id", pass.JobID, "record_id", result.RecordID)
				continue
			}
			return counter.Summary(), fmt.Errorf("store record %s: %w", result.RecordID, err)
		}
	}

	summary := counter.Summary()
	p.logger.InfoContext(ctx, "record pass finished",
		"job_id", pass.JobID,
		"total", summary.Total,
		"high", summary.High,
		"medium", summary.Medium,
		"low", summary.Low,
		"duplicates", duplicates,
		"truncated", summary.Truncated,
	)
	metrics.EmitRecordPass(p.metrics, metrics.RecordPassMetric{
		Strategy:   string(p.scorer.Strategy()),
		Total:      summary.Total,
		High:       summary.High,
		Medium:     summary.Medium,
		Low:        summary.Low,
		Duplicates: duplicates,
		Truncated:  summary.Truncated,
		Duration:   time.Since(start),
	})
	return summary, nil
}
