package dynamo

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/target/namescreen/internal/core"
	domainjob "github.com/target/namescreen/internal/domain/job"
	"github.com/target/namescreen/internal/domain/model"
	apperrors "github.com/target/namescreen/internal/errors"
)

// API is the subset of the DynamoDB client used by the repositories.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// JobRepoOptions configures a JobRepo.
type JobRepoOptions struct {
	Client API
	Table  string
	Now    func() time.Time
	Logger *slog.Logger
}

// JobRepo stores screening jobs keyed by jobId.
type JobRepo struct {
	client API
	table  string
	now    func() time.Time
	logger *slog.Logger
}

var _ core.JobRepository = (*JobRepo)(nil)

// NewJobRepo constructs a JobRepo.
func NewJobRepo(opts JobRepoOptions) (*JobRepo, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("dynamodb client is required")
	}
	if strings.TrimSpace(opts.Table) == "" {
		return nil, fmt.Errorf("jobs table name is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRepo{
		client: opts.Client,
		table:  opts.Table,
		now:    now,
		logger: logger.With("component", "dynamo_job_repo", "table", opts.Table),
	}, nil
}

// CreateQueued writes a new QUEUED job. An existing jobId is a conflict.
func (r *JobRepo) CreateQueued(ctx context.Context, params core.CreateQueuedJobParams) (*model.Job, error) {
	if params.JobID == "" {
		return nil, fmt.Errorf("job id is required")
	}
	now := r.now().UTC().Truncate(time.Millisecond)
	job := &model.Job{
		ID:        params.JobID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		TTL:       params.TTL,
	}
	item := map[string]types.AttributeValue{
		attrJobID:     str(job.ID),
		attrStatus:    str(string(job.Status)),
		attrCreatedAt: timestamp(now),
		attrUpdatedAt: timestamp(now),
	}
	if params.TTL != nil {
		item[attrTTL] = num(*params.TTL)
	}
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": attrJobID,
		},
	})
	if _, failed := conditionFailed(err); failed {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeConflict, "job %s already exists", params.JobID)
	}
	if err != nil {
		return nil, fmt.Errorf("put job %s: %w", params.JobID, mapError(err))
	}
	return job, nil
}

// Get reads a job with a strongly consistent read.
func (r *JobRepo) Get(ctx context.Context, jobID string) (*model.Job, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            map[string]types.AttributeValue{attrJobID: str(jobID)},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, mapError(err))
	}
	if len(out.Item) == 0 {
		return nil, core.ErrJobNotFound
	}
	return decodeJob(out.Item)
}

// MarkProcessing upserts the job in PROCESSING. A missing item is created.
func (r *JobRepo) MarkProcessing(ctx context.Context, params core.MarkProcessingParams) error {
	u := r.newUpdate(model.JobStatusProcessing, params.TTL)
	u.set("#created = if_not_exists(#created, :now)")
	u.names["#created"] = attrCreatedAt
	return r.apply(ctx, params.JobID, u, true)
}

// Complete moves a PROCESSING job to DONE with its summary in one update.
func (r *JobRepo) Complete(ctx context.Context, params core.CompleteJobParams) error {
	u := r.newUpdate(model.JobStatusDone, params.TTL)
	u.set("#summary = :summary")
	u.names["#summary"] = attrSummary
	u.values[":summary"] = encodeSummary(params.Summary)
	u.remove("#err")
	u.names["#err"] = attrError
	return r.apply(ctx, params.JobID, u, false)
}

// Fail moves a PROCESSING job to FAILED with an error message.
func (r *JobRepo) Fail(ctx context.Context, params core.FailJobParams) error {
	u := r.newUpdate(model.JobStatusFailed, params.TTL)
	u.set("#err = :err")
	u.names["#err"] = attrError
	u.values[":err"] = str(params.Error)
	return r.apply(ctx, params.JobID, u, false)
}

// update accumulates the parts of an UpdateItem expression.
type update struct {
	to      model.JobStatus
	sets    []string
	removes []string
	names   map[string]string
	values  map[string]types.AttributeValue
}

func (r *JobRepo) newUpdate(to model.JobStatus, ttl *int64) *update {
	u := &update{
		to:    to,
		names: map[string]string{"#s": attrStatus, "#updated": attrUpdatedAt},
		values: map[string]types.AttributeValue{
			":to":  str(string(to)),
			":now": timestamp(r.now()),
		},
	}
	u.set("#s = :to", "#updated = :now")
	if ttl != nil {
		u.set("#ttl = :ttl")
		u.names["#ttl"] = attrTTL
		u.values[":ttl"] = num(*ttl)
	}
	return u
}

func (u *update) set(clauses ...string) { u.sets = append(u.sets, clauses...) }

func (u *update) remove(names ...string) { u.removes = append(u.removes, names...) }

func (u *update) expression() string {
	expr := "SET " + strings.Join(u.sets, ", ")
	if len(u.removes) > 0 {
		expr += " REMOVE " + strings.Join(u.removes, ", ")
	}
	return expr
}

// condition renders the status guard for the target status. When upsert is
// true a missing item also passes.
func (u *update) condition(upsert bool) string {
	allowed := domainjob.AllowedFrom(u.to)
	u.names["#id"] = attrJobID
	placeholders := make([]string, len(allowed))
	for i, s := range allowed {
		p := ":from" + strconv.Itoa(i)
		placeholders[i] = p
		u.values[p] = str(string(s))
	}
	guard := "attribute_exists(#id)"
	if len(placeholders) > 0 {
		guard += " AND #s IN (" + strings.Join(placeholders, ", ") + ")"
	} else {
		guard += " AND attribute_not_exists(#id)"
	}
	if upsert {
		return "attribute_not_exists(#id) OR (" + guard + ")"
	}
	return guard
}

func (r *JobRepo) apply(ctx context.Context, jobID string, u *update, upsert bool) error {
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}
	cond := u.condition(upsert)
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.table),
		Key:                                 map[string]types.AttributeValue{attrJobID: str(jobID)},
		UpdateExpression:                    aws.String(u.expression()),
		ConditionExpression:                 aws.String(cond),
		ExpressionAttributeNames:            u.names,
		ExpressionAttributeValues:           u.values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if old, failed := conditionFailed(err); failed {
		terr := domainjob.TransitionError{JobID: jobID, To: u.to}
		if s, ok, _ := getString(old, attrStatus); ok {
			terr.From = model.JobStatus(s)
		}
		return terr
	}
	if err != nil {
		return fmt.Errorf("set job %s %s: %w", jobID, u.to, mapError(err))
	}
	return nil
}

func encodeSummary(s model.Summary) types.AttributeValue {
	return object(map[string]types.AttributeValue{
		"total":     num(int64(s.Total)),
		"high":      num(int64(s.High)),
		"medium":    num(int64(s.Medium)),
		"low":       num(int64(s.Low)),
		"truncated": boolean(s.Truncated),
	})
}

func decodeSummary(m map[string]types.AttributeValue) (model.Summary, error) {
	var s model.Summary
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"total", &s.Total}, {"high", &s.High}, {"medium", &s.Medium}, {"low", &s.Low},
	} {
		n, _, err := getInt(m, f.name)
		if err != nil {
			return model.Summary{}, fmt.Errorf("summary: %w", err)
		}
		*f.dst = int(n)
	}
	truncated, err := getBool(m, "truncated")
	if err != nil {
		return model.Summary{}, fmt.Errorf("summary: %w", err)
	}
	s.Truncated = truncated
	return s, nil
}

func decodeJob(item map[string]types.AttributeValue) (*model.Job, error) {
	var job model.Job
	var err error
	if job.ID, _, err = getString(item, attrJobID); err != nil {
		return nil, err
	}
	status, _, err := getString(item, attrStatus)
	if err != nil {
		return nil, err
	}
	if err := job.Status.UnmarshalText([]byte(status)); err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	if msg, ok, err := getString(item, attrError); err != nil {
		return nil, err
	} else if ok {
		job.Error = &msg
	}
	summary, err := getMap(item, attrSummary)
	if err != nil {
		return nil, err
	}
	if summary != nil {
		s, err := decodeSummary(summary)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", job.ID, err)
		}
		job.Summary = &s
	}
	if job.CreatedAt, err = getTime(item, attrCreatedAt); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = getTime(item, attrUpdatedAt); err != nil {
		return nil, err
	}
	if ttl, ok, err := getInt(item, attrTTL); err != nil {
		return nil, err
	} else if ok {
		job.TTL = &ttl
	}
	return &job, nil
}
