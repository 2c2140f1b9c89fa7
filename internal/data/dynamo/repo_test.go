package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/namescreen/internal/core"
	domainjob "github.com/target/namescreen/internal/domain/job"
	"github.com/target/namescreen/internal/domain/model"
	apperrors "github.com/target/namescreen/internal/errors"
)

func null() types.AttributeValue {
	return &types.AttributeValueMemberNULL{Value: true}
}

type fakeAPI struct {
	puts    []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	queries []*dynamodb.QueryInput

	getItem map[string]types.AttributeValue
	pages   []*dynamodb.QueryOutput
	err     error
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.err
}

func (f *fakeAPI) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.getItem}, nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, f.err
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	if f.err != nil {
		return nil, f.err
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newJobRepo(t *testing.T, api *fakeAPI) *JobRepo {
	t.Helper()
	repo, err := NewJobRepo(JobRepoOptions{
		Client: api,
		Table:  "ComplianceJobs",
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return repo
}

func TestNewJobRepo_Validation(t *testing.T) {
	_, err := NewJobRepo(JobRepoOptions{Table: "t"})
	require.Error(t, err)
	_, err = NewJobRepo(JobRepoOptions{Client: &fakeAPI{}, Table: " "})
	require.Error(t, err)
}

func TestJobRepo_CreateQueued(t *testing.T) {
	api := &fakeAPI{}
	repo := newJobRepo(t, api)
	ttl := int64(1700000000)

	job, err := repo.CreateQueued(context.Background(), core.CreateQueuedJobParams{JobID: "job-1", TTL: &ttl})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, job.Status)

	require.Len(t, api.puts, 1)
	in := api.puts[0]
	assert.Equal(t, "ComplianceJobs", aws.ToString(in.TableName))
	assert.Equal(t, "attribute_not_exists(#id)", aws.ToString(in.ConditionExpression))
	assert.Equal(t, str("QUEUED"), in.Item[attrStatus])
	assert.Equal(t, str("2025-03-01T12:00:00.000Z"), in.Item[attrCreatedAt])
	assert.Equal(t, num(1700000000), in.Item[attrTTL])
}

func TestJobRepo_CreateQueued_Exists(t *testing.T) {
	api := &fakeAPI{err: &types.ConditionalCheckFailedException{}}
	_, err := newJobRepo(t, api).CreateQueued(context.Background(), core.CreateQueuedJobParams{JobID: "job-1"})
	assert.True(t, apperrors.IsConflict(err))
}

func TestJobRepo_MarkProcessing_Expression(t *testing.T) {
	api := &fakeAPI{}
	require.NoError(t, newJobRepo(t, api).MarkProcessing(context.Background(), core.MarkProcessingParams{JobID: "job-1"}))

	require.Len(t, api.updates, 1)
	in := api.updates[0]
	assert.Equal(t, "SET #s = :to, #updated = :now, #created = if_not_exists(#created, :now)",
		aws.ToString(in.UpdateExpression))
	assert.Equal(t, "attribute_not_exists(#id) OR (attribute_exists(#id) AND #s IN (:from0, :from1))",
		aws.ToString(in.ConditionExpression))
	assert.Equal(t, str("QUEUED"), in.ExpressionAttributeValues[":from0"])
	assert.Equal(t, str("PROCESSING"), in.ExpressionAttributeValues[":from1"])
	assert.Equal(t, str("PROCESSING"), in.ExpressionAttributeValues[":to"])
	assert.NotContains(t, in.ExpressionAttributeNames, "#ttl")
	assert.Equal(t, types.ReturnValuesOnConditionCheckFailureAllOld, in.ReturnValuesOnConditionCheckFailure)
}

func TestJobRepo_Complete_WritesSummaryAndClearsError(t *testing.T) {
	api := &fakeAPI{}
	ttl := int64(42)
	err := newJobRepo(t, api).Complete(context.Background(), core.CompleteJobParams{
		JobID:   "job-1",
		Summary: model.Summary{Total: 3, High: 1, Medium: 1, Low: 1, Truncated: true},
		TTL:     &ttl,
	})
	require.NoError(t, err)

	in := api.updates[0]
	assert.Equal(t, "SET #s = :to, #updated = :now, #ttl = :ttl, #summary = :summary REMOVE #err",
		aws.ToString(in.UpdateExpression))
	assert.Equal(t, "attribute_exists(#id) AND #s IN (:from0)", aws.ToString(in.ConditionExpression))

	summary, ok := in.ExpressionAttributeValues[":summary"].(*types.AttributeValueMemberM)
	require.True(t, ok)
	decoded, err := decodeSummary(summary.Value)
	require.NoError(t, err)
	assert.Equal(t, model.Summary{Total: 3, High: 1, Medium: 1, Low: 1, Truncated: true}, decoded)
}

func TestJobRepo_Complete_RejectedTransition(t *testing.T) {
	api := &fakeAPI{err: &types.ConditionalCheckFailedException{
		Item: map[string]types.AttributeValue{attrJobID: str("job-1"), attrStatus: str("DONE")},
	}}
	err := newJobRepo(t, api).Complete(context.Background(), core.CompleteJobParams{JobID: "job-1"})

	require.ErrorIs(t, err, domainjob.ErrInvalidTransition)
	var terr domainjob.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, model.JobStatusDone, terr.From)
	assert.Equal(t, model.JobStatusDone, terr.To)
}

func TestJobRepo_Fail_Throttled(t *testing.T) {
	api := &fakeAPI{err: &types.ProvisionedThroughputExceededException{}}
	err := newJobRepo(t, api).Fail(context.Background(), core.FailJobParams{JobID: "job-1", Error: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.NotErrorIs(t, err, domainjob.ErrInvalidTransition)
}

func TestJobRepo_Fail_StoresMessage(t *testing.T) {
	api := &fakeAPI{}
	require.NoError(t, newJobRepo(t, api).Fail(context.Background(), core.FailJobParams{JobID: "job-1", Error: "boom"}))
	in := api.updates[0]
	assert.Equal(t, str("boom"), in.ExpressionAttributeValues[":err"])
	assert.Equal(t, attrError, in.ExpressionAttributeNames["#err"])
}

func TestJobRepo_Get(t *testing.T) {
	api := &fakeAPI{getItem: map[string]types.AttributeValue{
		attrJobID:     str("job-1"),
		attrStatus:    str("DONE"),
		attrCreatedAt: str("2025-03-01T11:00:00.000Z"),
		attrUpdatedAt: timestamp(fixedNow),
		attrSummary:   encodeSummary(model.Summary{Total: 2, High: 2}),
		attrTTL:       &types.AttributeValueMemberN{Value: "1700000000"},
		attrError:     null(),
	}}
	job, err := newJobRepo(t, api).Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, job.Status)
	assert.Equal(t, &model.Summary{Total: 2, High: 2}, job.Summary)
	assert.Nil(t, job.Error)
	require.NotNil(t, job.TTL)
	assert.Equal(t, int64(1700000000), *job.TTL)
	assert.True(t, job.UpdatedAt.Equal(fixedNow))
}

func TestJobRepo_Get_NotFound(t *testing.T) {
	_, err := newJobRepo(t, &fakeAPI{}).Get(context.Background(), "missing")
	require.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestJobRepo_Get_WrongAttributeType(t *testing.T) {
	api := &fakeAPI{getItem: map[string]types.AttributeValue{
		attrJobID:  str("job-1"),
		attrStatus: num(1),
	}}
	_, err := newJobRepo(t, api).Get(context.Background(), "job-1")
	require.Error(t, err)
}

func TestRecordResultRepo_Create(t *testing.T) {
	api := &fakeAPI{}
	repo, err := NewRecordResultRepo(api, "ComplianceResults")
	require.NoError(t, err)

	err = repo.Create(context.Background(), &model.RecordResult{
		JobID: "job-1", RecordID: "7", Name: "Jon Smith", Country: "NZ",
		MatchName: "JOHN SMITH", RiskScore: 86, ProcessedAt: fixedNow,
	})
	require.NoError(t, err)
	in := api.puts[0]
	assert.Equal(t, "attribute_not_exists(#rid)", aws.ToString(in.ConditionExpression))
	assert.Equal(t, num(86), in.Item[attrRiskScore])
	assert.Equal(t, str("7"), in.Item[attrRecordID])
	assert.NotContains(t, in.Item, attrTTL, "no expiry without retention")
}

func TestRecordResultRepo_Create_SharesJobTTL(t *testing.T) {
	api := &fakeAPI{}
	repo, err := NewRecordResultRepo(api, "ComplianceResults")
	require.NoError(t, err)

	ttl := int64(1700000000)
	require.NoError(t, repo.Create(context.Background(), &model.RecordResult{
		JobID: "job-1", RecordID: "1", Name: "Jon Smith", ProcessedAt: fixedNow, TTL: &ttl,
	}))
	assert.Equal(t, num(1700000000), api.puts[0].Item[attrTTL])

	res, err := decodeResult(api.puts[0].Item)
	require.NoError(t, err)
	require.NotNil(t, res.TTL)
	assert.Equal(t, ttl, *res.TTL)
}

func TestRecordResultRepo_Create_Duplicate(t *testing.T) {
	repo, err := NewRecordResultRepo(&fakeAPI{err: &types.ConditionalCheckFailedException{}}, "t")
	require.NoError(t, err)
	err = repo.Create(context.Background(), &model.RecordResult{JobID: "job-1", RecordID: "1"})
	require.ErrorIs(t, err, core.ErrDuplicateRecord)
}

func TestRecordResultRepo_Create_OtherError(t *testing.T) {
	cause := errors.New("connection reset")
	repo, err := NewRecordResultRepo(&fakeAPI{err: cause}, "t")
	require.NoError(t, err)
	err = repo.Create(context.Background(), &model.RecordResult{JobID: "job-1", RecordID: "1"})
	require.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, core.ErrDuplicateRecord)
}

func TestRecordResultRepo_ListByJob_NumericOrderAcrossPages(t *testing.T) {
	item := func(id string) map[string]types.AttributeValue {
		return encodeResult(&model.RecordResult{JobID: "job-1", RecordID: id, ProcessedAt: fixedNow})
	}
	api := &fakeAPI{pages: []*dynamodb.QueryOutput{
		{
			Items:            []map[string]types.AttributeValue{item("1"), item("10")},
			LastEvaluatedKey: map[string]types.AttributeValue{attrJobID: str("job-1"), attrRecordID: str("10")},
		},
		{Items: []map[string]types.AttributeValue{item("2"), item("9")}},
	}}
	repo, err := NewRecordResultRepo(api, "t")
	require.NoError(t, err)

	got, err := repo.ListByJob(context.Background(), "job-1")
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.RecordID
	}
	assert.Equal(t, []string{"1", "2", "9", "10"}, ids)
	require.Len(t, api.queries, 2)
	assert.Equal(t, "#jid = :jid", aws.ToString(api.queries[0].KeyConditionExpression))
}
