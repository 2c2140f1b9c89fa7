package dynamo

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/target/namescreen/internal/core"
	"github.com/target/namescreen/internal/domain/model"
)

// RecordResultRepo stores record results keyed by (jobId, recordId).
type RecordResultRepo struct {
	client API
	table  string
}

var _ core.RecordResultRepository = (*RecordResultRepo)(nil)

// NewRecordResultRepo constructs a RecordResultRepo.
func NewRecordResultRepo(client API, table string) (*RecordResultRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("dynamodb client is required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("results table name is required")
	}
	return &RecordResultRepo{client: client, table: table}, nil
}

// Create writes a result only if no item exists for its key.
// An existing item yields core.ErrDuplicateRecord.
func (r *RecordResultRepo) Create(ctx context.Context, result *model.RecordResult) error {
	if result == nil || result.JobID == "" || result.RecordID == "" {
		return fmt.Errorf("job id and record id are required")
	}
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.table),
		Item:                     encodeResult(result),
		ConditionExpression:      aws.String("attribute_not_exists(#rid)"),
		ExpressionAttributeNames: map[string]string{"#rid": attrRecordID},
	})
	if _, failed := conditionFailed(err); failed {
		return core.ErrDuplicateRecord
	}
	if err != nil {
		return fmt.Errorf("put record result %s/%s: %w", result.JobID, result.RecordID, mapError(err))
	}
	return nil
}

// ListByJob queries every result of a job and orders them by numeric record ID.
func (r *RecordResultRepo) ListByJob(ctx context.Context, jobID string) ([]*model.RecordResult, error) {
	pages := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		KeyConditionExpression:    aws.String("#jid = :jid"),
		ExpressionAttributeNames:  map[string]string{"#jid": attrJobID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":jid": str(jobID)},
		ConsistentRead:            aws.Bool(true),
	})
	var out []*model.RecordResult
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query record results for %s: %w", jobID, mapError(err))
		}
		for _, item := range page.Items {
			res, err := decodeResult(item)
			if err != nil {
				return nil, fmt.Errorf("decode record result of %s: %w", jobID, err)
			}
			out = append(out, res)
		}
	}
	// The sort key is a string, so "10" sorts before "2" on the table.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Ordinal() < out[j].Ordinal()
	})
	return out, nil
}

func encodeResult(res *model.RecordResult) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		attrJobID:       str(res.JobID),
		attrRecordID:    str(res.RecordID),
		attrName:        str(res.Name),
		attrCountry:     str(res.Country),
		attrMatchName:   str(res.MatchName),
		attrRiskScore:   num(int64(res.RiskScore)),
		attrProcessedAt: timestamp(res.ProcessedAt),
	}
	if res.TTL != nil {
		item[attrTTL] = num(*res.TTL)
	}
	return item
}

func decodeResult(item map[string]types.AttributeValue) (*model.RecordResult, error) {
	var res model.RecordResult
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{attrJobID, &res.JobID},
		{attrRecordID, &res.RecordID},
		{attrName, &res.Name},
		{attrCountry, &res.Country},
		{attrMatchName, &res.MatchName},
	} {
		v, _, err := getString(item, f.name)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	score, _, err := getInt(item, attrRiskScore)
	if err != nil {
		return nil, err
	}
	res.RiskScore = int(score)
	if res.ProcessedAt, err = getTime(item, attrProcessedAt); err != nil {
		return nil, err
	}
	if ttl, ok, err := getInt(item, attrTTL); err != nil {
		return nil, err
	} else if ok {
		res.TTL = &ttl
	}
	return &res, nil
}
