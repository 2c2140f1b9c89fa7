// Package dynamo stores screening jobs and record results in DynamoDB tables.
package dynamo

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attribute names shared by both tables.
const (
	attrJobID       = "jobId"
	attrStatus      = "status"
	attrError       = "error"
	attrSummary     = "summary"
	attrCreatedAt   = "createdAt"
	attrUpdatedAt   = "updatedAt"
	attrTTL         = "ttl"
	attrRecordID    = "recordId"
	attrName        = "name"
	attrCountry     = "country"
	attrMatchName   = "matchName"
	attrRiskScore   = "riskScore"
	attrProcessedAt = "processedAt"
)

// Timestamps are stored as RFC 3339 strings with millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Item encoding is explicit: each semantic type has exactly one representation.

func str(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

func num(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func boolean(b bool) types.AttributeValue {
	return &types.AttributeValueMemberBOOL{Value: b}
}

func timestamp(t time.Time) types.AttributeValue {
	return str(t.UTC().Format(timeLayout))
}

func object(fields map[string]types.AttributeValue) types.AttributeValue {
	return &types.AttributeValueMemberM{Value: fields}
}

func getString(item map[string]types.AttributeValue, name string) (string, bool, error) {
	switch v := item[name].(type) {
	case nil, *types.AttributeValueMemberNULL:
		return "", false, nil
	case *types.AttributeValueMemberS:
		return v.Value, true, nil
	default:
		return "", false, fmt.Errorf("attribute %s: want string, got %T", name, v)
	}
}

func getInt(item map[string]types.AttributeValue, name string) (int64, bool, error) {
	switch v := item[name].(type) {
	case nil, *types.AttributeValueMemberNULL:
		return 0, false, nil
	case *types.AttributeValueMemberN:
		n, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			// Numbers written by other clients may carry a fraction.
			f, ferr := strconv.ParseFloat(v.Value, 64)
			if ferr != nil {
				return 0, false, fmt.Errorf("attribute %s: %w", name, err)
			}
			n = int64(f)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("attribute %s: want number, got %T", name, v)
	}
}

func getBool(item map[string]types.AttributeValue, name string) (bool, error) {
	switch v := item[name].(type) {
	case nil, *types.AttributeValueMemberNULL:
		return false, nil
	case *types.AttributeValueMemberBOOL:
		return v.Value, nil
	default:
		return false, fmt.Errorf("attribute %s: want bool, got %T", name, v)
	}
}

func getTime(item map[string]types.AttributeValue, name string) (time.Time, error) {
	s, ok, err := getString(item, name)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("attribute %s: %w", name, err)
	}
	return t, nil
}

func getMap(item map[string]types.AttributeValue, name string) (map[string]types.AttributeValue, error) {
	switch v := item[name].(type) {
	case nil, *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberM:
		return v.Value, nil
	default:
		return nil, fmt.Errorf("attribute %s: want map, got %T", name, v)
	}
}
