package dynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	apperrors "github.com/target/namescreen/internal/errors"
)

// mapError attaches an AppError code to throttling and context failures.
// Other errors are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "dynamodb call timed out")
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, "dynamodb call canceled")
	}
	var (
		throughput *types.ProvisionedThroughputExceededException
		limit      *types.RequestLimitExceeded
		notFound   *types.ResourceNotFoundException
	)
	switch {
	case errors.As(err, &throughput), errors.As(err, &limit):
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "dynamodb throttled")
	case errors.As(err, &notFound):
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "dynamodb table missing")
	}
	return err
}

// conditionFailed reports whether err is a failed ConditionExpression and
// returns the item as it was before the write, when the service included it.
func conditionFailed(err error) (map[string]types.AttributeValue, bool) {
	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return nil, false
	}
	return ccf.Item, true
}
