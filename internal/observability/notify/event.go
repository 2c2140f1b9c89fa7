// Package notify defines the alert payload sent when a screening job fails.
package notify

import (
	"context"
	"time"
)

// SeverityCritical is the default severity of a job failure.
const SeverityCritical = "critical"

// JobFailurePayload describes one job that ended FAILED.
type JobFailurePayload struct {
	JobID      string
	Bucket     string
	Key        string
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Input returns "bucket/key" of the file the job screened, or "".
func (p JobFailurePayload) Input() string {
	if p.Bucket == "" && p.Key == "" {
		return ""
	}
	return p.Bucket + "/" + p.Key
}

// Sink delivers job failure notifications to one destination.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements Sink.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
