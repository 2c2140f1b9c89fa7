package metrics

import (
	"time"

	obserrors "github.com/target/namescreen/internal/observability/errors"
	"github.com/target/namescreen/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultRejected = "rejected"
	ResultNoop     = "noop"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result != ResultSuccess {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Delivery outcomes reported by workers.
const (
	OutcomeAcked    = "acked"
	OutcomeNacked   = "nacked"
	OutcomePoison   = "poison"
	OutcomeLocked   = "locked"
	OutcomeRejected = "rejected"
)

// EmitDelivery records how a worker settled one queue delivery.
func EmitDelivery(sink statsd.Sink, outcome string, status string, d time.Duration) {
	if sink == nil {
		return
	}
	tags := map[string]string{"outcome": outcome}
	if status != "" {
		tags["status"] = status
	}
	sink.Count("worker.delivery", 1, tags)
	if d > 0 {
		sink.Timing("worker.delivery_duration", d, CloneTags(tags))
	}
}
