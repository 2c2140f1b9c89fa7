package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/namescreen/internal/observability/statsd"
)

type lockError struct{}

func (lockError) Error() string { return "lock held" }

func TestEmitJobLifecycle(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitJobLifecycle(rec, JobMetric{
		Transition: "processing->failed",
		Result:     ResultError,
		Duration:   1500 * time.Millisecond,
		Err:        lockError{},
	})

	samples := rec.Samples()
	require.Len(t, samples, 2)
	assert.Equal(t, "job.transition", samples[0].Name)
	assert.Equal(t, "metrics_lockerror", samples[0].Tags["error_class"])
	assert.Equal(t, "job.duration", samples[1].Name)
	assert.InDelta(t, 1500, samples[1].Value, 0.001)
}

func TestEmitJobLifecycle_SuccessHasNoErrorClass(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitJobLifecycle(rec, JobMetric{Transition: "processing->done", Result: ResultSuccess, Err: errors.New("ignored")})
	samples := rec.Samples()
	require.Len(t, samples, 1)
	assert.NotContains(t, samples[0].Tags, "error_class")
}

func TestEmitRecordPass(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitRecordPass(rec, RecordPassMetric{
		Strategy: "fuzzy", Total: 3, High: 1, Low: 2, Duplicates: 1, Truncated: true,
	})

	assert.InDelta(t, 3, rec.Total("screening.rows"), 0)
	assert.InDelta(t, 3, rec.Total("screening.tier"), 0)
	assert.InDelta(t, 1, rec.Total("screening.duplicates"), 0)
	assert.InDelta(t, 1, rec.Total("screening.truncated"), 0)
	for _, s := range rec.Samples() {
		if s.Name == "screening.tier" {
			assert.NotEqual(t, "medium", s.Tags["tier"], "zero tiers are not emitted")
		}
	}
}

func TestEmitters_NilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		EmitJobLifecycle(nil, JobMetric{})
		EmitRecordPass(nil, RecordPassMetric{})
		EmitWatchlistLoad(nil, "default", 3, 0)
		EmitDelivery(nil, OutcomeAcked, "", time.Second)
	})
}

func TestEmitDelivery(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitDelivery(rec, OutcomeAcked, "DONE", 2*time.Second)
	EmitDelivery(rec, OutcomePoison, "", 0)

	samples := rec.Samples()
	require.Len(t, samples, 3)
	assert.Equal(t, "worker.delivery", samples[0].Name)
	assert.Equal(t, "DONE", samples[0].Tags["status"])
	assert.Equal(t, "worker.delivery_duration", samples[1].Name)
	assert.NotContains(t, samples[2].Tags, "status")
	assert.InDelta(t, 2, rec.Total("worker.delivery"), 0)
}
