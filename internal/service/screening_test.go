package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/namescreen/internal/core"
	domainjob "github.com/target/namescreen/internal/domain/job"
	"github.com/target/namescreen/internal/domain/model"
	"github.com/target/namescreen/internal/domain/screening"
	"github.com/target/namescreen/internal/mocks"
	"github.com/target/namescreen/internal/observability/notify"
	"go.uber.org/mock/gomock"
)

type screeningFixture struct {
	svc     *ScreeningService
	jobs    *mocks.MockJobRepository
	objects *memObjects
	results *memResults
	alerts  []notify.JobFailurePayload
}

func newScreeningFixture(t *testing.T, maxRows int) *screeningFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &screeningFixture{
		jobs:    mocks.NewMockJobRepository(ctrl),
		objects: newMemObjects(),
		results: newMemResults(),
	}
	watchlist, err := NewWatchlistProvider(WatchlistOptions{Store: f.objects})
	require.NoError(t, err)
	processor, err := NewRecordProcessor(RecordProcessorOptions{
		Results: f.results, Scorer: screening.FuzzyScorer{}, MaxRows: maxRows,
	})
	require.NoError(t, err)

	f.svc, err = NewScreeningService(ScreeningServiceOptions{
		Jobs:      newJobService(t, f.jobs, 0),
		Watchlist: watchlist,
		Objects:   f.objects,
		Processor: processor,
		Notifier:  notifierFunc(func(_ context.Context, p notify.JobFailurePayload) {
			f.alerts = append(f.alerts, p)
		}),
	})
	require.NoError(t, err)
	return f
}

type notifierFunc func(ctx context.Context, p notify.JobFailurePayload)

func (f notifierFunc) NotifyJobFailure(ctx context.Context, p notify.JobFailurePayload) { f(ctx, p) }

var testItem = model.WorkItem{JobID: testJobID, Bucket: "uploads", Key: "batches/in.csv"}

func TestScreeningService_Process_Done(t *testing.T) {
	f := newScreeningFixture(t, 10)
	f.objects.add("uploads", DefaultWatchlistKey, `{"name":"ACME HOLDINGS"}`)
	f.objects.add("uploads", "batches/in.csv", "name,country\nAcme Holdings,AU\nJohn Smith,\n,\n")

	gomock.InOrder(
		f.jobs.EXPECT().MarkProcessing(gomock.Any(), core.MarkProcessingParams{JobID: testJobID}).Return(nil),
		f.jobs.EXPECT().Complete(gomock.Any(), core.CompleteJobParams{
			JobID:   testJobID,
			Summary: model.Summary{Total: 2, High: 1, Low: 1},
		}).Return(nil),
	)

	status, err := f.svc.Process(context.Background(), testItem)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, status)

	stored, err := f.results.ListByJob(context.Background(), testJobID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "AU", stored[0].Country)
	assert.Equal(t, model.DefaultCountry, stored[1].Country)
}

func TestScreeningService_Process_WatchlistUnavailableUsesDefault(t *testing.T) {
	f := newScreeningFixture(t, 10)
	f.objects.add("uploads", "batches/in.csv", "name\nGlobal Services Ltd.\n")

	f.jobs.EXPECT().MarkProcessing(gomock.Any(), gomock.Any()).Return(nil)
	f.jobs.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p core.CompleteJobParams) error {
			assert.Equal(t, model.Summary{Total: 1, High: 1}, p.Summary)
			return nil
		})

	status, err := f.svc.Process(context.Background(), testItem)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, status)

	r, ok := f.results.get(testJobID, "1")
	require.True(t, ok)
	assert.Equal(t, "GLOBAL SERVICES LTD", r.MatchName)
}

func TestScreeningService_Process_TruncatedSummary(t *testing.T) {
	f := newScreeningFixture(t, 3)
	f.objects.add("uploads", "batches/in.csv", "name\na\nb\nc\nd\ne\n")

	f.jobs.EXPECT().MarkProcessing(gomock.Any(), gomock.Any()).Return(nil)
	f.jobs.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p core.CompleteJobParams) error {
			assert.Equal(t, 3, p.Summary.Total)
			assert.True(t, p.Summary.Truncated)
			return nil
		})

	_, err := f.svc.Process(context.Background(), testItem)
	require.NoError(t, err)
	_, ok := f.results.get(testJobID, "4")
	assert.False(t, ok)
}

func TestScreeningService_Process_MissingInputFails(t *testing.T) {
	f := newScreeningFixture(t, 10)

	f.jobs.EXPECT().MarkProcessing(gomock.Any(), gomock.Any()).Return(nil)
	f.jobs.EXPECT().Complete(gomock.Any(), gomock.Any()).Times(0)
	f.jobs.EXPECT().Fail(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p core.FailJobParams) error {
			assert.True(t, strings.HasPrefix(p.Error, "service_sourcefetcherror: source fetch failed: open uploads/batches/in.csv"), p.Error)
			return nil
		})

	status, err := f.svc.Process(context.Background(), testItem)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, status)

	require.Len(t, f.alerts, 1)
	alert := f.alerts[0]
	assert.Equal(t, testJobID, alert.JobID)
	assert.Equal(t, "uploads/batches/in.csv", alert.Input())
	assert.Equal(t, "service_sourcefetcherror", alert.ErrorClass)
	assert.False(t, alert.OccurredAt.IsZero())
}

func TestScreeningService_Process_WriteErrorFails(t *testing.T) {
	f := newScreeningFixture(t, 10)
	f.objects.add("uploads", "batches/in.csv", "name\na\nb\n")
	f.results.failOn["2"] = errors.New("provisioned throughput exceeded")

	f.jobs.EXPECT().MarkProcessing(gomock.Any(), gomock.Any()).Return(nil)
	f.jobs.EXPECT().Fail(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p core.FailJobParams) error {
			assert.Contains(t, p.Error, "store record 2: provisioned throughput exceeded")
			return nil
		})

	status, err := f.svc.Process(context.Background(), testItem)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, status)
}

func TestScreeningService_Process_RedeliveryOfFinishedJob(t *testing.T) {
	f := newScreeningFixture(t, 10)
	f.objects.add("uploads", "batches/in.csv", "name\na\n")

	f.jobs.EXPECT().MarkProcessing(gomock.Any(), gomock.Any()).Return(
		domainjob.TransitionError{JobID: testJobID, From: model.JobStatusDone, To: model.JobStatusProcessing})

	_, err := f.svc.Process(context.Background(), testItem)
	require.ErrorIs(t, err, domainjob.ErrInvalidTransition)
	assert.Zero(t, f.results.attempt, "no rows processed for a settled job")
}

func TestScreeningService_Process_ProcessingWriteFailure(t *testing.T) {
	f := newScreeningFixture(t, 10)

	f.jobs.EXPECT().MarkProcessing(gomock.Any(), gomock.Any()).Return(errors.New("store unavailable"))
	f.jobs.EXPECT().Fail(gomock.Any(), gomock.Any()).Times(0)

	_, err := f.svc.Process(context.Background(), testItem)
	require.ErrorIs(t, err, ErrStatusUpdate)
}

func TestScreeningService_Process_SummaryCommitFailure(t *testing.T) {
	f := newScreeningFixture(t, 10)
	f.objects.add("uploads", "batches/in.csv", "name\na\n")

	f.jobs.EXPECT().MarkProcessing(gomock.Any(), gomock.Any()).Return(nil)
	f.jobs.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(errors.New("item size exceeded"))

	t.Run("recorded as failed", func(t *testing.T) {
		f.jobs.EXPECT().Fail(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, p core.FailJobParams) error {
				assert.Contains(t, p.Error, "item size exceeded")
				return nil
			})
		status, err := f.svc.Process(context.Background(), testItem)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, status)
	})
}

func TestScreeningService_Process_FailWriteFailureIsReturned(t *testing.T) {
	f := newScreeningFixture(t, 10)

	f.jobs.EXPECT().MarkProcessing(gomock.Any(), gomock.Any()).Return(nil)
	f.jobs.EXPECT().Fail(gomock.Any(), gomock.Any()).Return(errors.New("store unavailable"))

	_, err := f.svc.Process(context.Background(), testItem)
	require.ErrorIs(t, err, ErrStatusUpdate)
	require.ErrorIs(t, err, ErrSourceFetch)
	assert.Empty(t, f.alerts, "no alert until the job is recorded as failed")
}

func TestScreeningService_Process_CanceledLeavesJobProcessing(t *testing.T) {
	f := newScreeningFixture(t, 10)
	f.objects.add("uploads", "batches/in.csv", "name\na\n")

	ctx, cancel := context.WithCancel(context.Background())
	f.jobs.EXPECT().MarkProcessing(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, core.MarkProcessingParams) error {
			cancel()
			return nil
		})
	f.jobs.EXPECT().Fail(gomock.Any(), gomock.Any()).Times(0)
	f.jobs.EXPECT().Complete(gomock.Any(), gomock.Any()).Times(0)

	status, err := f.svc.Process(ctx, testItem)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.JobStatusProcessing, status)
}

func TestScreeningService_Process_InvalidItem(t *testing.T) {
	f := newScreeningFixture(t, 10)
	_, err := f.svc.Process(context.Background(), model.WorkItem{JobID: testJobID})
	require.ErrorIs(t, err, model.ErrInvalidWorkItem)
}
