package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/namescreen/internal/core"
	domainjob "github.com/target/namescreen/internal/domain/job"
	"github.com/target/namescreen/internal/domain/model"
	"github.com/target/namescreen/internal/mocks"
	"github.com/target/namescreen/internal/observability/statsd"
	"go.uber.org/mock/gomock"
)

const testJobID = "job-1"

func newJobService(t *testing.T, repo core.JobRepository, retention time.Duration) *JobService {
	t.Helper()
	svc, err := NewJobService(JobServiceOptions{
		Repo:      repo,
		Retention: retention,
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return svc
}

func TestNewJobService_Validation(t *testing.T) {
	_, err := NewJobService(JobServiceOptions{})
	require.Error(t, err)

	ctrl := gomock.NewController(t)
	_, err = NewJobService(JobServiceOptions{Repo: mocks.NewMockJobRepository(ctrl), Retention: -time.Hour})
	require.Error(t, err)
}

func TestJobService_Create(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc := newJobService(t, repo, 0)

	repo.EXPECT().
		CreateQueued(gomock.Any(), core.CreateQueuedJobParams{JobID: testJobID}).
		Return(&model.Job{ID: testJobID, Status: model.JobStatusQueued}, nil)

	job, err := svc.Create(context.Background(), testJobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, job.Status)

	_, err = svc.Create(context.Background(), "")
	require.Error(t, err)
}

func TestJobService_MarkProcessing_SetsTTLFromRetention(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc := newJobService(t, repo, 48*time.Hour)

	want := fixedNow.Add(48 * time.Hour).Unix()
	repo.EXPECT().MarkProcessing(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p core.MarkProcessingParams) error {
			assert.Equal(t, testJobID, p.JobID)
			require.NotNil(t, p.TTL)
			assert.Equal(t, want, *p.TTL)
			return nil
		})

	require.NoError(t, svc.MarkProcessing(context.Background(), testJobID))
}

func TestJobService_NoTTLWhenRetentionDisabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc := newJobService(t, repo, 0)

	repo.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p core.CompleteJobParams) error {
			assert.Nil(t, p.TTL)
			assert.Equal(t, model.Summary{Total: 1, High: 1}, p.Summary)
			return nil
		})

	require.NoError(t, svc.Complete(context.Background(), testJobID, model.Summary{Total: 1, High: 1}))
}

func TestJobService_Complete_RejectsInconsistentSummary(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc := newJobService(t, repo, 0)

	repo.EXPECT().Complete(gomock.Any(), gomock.Any()).Times(0)
	err := svc.Complete(context.Background(), testJobID, model.Summary{Total: 2, High: 1})
	require.Error(t, err)
}

func TestJobService_RejectedTransition(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	rec := &statsd.Recorder{}
	svc, err := NewJobService(JobServiceOptions{Repo: repo, Metrics: rec})
	require.NoError(t, err)

	repo.EXPECT().MarkProcessing(gomock.Any(), gomock.Any()).Return(
		domainjob.TransitionError{JobID: testJobID, From: model.JobStatusDone, To: model.JobStatusProcessing})

	err = svc.MarkProcessing(context.Background(), testJobID)
	require.ErrorIs(t, err, domainjob.ErrInvalidTransition)
	assert.NotErrorIs(t, err, ErrStatusUpdate)

	samples := rec.Samples()
	require.Len(t, samples, 1)
	assert.Equal(t, "rejected", samples[0].Tags["result"])
}

func TestJobService_StoreErrorIsStatusUpdateFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc := newJobService(t, repo, 0)

	boom := errors.New("connection reset")
	repo.EXPECT().MarkProcessing(gomock.Any(), gomock.Any()).Return(boom)

	err := svc.MarkProcessing(context.Background(), testJobID)
	require.ErrorIs(t, err, ErrStatusUpdate)
	require.ErrorIs(t, err, boom)
}

type throttledError struct{ msg string }

func (e *throttledError) Error() string { return e.msg }

func TestJobService_Fail_FormatsErrorClass(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc := newJobService(t, repo, time.Hour)

	repo.EXPECT().Fail(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p core.FailJobParams) error {
			assert.Equal(t, testJobID, p.JobID)
			assert.Equal(t, "service_throttlederror: store record 7: slow down", p.Error)
			assert.NotNil(t, p.TTL)
			return nil
		})

	cause := fmt.Errorf("store record 7: %w", &throttledError{msg: "slow down"})
	require.NoError(t, svc.Fail(context.Background(), testJobID, cause))
}
