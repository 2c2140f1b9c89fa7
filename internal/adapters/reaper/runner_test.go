package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/target/namescreen/config"
	"github.com/target/namescreen/internal/mocks"
	"go.uber.org/mock/gomock"
)

func TestNewRunner_RequiresStore(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Config: config.ReaperConfig{Interval: time.Minute, BatchSize: 10}})
	require.Error(t, err)
}

func TestRunner_RunSweepsUntilCanceled(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockReaperRepository(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	repo.EXPECT().DeleteExpiredJobs(gomock.Any(), gomock.Any(), 10).DoAndReturn(
		func(context.Context, time.Time, int) (int64, error) {
			cancel()
			return 0, nil
		}).MinTimes(1)

	r, err := NewRunner(RunnerOptions{
		Repo:   repo,
		Config: config.ReaperConfig{Interval: time.Millisecond, BatchSize: 10},
	})
	require.NoError(t, err)
	require.NoError(t, r.Run(ctx))
}
