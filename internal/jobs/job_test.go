package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJobRecordsRuns(t *testing.T) {
	fail := true
	j := NewJob("sample", time.Minute, func(ctx context.Context) (interface{}, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return map[string]int{"updated": 2}, nil
	})

	_, err := j.Run(context.Background())
	require.EqualError(t, err, "boom")
	st := j.Status()
	require.EqualValues(t, 1, st.Runs)
	require.NotNil(t, st.LastRun)
	require.Nil(t, st.LastSuccess)
	require.Equal(t, "boom", st.LastError)

	fail = false
	res, err := j.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]int{"updated": 2}, res)
	st = j.Status()
	require.EqualValues(t, 2, st.Runs)
	require.NotNil(t, st.LastSuccess)
	require.Empty(t, st.LastError)
	require.Equal(t, "1m0s", st.Interval)
}

func TestJobSkipsOverlappingRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	j := NewJob("slow", time.Minute, func(ctx context.Context) (interface{}, error) {
		close(started)
		<-release
		return nil, nil
	})

	done := make(chan error)
	go func() {
		_, err := j.Run(context.Background())
		done <- err
	}()
	<-started

	_, err := j.Run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.True(t, j.Status().Running)

	close(release)
	require.NoError(t, <-done)
	st := j.Status()
	require.EqualValues(t, 1, st.Runs)
	require.EqualValues(t, 1, st.Skipped)
	require.False(t, st.Running)
}

func TestJobTimeout(t *testing.T) {
	j := NewJob("bounded", time.Minute, func(ctx context.Context) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, WithTimeout(10*time.Millisecond))

	_, err := j.Run(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSchedulerRunsJobs(t *testing.T) {
	var ticks, boots atomic.Int32
	ticker := NewJob("ticker", 20*time.Millisecond, func(ctx context.Context) (interface{}, error) {
		ticks.Add(1)
		return nil, nil
	})
	boot := NewJob("boot", time.Hour, func(ctx context.Context) (interface{}, error) {
		boots.Add(1)
		return nil, nil
	}, RunAtStart())

	s, err := NewScheduler(ticker, boot)
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { _ = s.Shutdown() })

	require.Eventually(t, func() bool { return ticks.Load() >= 2 && boots.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	j, ok := s.Job("boot")
	require.True(t, ok)
	require.NotNil(t, j.Status().LastSuccess)
	require.Len(t, s.Statuses(), 2)
	require.Equal(t, "ticker", s.Statuses()[0].Name)
}

func TestSchedulerRejectsDuplicateNames(t *testing.T) {
	noop := func(ctx context.Context) (interface{}, error) { return nil, nil }
	_, err := NewScheduler(NewJob("same", time.Minute, noop), NewJob("same", time.Minute, noop))
	require.Error(t, err)
}
