package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitStatus(t *testing.T, s *Scheduler, name string, want JobStatus) *TaskResult {
	t.Helper()
	var res *TaskResult
	require.Eventually(t, func() bool {
		var err error
		res, err = s.GetTask(name)
		require.NoError(t, err)
		return res.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return res
}

func TestRun(t *testing.T) {
	s := New()
	s.Register(Job{Name: "ok", Interval: time.Hour, Fn: func(context.Context) error { return nil }})
	s.Register(Job{Name: "fail", Interval: time.Hour, Fn: func(context.Context) error { return errors.New("boom") }})
	s.Register(Job{Name: "panic", Interval: time.Hour, Fn: func(context.Context) error { panic("bad") }})

	res, err := s.GetTask("ok")
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, res.Status)

	require.NoError(t, s.Run(context.Background(), "ok"))
	res = waitStatus(t, s, "ok", StatusFulfill)
	assert.NotNil(t, res.LastRunAt)

	require.NoError(t, s.Run(context.Background(), "fail"))
	assert.Equal(t, "boom", waitStatus(t, s, "fail", StatusReject).Message)

	require.NoError(t, s.Run(context.Background(), "panic"))
	assert.Contains(t, waitStatus(t, s, "panic", StatusReject).Message, "panic: bad")

	err = s.Run(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = s.GetTask("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestList(t *testing.T) {
	s := New()
	s.Register(Job{Name: "b", Interval: time.Hour})
	s.Register(Job{Name: "a", Interval: time.Minute})

	items := s.List()
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Name)
	assert.Equal(t, "b", items[1].Name)
	assert.True(t, items[0].NextDate.Before(items[1].NextDate))
}

func TestStart_RunsOnInterval(t *testing.T) {
	s := New()
	runs := make(chan struct{}, 10)
	s.Register(Job{Name: "tick", Interval: 10 * time.Millisecond, Fn: func(context.Context) error {
		select {
		case runs <- struct{}{}:
		default:
		}
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	for i := 0; i < 2; i++ {
		select {
		case <-runs:
		case <-time.After(2 * time.Second):
			t.Fatal("job did not run")
		}
	}
	cancel()
	s.Wait()
}
