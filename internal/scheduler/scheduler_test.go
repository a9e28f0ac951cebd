package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsImmediatelyAndRepeats(t *testing.T) {
	var runs atomic.Int32
	s := New()
	require.NoError(t, s.Add(Job{
		Name:     "count",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")
}

func TestScheduler_NoOverlap(t *testing.T) {
	var active, maxActive, runs atomic.Int32
	s := New()
	require.NoError(t, s.Add(Job{
		Name:     "slow",
		Interval: time.Millisecond,
		Run: func(ctx context.Context) error {
			n := active.Add(1)
			if n > maxActive.Load() {
				maxActive.Store(n)
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			runs.Add(1)
			return nil
		},
	}))

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return runs.Load() >= 5 }, 2*time.Second, time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(1), maxActive.Load())
}

func TestScheduler_ErrorsAndPanicsDoNotStopJob(t *testing.T) {
	var runs atomic.Int32
	s := New()
	require.NoError(t, s.Add(Job{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			switch runs.Add(1) {
			case 1:
				return errors.New("boom")
			case 2:
				panic("kaboom")
			}
			return nil
		},
	}))

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, time.Millisecond)
	s.Stop()
}

func TestScheduler_AddValidation(t *testing.T) {
	s := New()
	assert.Error(t, s.Add(Job{Name: "zero", Run: func(context.Context) error { return nil }}))
	assert.Error(t, s.Add(Job{Name: "nil", Interval: time.Second}))

	s.Start(context.Background())
	defer s.Stop()
	assert.ErrorIs(t, s.Add(Job{Name: "late", Interval: time.Second, Run: func(context.Context) error { return nil }}), ErrStarted)
}
