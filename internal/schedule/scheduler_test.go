package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aide-sh/aide/internal/clock"
	aideerrors "github.com/aide-sh/aide/internal/errors"
	"github.com/aide-sh/aide/internal/testutil"
)

// TestAddJob tests job registration rules.
func TestAddJob(t *testing.T) {
	clk := clock.NewMock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))

	t.Run("registers jobs", func(t *testing.T) {
		s := NewScheduler(clk)

		require.NoError(t, s.AddJob("tick", func(context.Context) error { return nil }, time.Minute, false))
		require.NoError(t, s.AddJob("tock", func(context.Context) error { return nil }, time.Hour, true))

		status := s.Status()
		assert.Equal(t, 2, status.JobCount)
		assert.False(t, status.IsRunning)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		s := NewScheduler(clk)
		err := s.AddJob("", func(context.Context) error { return nil }, time.Minute, false)
		require.ErrorIs(t, err, aideerrors.ErrEmptyValue)
	})

	t.Run("rejects non-positive interval", func(t *testing.T) {
		s := NewScheduler(clk)
		err := s.AddJob("bad", func(context.Context) error { return nil }, 0, false)
		require.ErrorIs(t, err, aideerrors.ErrConfigInvalid)
	})
}

// TestRunDue tests deterministic scheduling semantics.
func TestRunDue(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	t.Run("run immediately fires on first tick", func(t *testing.T) {
		clk := clock.NewMock(start)
		s := NewScheduler(clk)

		runs := 0
		require.NoError(t, s.AddJob("job", func(context.Context) error { runs++; return nil }, time.Minute, true))

		assert.Equal(t, 1, s.RunDue(ctx))
		assert.Equal(t, 1, runs)
	})

	t.Run("deferred job waits a full interval", func(t *testing.T) {
		clk := clock.NewMock(start)
		s := NewScheduler(clk)

		runs := 0
		require.NoError(t, s.AddJob("job", func(context.Context) error { runs++; return nil }, time.Minute, false))

		assert.Equal(t, 0, s.RunDue(ctx))

		clk.Advance(59 * time.Second)
		assert.Equal(t, 0, s.RunDue(ctx))

		clk.Advance(time.Second)
		assert.Equal(t, 1, s.RunDue(ctx))
		assert.Equal(t, 1, runs)
	})

	t.Run("no catch-up after a gap", func(t *testing.T) {
		clk := clock.NewMock(start)
		s := NewScheduler(clk)

		runs := 0
		require.NoError(t, s.AddJob("job", func(context.Context) error { runs++; return nil }, time.Minute, true))

		s.RunDue(ctx)
		require.Equal(t, 1, runs)

		// Five intervals pass with no ticks; exactly one run fires, and
		// the next is rescheduled a full interval out.
		clk.Advance(5 * time.Minute)
		s.RunDue(ctx)
		assert.Equal(t, 2, runs)

		s.RunDue(ctx)
		assert.Equal(t, 2, runs)

		clk.Advance(time.Minute)
		s.RunDue(ctx)
		assert.Equal(t, 3, runs)
	})

	t.Run("failing job reschedules and counts errors", func(t *testing.T) {
		clk := clock.NewMock(start)
		s := NewScheduler(clk)

		require.NoError(t, s.AddJob("flaky", func(context.Context) error { return testutil.ErrMockJob }, time.Minute, true))
		require.NoError(t, s.AddJob("steady", func(context.Context) error { return nil }, time.Minute, true))

		s.RunDue(ctx)

		status := s.Status()
		require.Len(t, status.Jobs, 2)
		assert.Equal(t, 1, status.Jobs[0].ErrorCount)
		assert.Equal(t, 0, status.Jobs[0].RunCount)
		// The failing job did not disturb the other one
		assert.Equal(t, 1, status.Jobs[1].RunCount)

		// Failure still reschedules
		clk.Advance(time.Minute)
		s.RunDue(ctx)
		assert.Equal(t, 2, s.Status().Jobs[0].ErrorCount)
	})

	t.Run("panicking job is recovered", func(t *testing.T) {
		clk := clock.NewMock(start)
		s := NewScheduler(clk)

		require.NoError(t, s.AddJob("bomb", func(context.Context) error { panic("boom") }, time.Minute, true))

		assert.NotPanics(t, func() { s.RunDue(ctx) })
		assert.Equal(t, 1, s.Status().Jobs[0].ErrorCount)
	})

	t.Run("status reports next run", func(t *testing.T) {
		clk := clock.NewMock(start)
		s := NewScheduler(clk)

		require.NoError(t, s.AddJob("job", func(context.Context) error { return nil }, time.Minute, true))
		s.RunDue(ctx)

		status := s.Status()
		assert.Equal(t, start, status.Jobs[0].LastRun)
		assert.Equal(t, start.Add(time.Minute), status.Jobs[0].NextRun)
	})
}

// TestSchedulerLifecycle tests the background control loop.
func TestSchedulerLifecycle(t *testing.T) {
	clk := clock.NewMock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))

	t.Run("start and cancel", func(t *testing.T) {
		s := NewScheduler(clk)
		ctx, cancel := context.WithCancel(context.Background())

		require.NoError(t, s.Start(ctx))
		assert.True(t, s.IsRunning())

		// Double start is rejected
		require.ErrorIs(t, s.Start(ctx), aideerrors.ErrSchedulerRunning)

		cancel()
		s.Wait()
		assert.False(t, s.IsRunning())
	})

	t.Run("no jobs can be added while running", func(t *testing.T) {
		s := NewScheduler(clk)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		require.NoError(t, s.Start(ctx))
		err := s.AddJob("late", func(context.Context) error { return nil }, time.Minute, false)
		require.ErrorIs(t, err, aideerrors.ErrSchedulerRunning)
	})
}
