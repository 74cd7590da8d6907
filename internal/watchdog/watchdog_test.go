package watchdog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aide-sh/aide/internal/audit"
	"github.com/aide-sh/aide/internal/clock"
	"github.com/aide-sh/aide/internal/domain"
	"github.com/aide-sh/aide/internal/testutil"
	"github.com/aide-sh/aide/internal/vault"
)

// mockWatcher is a controllable watcher for supervision tests.
type mockWatcher struct {
	mu        sync.Mutex
	name      string
	running   bool
	lastCheck time.Time
	items     int
	startErr  error
	starts    int
	stops     int
}

func (m *mockWatcher) Name() string { return m.name }

func (m *mockWatcher) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.startErr != nil {
		return m.startErr
	}
	m.running = true
	return nil
}

func (m *mockWatcher) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.running = false
	return nil
}

func (m *mockWatcher) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *mockWatcher) LastCheck() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheck
}

func (m *mockWatcher) ItemsProcessed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items
}

// recordingSleep collects backoff durations without sleeping.
type recordingSleep struct {
	slept []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) {
	r.slept = append(r.slept, d)
}

func newTestWatchdog(watchers []domain.Watcher, opts ...Option) (*Watchdog, *vault.MemStore, *audit.MemSink, *recordingSleep) {
	store := vault.NewMemStore()
	sink := audit.NewMemSink()
	clk := clock.NewMock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
	sleeper := &recordingSleep{}
	opts = append([]Option{WithSleep(sleeper.sleep)}, opts...)
	return NewWatchdog(watchers, store, sink, clk, opts...), store, sink, sleeper
}

// TestCheckHealthRestarts tests restart decisions.
func TestCheckHealthRestarts(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy watcher is untouched", func(t *testing.T) {
		watcher := &mockWatcher{name: "inbox", running: true,
			lastCheck: time.Date(2026, 1, 15, 8, 59, 0, 0, time.UTC)}
		wd, _, _, sleeper := newTestWatchdog([]domain.Watcher{watcher})

		wd.CheckHealth(ctx)

		assert.Zero(t, watcher.starts)
		assert.Empty(t, sleeper.slept)
	})

	t.Run("dead watcher is restarted", func(t *testing.T) {
		watcher := &mockWatcher{name: "inbox", running: false}
		wd, _, sink, sleeper := newTestWatchdog([]domain.Watcher{watcher})

		wd.CheckHealth(ctx)

		assert.Equal(t, 1, watcher.starts)
		assert.Equal(t, 1, watcher.stops)
		assert.True(t, watcher.IsRunning())
		assert.Equal(t, []time.Duration{time.Second}, sleeper.slept)
		assert.Equal(t, 1, sink.CountOf(audit.EventWatchdogRestart))
	})

	t.Run("stale watcher is restarted", func(t *testing.T) {
		// Running, but last check is 10 minutes behind the mock clock.
		watcher := &mockWatcher{name: "inbox", running: true,
			lastCheck: time.Date(2026, 1, 15, 8, 50, 0, 0, time.UTC)}
		wd, _, _, _ := newTestWatchdog([]domain.Watcher{watcher})

		wd.CheckHealth(ctx)

		assert.Equal(t, 1, watcher.starts)
	})

	t.Run("watcher that never checked is not stale", func(t *testing.T) {
		watcher := &mockWatcher{name: "inbox", running: true}
		wd, _, _, _ := newTestWatchdog([]domain.Watcher{watcher})

		wd.CheckHealth(ctx)

		assert.Zero(t, watcher.starts)
	})

	t.Run("successful restart resets the budget", func(t *testing.T) {
		watcher := &mockWatcher{name: "inbox", running: false}
		wd, _, _, _ := newTestWatchdog([]domain.Watcher{watcher})

		wd.CheckHealth(ctx)
		require.True(t, watcher.IsRunning())

		assert.Equal(t, 0, wd.Status().RestartCounts["inbox"])
	})
}

// TestRestartBackoff tests bounded exponential retries.
func TestRestartBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("backoff doubles per attempt", func(t *testing.T) {
		watcher := &mockWatcher{name: "inbox", startErr: testutil.ErrMockWatcher}
		wd, _, _, sleeper := newTestWatchdog([]domain.Watcher{watcher})

		wd.CheckHealth(ctx)
		wd.CheckHealth(ctx)
		wd.CheckHealth(ctx)

		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeper.slept)
		assert.Equal(t, 3, watcher.starts)
	})

	t.Run("backoff is capped", func(t *testing.T) {
		assert.Equal(t, time.Second, backoffFor(0))
		assert.Equal(t, 32*time.Second, backoffFor(5))
		assert.Equal(t, 60*time.Second, backoffFor(6))
		assert.Equal(t, 60*time.Second, backoffFor(40))
	})

	t.Run("alert raised once after budget exhausted", func(t *testing.T) {
		watcher := &mockWatcher{name: "inbox watcher", startErr: testutil.ErrMockWatcher}
		wd, store, sink, _ := newTestWatchdog([]domain.Watcher{watcher})

		// Three failed attempts spend the budget; further checks alert.
		for i := 0; i < 5; i++ {
			wd.CheckHealth(ctx)
		}

		assert.Equal(t, 3, watcher.starts)
		assert.Equal(t, 1, sink.CountOf(audit.EventWatchdogAlert))

		names, err := store.List(ctx, vault.PendingApproval, "")
		require.NoError(t, err)
		require.Len(t, names, 1)
		assert.Equal(t, "20260115_090000_ALERT_inbox_watcher.md", names[0])

		data, err := store.Read(ctx, vault.PendingApproval, names[0])
		require.NoError(t, err)
		content := string(data)
		assert.Contains(t, content, "SYSTEM ALERT: inbox watcher Failed")
		assert.Contains(t, content, "Failed after 3 restart attempts")
		assert.Contains(t, content, testutil.ErrMockWatcher.Error())

		parsed := vault.ParseTask(names[0], data)
		assert.Equal(t, "system_alert", parsed.Type)
	})

	t.Run("history is bounded", func(t *testing.T) {
		watcher := &mockWatcher{name: "inbox", startErr: testutil.ErrMockWatcher}
		wd, _, _, _ := newTestWatchdog([]domain.Watcher{watcher}, WithMaxAttempts(10))

		for i := 0; i < 12; i++ {
			wd.CheckHealth(ctx)
		}

		status := wd.Status()
		assert.Len(t, status.RestartHistory, 10)
		// The oldest entries fell off; the newest attempt is last.
		assert.Equal(t, 10, status.RestartHistory[9].Attempt)
		assert.False(t, status.RestartHistory[9].Success)
	})
}

// TestWatchdogStatus tests the status snapshot.
func TestWatchdogStatus(t *testing.T) {
	ctx := context.Background()

	running := &mockWatcher{name: "healthy", running: true, items: 7}
	failing := &mockWatcher{name: "broken", startErr: testutil.ErrMockWatcher}
	wd, _, _, _ := newTestWatchdog([]domain.Watcher{running, failing})

	wd.CheckHealth(ctx)

	status := wd.Status()
	assert.False(t, status.WatchersHealthy)
	assert.Equal(t, 1, status.RestartCounts["broken"])
	assert.Equal(t, testutil.ErrMockWatcher.Error(), status.LastErrors["broken"])
	require.Len(t, status.Watchers, 2)
	assert.Equal(t, "healthy", status.Watchers[0].Name)
	assert.Equal(t, 7, status.Watchers[0].ItemsProcessed)
}

// TestWatchdogLifecycle tests the background loop.
func TestWatchdogLifecycle(t *testing.T) {
	watcher := &mockWatcher{name: "inbox", running: true}
	wd, _, _, _ := newTestWatchdog([]domain.Watcher{watcher}, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, wd.Start(ctx))
	assert.True(t, wd.Status().IsRunning)

	cancel()
	wd.Wait()
	assert.False(t, wd.Status().IsRunning)
}
