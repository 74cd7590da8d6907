package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aide-sh/aide/internal/audit"
	"github.com/aide-sh/aide/internal/clock"
	"github.com/aide-sh/aide/internal/constants"
	"github.com/aide-sh/aide/internal/vault"
)

func newTestWatcher() (*InboxWatcher, *vault.MemStore, *audit.MemSink) {
	store := vault.NewMemStore()
	sink := audit.NewMemSink()
	clk := clock.NewMock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
	return NewInboxWatcher(store, sink, clk, time.Minute), store, sink
}

// TestPoll tests the intake pass.
func TestPoll(t *testing.T) {
	ctx := context.Background()

	t.Run("captures inbox items as task records", func(t *testing.T) {
		w, store, sink := newTestWatcher()
		require.NoError(t, store.Put(ctx, vault.Inbox, "meeting-notes.txt", []byte("Discuss Q1 roadmap\n")))

		captured := w.Poll(ctx)
		assert.Equal(t, 1, captured)

		// The original is gone; a record with frontmatter took its place.
		inbox, err := store.List(ctx, vault.Inbox, "")
		require.NoError(t, err)
		assert.Empty(t, inbox)

		names, err := store.List(ctx, vault.NeedsAction, "")
		require.NoError(t, err)
		require.Len(t, names, 1)
		assert.Equal(t, "20260115_090000_meeting_notes.md", names[0])

		data, err := store.Read(ctx, vault.NeedsAction, names[0])
		require.NoError(t, err)
		task := vault.ParseTask(names[0], data)
		assert.Equal(t, "meeting notes", task.Title)
		assert.Equal(t, "Inbox Watcher", task.Source)
		assert.Equal(t, constants.PriorityNormal, task.Priority)
		assert.Equal(t, "Discuss Q1 roadmap", task.Body)

		assert.Equal(t, 1, sink.CountOf(audit.EventInboxCaptured))
		assert.Equal(t, 1, w.ItemsProcessed())
	})

	t.Run("empty inbox is a no-op", func(t *testing.T) {
		w, _, sink := newTestWatcher()

		assert.Zero(t, w.Poll(ctx))
		assert.Empty(t, sink.Events())
		assert.Zero(t, w.ItemsProcessed())
	})

	t.Run("captures multiple items in one pass", func(t *testing.T) {
		w, store, _ := newTestWatcher()
		require.NoError(t, store.Put(ctx, vault.Inbox, "one.md", []byte("first")))
		require.NoError(t, store.Put(ctx, vault.Inbox, "two.md", []byte("second")))

		assert.Equal(t, 2, w.Poll(ctx))

		names, err := store.List(ctx, vault.NeedsAction, "")
		require.NoError(t, err)
		assert.Len(t, names, 2)
	})

	t.Run("records last check time", func(t *testing.T) {
		w, _, _ := newTestWatcher()
		require.True(t, w.LastCheck().IsZero())

		w.Poll(ctx)
		assert.Equal(t, time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC), w.LastCheck())
	})
}

// TestTitleFromName tests title derivation from file names.
func TestTitleFromName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"meeting-notes.txt", "meeting notes"},
		{"pay_invoice.md", "pay invoice"},
		{"no-extension", "no extension"},
		{".hidden", ".hidden"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, titleFromName(tc.name))
		})
	}
}

// TestInboxWatcherLifecycle tests the polling loop contract.
func TestInboxWatcherLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("start and stop", func(t *testing.T) {
		store := vault.NewMemStore()
		sink := audit.NewMemSink()
		clk := clock.NewMock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
		w := NewInboxWatcher(store, sink, clk, time.Hour)

		require.NoError(t, store.Put(ctx, vault.Inbox, "note.md", []byte("hello")))

		require.NoError(t, w.Start(ctx))
		assert.Equal(t, "inbox watcher", w.Name())

		// The loop polls once on startup before waiting on the ticker.
		require.Eventually(t, func() bool {
			return w.ItemsProcessed() == 1
		}, time.Second, 5*time.Millisecond)
		assert.True(t, w.IsRunning())

		require.NoError(t, w.Stop())
		assert.False(t, w.IsRunning())
	})

	t.Run("double start is a no-op", func(t *testing.T) {
		store := vault.NewMemStore()
		clk := clock.NewMock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
		w := NewInboxWatcher(store, audit.NopSink{}, clk, time.Hour)

		require.NoError(t, w.Start(ctx))
		require.NoError(t, w.Start(ctx))
		require.NoError(t, w.Stop())
	})

	t.Run("stop before start is a no-op", func(t *testing.T) {
		store := vault.NewMemStore()
		clk := clock.NewMock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
		w := NewInboxWatcher(store, audit.NopSink{}, clk, time.Hour)

		require.NoError(t, w.Stop())
	})
}
