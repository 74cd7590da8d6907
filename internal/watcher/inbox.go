// Package watcher implements input-source watchers. Watchers poll an
// external source and capture items as task records in Needs_Action;
// the watchdog supervises their health through the domain.Watcher
// contract.
//
// Import rules:
//   - CAN import: internal/audit, internal/clock, internal/constants,
//     internal/domain, internal/vault
//   - MUST NOT import: internal/workflow, internal/orchestrator
package watcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aide-sh/aide/internal/audit"
	"github.com/aide-sh/aide/internal/clock"
	"github.com/aide-sh/aide/internal/constants"
	"github.com/aide-sh/aide/internal/domain"
	"github.com/aide-sh/aide/internal/vault"
)

// InboxWatcher polls the vault's Inbox location and converts dropped
// files into task records. Humans (or external sync tools) drop raw
// notes into Inbox; the watcher gives each one frontmatter and moves it
// into the pipeline.
type InboxWatcher struct {
	store    vault.Store
	sink     audit.Sink
	clk      clock.Clock
	interval time.Duration

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	lastCheck time.Time
	items     int
}

// NewInboxWatcher creates an inbox watcher polling at the given
// interval.
func NewInboxWatcher(store vault.Store, sink audit.Sink, clk clock.Clock, interval time.Duration) *InboxWatcher {
	if interval <= 0 {
		interval = constants.DefaultWatcherInterval
	}
	return &InboxWatcher{
		store:    store,
		sink:     sink,
		clk:      clk,
		interval: interval,
	}
}

// Name implements domain.Watcher.
func (w *InboxWatcher) Name() string {
	return "inbox watcher"
}

// Start implements domain.Watcher. The polling loop runs until Stop is
// called or ctx is cancelled.
func (w *InboxWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.loop(loopCtx)
	zerolog.Ctx(ctx).Info().Dur("interval", w.interval).Msg("inbox watcher started")
	return nil
}

// Stop implements domain.Watcher.
func (w *InboxWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	cancel()
	<-done
	return nil
}

// IsRunning implements domain.Watcher.
func (w *InboxWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// LastCheck implements domain.Watcher.
func (w *InboxWatcher) LastCheck() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastCheck
}

// ItemsProcessed implements domain.Watcher.
func (w *InboxWatcher) ItemsProcessed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.items
}

func (w *InboxWatcher) loop(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.running = false
		close(w.done)
		w.mu.Unlock()
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// First poll happens immediately so intake is not delayed by a full
	// interval after startup.
	w.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll runs one intake pass: every file in Inbox becomes a task record
// in Needs_Action. Exported so tests can drive intake deterministically.
func (w *InboxWatcher) Poll(ctx context.Context) int {
	logger := zerolog.Ctx(ctx).With().Str("component", "inbox_watcher").Logger()

	w.mu.Lock()
	w.lastCheck = w.clk.Now()
	w.mu.Unlock()

	names, err := w.store.List(ctx, vault.Inbox, "")
	if err != nil {
		logger.Error().Err(err).Msg("inbox scan failed")
		return 0
	}

	captured := 0
	for _, name := range names {
		if err := w.capture(ctx, name); err != nil {
			logger.Error().Err(err).Str("item", name).Msg("inbox capture failed")
			continue
		}
		captured++
	}

	if captured > 0 {
		w.mu.Lock()
		w.items += captured
		w.mu.Unlock()
		logger.Info().Int("captured", captured).Msg("inbox items captured")
	}
	return captured
}

// capture converts one inbox item into a task record. The original is
// removed only after the record is safely created, so a crash between
// the two leaves a duplicate rather than a loss.
func (w *InboxWatcher) capture(ctx context.Context, name string) error {
	data, err := w.store.Read(ctx, vault.Inbox, name)
	if err != nil {
		return err
	}

	now := w.clk.Now()
	title := titleFromName(name)
	record := &domain.Task{
		Title:    title,
		Source:   "Inbox Watcher",
		Priority: constants.PriorityNormal,
		Created:  now,
		Body:     strings.TrimSpace(string(data)),
	}
	recordName := vault.GenerateName(now, title)
	record.Name = recordName

	encoded, err := vault.EncodeTask(record)
	if err != nil {
		return err
	}
	if err := w.store.Create(ctx, vault.NeedsAction, recordName, encoded); err != nil {
		return err
	}
	if err := w.store.Remove(ctx, vault.Inbox, name); err != nil {
		return err
	}

	w.sink.Record(audit.Event{
		Time:   now,
		Type:   audit.EventInboxCaptured,
		Task:   recordName,
		Detail: name,
	})
	return nil
}

// titleFromName derives a human title from an inbox file name.
func titleFromName(name string) string {
	title := name
	if idx := strings.LastIndex(title, "."); idx > 0 {
		title = title[:idx]
	}
	title = strings.ReplaceAll(title, "_", " ")
	title = strings.ReplaceAll(title, "-", " ")
	return strings.TrimSpace(title)
}

// Ensure InboxWatcher implements the watcher contract.
var _ domain.Watcher = (*InboxWatcher)(nil)
