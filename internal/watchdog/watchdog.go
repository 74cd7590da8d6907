// Package watchdog supervises watchers: it restarts failed or stalled
// watchers with exponential backoff and escalates to a human alert
// record once the restart budget is spent.
//
// Import rules:
//   - CAN import: internal/audit, internal/clock, internal/constants,
//     internal/domain, internal/vault
//   - MUST NOT import: internal/workflow, internal/orchestrator
package watchdog

import (
	"context"
	"fmt"
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

// SleepFunc pauses for the backoff duration, honoring cancellation.
// Injected so tests never sleep for real.
type SleepFunc func(ctx context.Context, d time.Duration)

// defaultSleep is the production sleeper.
func defaultSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// RestartEvent is one entry in the bounded restart/alert history.
type RestartEvent struct {
	Watcher   string    `json:"watcher"`
	Attempt   int       `json:"attempt"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Status is a point-in-time watchdog snapshot.
type Status struct {
	IsRunning           bool                   `json:"is_running"`
	HealthCheckInterval time.Duration          `json:"health_check_interval"`
	MaxRestartAttempts  int                    `json:"max_restart_attempts"`
	RestartCounts       map[string]int         `json:"restart_counts"`
	LastErrors          map[string]string      `json:"last_errors"`
	RestartHistory      []RestartEvent         `json:"restart_history"`
	WatchersHealthy     bool                   `json:"watchers_healthy"`
	Watchers            []domain.WatcherStatus `json:"watchers"`
}

// Watchdog monitors watcher health on an interval.
type Watchdog struct {
	watchers    []domain.Watcher
	store       vault.Store
	sink        audit.Sink
	clk         clock.Clock
	sleep       SleepFunc
	interval    time.Duration
	staleness   time.Duration
	maxAttempts int

	mu            sync.Mutex
	running       bool
	done          chan struct{}
	restartCounts map[string]int
	lastErrors    map[string]string
	history       []RestartEvent
	alerted       map[string]bool
}

// Option tunes a Watchdog.
type Option func(*Watchdog)

// WithSleep replaces the backoff sleeper.
func WithSleep(sleep SleepFunc) Option {
	return func(w *Watchdog) { w.sleep = sleep }
}

// WithInterval sets the health check interval.
func WithInterval(d time.Duration) Option {
	return func(w *Watchdog) { w.interval = d }
}

// WithStaleness sets the staleness threshold.
func WithStaleness(d time.Duration) Option {
	return func(w *Watchdog) { w.staleness = d }
}

// WithMaxAttempts sets the per-watcher restart budget.
func WithMaxAttempts(n int) Option {
	return func(w *Watchdog) { w.maxAttempts = n }
}

// NewWatchdog creates a watchdog over the given watchers. Alerts are
// written through the store into Pending_Approval.
func NewWatchdog(watchers []domain.Watcher, store vault.Store, sink audit.Sink, clk clock.Clock, opts ...Option) *Watchdog {
	w := &Watchdog{
		watchers:      watchers,
		store:         store,
		sink:          sink,
		clk:           clk,
		sleep:         defaultSleep,
		interval:      constants.DefaultHealthCheckInterval,
		staleness:     constants.StalenessThreshold,
		maxAttempts:   constants.MaxRestartAttempts,
		restartCounts: make(map[string]int),
		lastErrors:    make(map[string]string),
		alerted:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the monitor loop. It returns immediately; the loop
// exits when ctx is cancelled.
func (w *Watchdog) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(ctx)
	zerolog.Ctx(ctx).Info().Dur("interval", w.interval).Msg("watchdog started")
	return nil
}

// Wait blocks until the monitor loop has exited.
func (w *Watchdog) Wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (w *Watchdog) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			close(w.done)
			w.mu.Unlock()
			zerolog.Ctx(ctx).Info().Msg("watchdog stopped")
			return
		case <-ticker.C:
			w.CheckHealth(ctx)
		}
	}
}

// CheckHealth runs one health pass over all watchers. Exported so tests
// and the orchestrator can drive checks deterministically.
func (w *Watchdog) CheckHealth(ctx context.Context) {
	logger := zerolog.Ctx(ctx).With().Str("component", "watchdog").Logger()

	for _, watcher := range w.watchers {
		name := watcher.Name()

		if !watcher.IsRunning() {
			logger.Warn().Str("watcher", name).Msg("watcher is not running")
			w.restartWatcher(ctx, watcher)
			continue
		}

		last := watcher.LastCheck()
		if !last.IsZero() && w.clk.Now().Sub(last) > w.staleness {
			logger.Warn().
				Str("watcher", name).
				Time("last_check", last).
				Msg("watcher is stale")
			w.restartWatcher(ctx, watcher)
		}
	}
}

// restartWatcher restarts one watcher with exponential backoff
// (1s, 2s, 4s... capped at 60s). Once the restart budget is exceeded a
// single alert record is raised and no further restarts are attempted
// until the watcher recovers.
func (w *Watchdog) restartWatcher(ctx context.Context, watcher domain.Watcher) {
	name := watcher.Name()
	logger := zerolog.Ctx(ctx).With().Str("component", "watchdog").Str("watcher", name).Logger()

	w.mu.Lock()
	count := w.restartCounts[name]
	alreadyAlerted := w.alerted[name]
	w.mu.Unlock()

	if count >= w.maxAttempts {
		if !alreadyAlerted {
			logger.Error().Int("attempts", count).Msg("restart budget exceeded; alerting human")
			w.alertHuman(ctx, watcher, fmt.Sprintf("Failed after %d restart attempts", count))
			w.mu.Lock()
			w.alerted[name] = true
			w.mu.Unlock()
		}
		return
	}

	backoff := backoffFor(count)
	logger.Info().
		Int("attempt", count+1).
		Int("max_attempts", w.maxAttempts).
		Dur("backoff", backoff).
		Msg("restarting watcher")

	w.sleep(ctx, backoff)
	if ctx.Err() != nil {
		return
	}

	stopErr := watcher.Stop()
	startErr := watcher.Start(ctx)
	err := startErr
	if err == nil {
		err = stopErr
	}

	now := w.clk.Now()
	event := RestartEvent{
		Watcher:   name,
		Attempt:   count + 1,
		Timestamp: now,
		Success:   err == nil,
	}

	w.mu.Lock()
	w.restartCounts[name] = count + 1
	if err != nil {
		event.Error = err.Error()
		w.lastErrors[name] = err.Error()
	} else if watcher.IsRunning() {
		// Healthy again: reset the budget and re-arm alerting.
		w.restartCounts[name] = 0
		delete(w.alerted, name)
	}
	w.history = append(w.history, event)
	if len(w.history) > constants.RestartHistoryLimit {
		w.history = w.history[len(w.history)-constants.RestartHistoryLimit:]
	}
	w.mu.Unlock()

	result := "success"
	if err != nil {
		result = "failure"
		logger.Error().Err(err).Msg("watcher restart failed")
	} else {
		logger.Info().Msg("watcher restarted")
	}

	w.sink.Record(audit.Event{
		Time:   now,
		Type:   audit.EventWatchdogRestart,
		Task:   name,
		Detail: result,
		Fields: map[string]any{
			"attempt": count + 1,
			"backoff": backoff.String(),
		},
	})
}

// alertHuman writes an alert record into Pending_Approval so the
// failure shows up in the same review queue as pending tasks.
func (w *Watchdog) alertHuman(ctx context.Context, watcher domain.Watcher, reason string) {
	logger := zerolog.Ctx(ctx).With().Str("component", "watchdog").Logger()
	name := watcher.Name()
	now := w.clk.Now()

	w.mu.Lock()
	count := w.restartCounts[name]
	lastErr := w.lastErrors[name]
	w.mu.Unlock()
	if lastErr == "" {
		lastErr = "Unknown"
	}

	recordName := fmt.Sprintf("%s_ALERT_%s%s",
		now.Format("20060102_150405"), strings.ReplaceAll(name, " ", "_"), constants.RecordExt)

	record := &domain.Task{
		Name:     recordName,
		Title:    fmt.Sprintf("SYSTEM ALERT: %s Failed", name),
		Source:   "Watchdog Monitor",
		Priority: constants.PriorityHigh,
		Type:     "system_alert",
		Created:  now,
		Body: fmt.Sprintf("# SYSTEM ALERT: %s Failed\n\n## Details\n\n- **Watcher**: %s\n- **Error**: %s\n- **Time**: %s\n- **Restart Attempts**: %d\n- **Max Attempts**: %d\n\n## Action Required\n\nThe %s has failed and could not be automatically restarted.\n\n1. Check the system logs for detailed error information\n2. Verify the watcher's configuration and dependencies\n3. Restart the system manually if needed\n\n## Last Error\n\n```\n%s\n```\n",
			name, name, reason, now.Format("2006-01-02 15:04:05"), count, w.maxAttempts, name, lastErr),
	}

	data, err := vault.EncodeTask(record)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode alert record")
		return
	}
	if err := w.store.Create(ctx, vault.PendingApproval, recordName, data); err != nil {
		logger.Error().Err(err).Msg("failed to write alert record")
		return
	}
	logger.Info().Str("alert", recordName).Msg("alert created")

	w.sink.Record(audit.Event{
		Time:   now,
		Type:   audit.EventWatchdogAlert,
		Task:   name,
		Detail: reason,
		Fields: map[string]any{"alert": recordName},
	})
}

// Status returns a snapshot including per-watcher health.
func (w *Watchdog) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	counts := make(map[string]int, len(w.restartCounts))
	for k, v := range w.restartCounts {
		counts[k] = v
	}
	errs := make(map[string]string, len(w.lastErrors))
	for k, v := range w.lastErrors {
		errs[k] = v
	}
	history := make([]RestartEvent, len(w.history))
	copy(history, w.history)

	healthy := true
	watchers := make([]domain.WatcherStatus, 0, len(w.watchers))
	for _, watcher := range w.watchers {
		if !watcher.IsRunning() {
			healthy = false
		}
		watchers = append(watchers, domain.WatcherStatus{
			Name:           watcher.Name(),
			IsRunning:      watcher.IsRunning(),
			LastCheck:      watcher.LastCheck(),
			ItemsProcessed: watcher.ItemsProcessed(),
		})
	}

	return Status{
		IsRunning:           w.running,
		HealthCheckInterval: w.interval,
		MaxRestartAttempts:  w.maxAttempts,
		RestartCounts:       counts,
		LastErrors:          errs,
		RestartHistory:      history,
		WatchersHealthy:     healthy,
		Watchers:            watchers,
	}
}

// backoffFor returns the exponential backoff for the nth restart,
// capped at the configured maximum.
func backoffFor(attempt int) time.Duration {
	backoff := time.Second << attempt
	if backoff > constants.RestartBackoffCap || backoff <= 0 {
		backoff = constants.RestartBackoffCap
	}
	return backoff
}
