// Package orchestrator is the composition root: it constructs the vault
// store, classifier, processor, approval handler, multi-step runner,
// scheduler, watchers, and watchdog from configuration, and runs them as
// supervised background loops.
//
// Vault writes follow a single-writer discipline: the main tick runs the
// processor and the approval handler sequentially, so no two engine
// components ever race on the same record.
//
// Import rules:
//   - CAN import: every other internal package except internal/cli
//   - MUST NOT import: internal/cli
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aide-sh/aide/internal/audit"
	"github.com/aide-sh/aide/internal/briefing"
	"github.com/aide-sh/aide/internal/clock"
	"github.com/aide-sh/aide/internal/config"
	"github.com/aide-sh/aide/internal/constants"
	"github.com/aide-sh/aide/internal/domain"
	aideerrors "github.com/aide-sh/aide/internal/errors"
	"github.com/aide-sh/aide/internal/hitl"
	"github.com/aide-sh/aide/internal/multistep"
	"github.com/aide-sh/aide/internal/schedule"
	"github.com/aide-sh/aide/internal/vault"
	"github.com/aide-sh/aide/internal/watchdog"
	"github.com/aide-sh/aide/internal/watcher"
	"github.com/aide-sh/aide/internal/workflow"
)

// briefingInterval is how often the scheduler regenerates the briefing.
const briefingInterval = 7 * 24 * time.Hour

// Status is a point-in-time snapshot of the whole engine.
type Status struct {
	IsRunning bool                     `json:"is_running"`
	DryRun    bool                     `json:"dry_run"`
	VaultPath string                   `json:"vault_path,omitempty"`
	Pending   workflow.PendingSummary  `json:"pending"`
	MultiStep []multistep.Summary      `json:"multi_step,omitempty"`
	Scheduler schedule.Status          `json:"scheduler"`
	Watchdog  watchdog.Status          `json:"watchdog"`
}

// Orchestrator owns every engine component and their lifecycles.
type Orchestrator struct {
	cfg   *config.Config
	store vault.Store
	sink  audit.Sink
	clk   clock.Clock

	processor *workflow.Processor
	handler   *workflow.ApprovalHandler
	runner    *multistep.Runner
	scheduler *schedule.Scheduler
	watchers  []domain.Watcher
	watchdog  *watchdog.Watchdog
	briefing  *briefing.Generator

	executors []domain.Executor
	fileSink  *audit.FileSink
	ownVault  bool
	lock      *vault.Lock

	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
}

// Option customizes construction, mainly for tests.
type Option func(*Orchestrator)

// WithStore replaces the file-backed vault store.
func WithStore(store vault.Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithSink replaces the file-backed audit sink.
func WithSink(sink audit.Sink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(o *Orchestrator) { o.clk = clk }
}

// WithExecutors registers external action executors for approved tasks.
func WithExecutors(executors ...domain.Executor) Option {
	return func(o *Orchestrator) { o.executors = executors }
}

// WithWatchers replaces the default inbox watcher.
func WithWatchers(watchers ...domain.Watcher) Option {
	return func(o *Orchestrator) { o.watchers = watchers }
}

// New builds an orchestrator from configuration. The vault directory
// tree is created if missing.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{cfg: cfg, clk: clock.RealClock{}}
	for _, opt := range opts {
		opt(o)
	}

	if o.store == nil {
		store, err := vault.NewFileStore(cfg.Vault.Path)
		if err != nil {
			return nil, fmt.Errorf("open vault: %w", err)
		}
		if err := store.EnsureLocations(); err != nil {
			return nil, fmt.Errorf("prepare vault: %w", err)
		}
		o.store = store
		o.ownVault = true
	}
	if o.sink == nil {
		o.fileSink = audit.NewFileSink(filepath.Join(cfg.Vault.Path, constants.LogsDir))
		o.sink = o.fileSink
	}

	classifier := hitl.NewClassifier(cfg.Workflow.KnownContacts, cfg.Workflow.ApprovalThreshold)
	o.runner = multistep.NewRunner(o.store, o.sink, o.clk)
	o.processor = workflow.NewProcessor(o.store, classifier, o.sink, o.clk)
	o.handler = workflow.NewApprovalHandler(o.store, o.sink, o.clk, o.executors, o.runner, cfg.Workflow.DryRun)
	o.briefing = briefing.NewGenerator(o.store, o.sink, o.clk, o.healthSnapshot)

	if o.watchers == nil {
		o.watchers = []domain.Watcher{
			watcher.NewInboxWatcher(o.store, o.sink, o.clk, cfg.Intervals.Watcher),
		}
	}
	o.watchdog = watchdog.NewWatchdog(o.watchers, o.store, o.sink, o.clk,
		watchdog.WithInterval(cfg.Intervals.HealthCheck),
		watchdog.WithStaleness(cfg.Watchdog.Staleness),
		watchdog.WithMaxAttempts(cfg.Watchdog.MaxRestartAttempts),
	)

	o.scheduler = schedule.NewScheduler(o.clk)
	if err := o.scheduler.AddJob("process", o.tick, cfg.Intervals.Process, true); err != nil {
		return nil, err
	}
	if err := o.scheduler.AddJob("briefing", o.generateBriefing, briefingInterval, false); err != nil {
		return nil, err
	}

	return o, nil
}

// Start resumes persisted multi-step state and launches the background
// loops. It returns once everything is running; loops exit when Stop is
// called or ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.running {
		return nil
	}
	logger := zerolog.Ctx(ctx).With().Str("component", "orchestrator").Logger()

	// Only one engine may write a file-backed vault at a time.
	if o.ownVault {
		lock, err := vault.AcquireLock(o.cfg.Vault.Path)
		if err != nil {
			return err
		}
		o.lock = lock
	}

	resumed, err := o.runner.ResumeAll(ctx)
	if err != nil {
		_ = o.lock.Release()
		return fmt.Errorf("resume multi-step tasks: %w", err)
	}
	if resumed > 0 {
		logger.Info().Int("resumed", resumed).Msg("multi-step tasks resumed")
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	o.cancel = cancel
	o.group = group

	for _, w := range o.watchers {
		w := w
		group.Go(func() error {
			if err := w.Start(groupCtx); err != nil {
				return fmt.Errorf("start %s: %w", w.Name(), err)
			}
			<-groupCtx.Done()
			return w.Stop()
		})
	}
	group.Go(func() error {
		if err := o.scheduler.Start(groupCtx); err != nil {
			return err
		}
		o.scheduler.Wait()
		return nil
	})
	group.Go(func() error {
		if err := o.watchdog.Start(groupCtx); err != nil {
			return err
		}
		o.watchdog.Wait()
		return nil
	})

	o.running = true
	logger.Info().
		Str("vault", o.cfg.Vault.Path).
		Bool("dry_run", o.cfg.Workflow.DryRun).
		Msg("orchestrator started")
	o.sink.Record(audit.Event{
		Time:   o.clk.Now(),
		Type:   audit.EventSystemStarted,
		Detail: o.cfg.Vault.Path,
	})
	return nil
}

// Stop cancels the background loops and waits for them to exit, bounded
// by the shutdown timeout.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if !o.running {
		return nil
	}
	logger := zerolog.Ctx(ctx).With().Str("component", "orchestrator").Logger()

	o.cancel()

	joined := make(chan error, 1)
	go func() { joined <- o.group.Wait() }()

	timer := time.NewTimer(constants.ShutdownTimeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-joined:
	case <-timer.C:
		err = aideerrors.ErrShutdownTimeout
	}

	o.running = false
	o.sink.Record(audit.Event{
		Time: o.clk.Now(),
		Type: audit.EventSystemStopped,
	})
	if o.fileSink != nil {
		if closeErr := o.fileSink.Close(); err == nil {
			err = closeErr
		}
	}
	if releaseErr := o.lock.Release(); err == nil {
		err = releaseErr
	}

	if err != nil {
		logger.Error().Err(err).Msg("orchestrator stopped uncleanly")
		return err
	}
	logger.Info().Msg("orchestrator stopped")
	return nil
}

// Tick runs one full processing pass: new tasks first, then approvals.
// Exported for the CLI's one-shot mode and tests; the scheduler drives
// the same path in the background.
func (o *Orchestrator) Tick(ctx context.Context) (processed, approved int, err error) {
	processed, err = o.processor.ProcessAll(ctx)
	if err != nil {
		return processed, 0, err
	}
	approved, err = o.handler.ProcessApprovals(ctx)
	return processed, approved, err
}

// tick adapts Tick to the scheduler's job signature.
func (o *Orchestrator) tick(ctx context.Context) error {
	_, _, err := o.Tick(ctx)
	return err
}

// generateBriefing is the weekly scheduler job.
func (o *Orchestrator) generateBriefing(ctx context.Context) error {
	_, err := o.briefing.Generate(ctx)
	return err
}

// GenerateBriefing builds a briefing on demand and returns its record
// name.
func (o *Orchestrator) GenerateBriefing(ctx context.Context) (string, error) {
	return o.briefing.Generate(ctx)
}

// Approve clears a pending task for execution.
func (o *Orchestrator) Approve(ctx context.Context, name string) error {
	return o.handler.Approve(ctx, name)
}

// Reject declines a pending task with a reason and archives it.
func (o *Orchestrator) Reject(ctx context.Context, name, reason string) error {
	return o.handler.Reject(ctx, name, reason)
}

// Runner exposes the multi-step runner for external task creation.
func (o *Orchestrator) Runner() *multistep.Runner {
	return o.runner
}

// Status assembles a snapshot across all components.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	pending, err := o.handler.Summary(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		IsRunning: o.running,
		DryRun:    o.cfg.Workflow.DryRun,
		VaultPath: o.cfg.Vault.Path,
		Pending:   pending,
		MultiStep: o.runner.ActiveTasks(),
		Scheduler: o.scheduler.Status(),
		Watchdog:  o.watchdog.Status(),
	}, nil
}

// healthSnapshot adapts watchdog status for the briefing generator.
func (o *Orchestrator) healthSnapshot() briefing.Health {
	status := o.watchdog.Status()
	return briefing.Health{
		Watchers:        status.Watchers,
		WatchersHealthy: status.WatchersHealthy,
		RestartCounts:   status.RestartCounts,
	}
}
