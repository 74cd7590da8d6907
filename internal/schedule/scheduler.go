// Package schedule implements the engine's interval scheduler.
//
// Jobs run on fixed intervals with no catch-up: after each run, the
// next run is scheduled relative to completion time, so a slow or
// failed run never produces a burst of make-up executions.
//
// Import rules:
//   - CAN import: internal/clock, internal/constants, internal/errors
//   - MUST NOT import: internal/workflow, internal/orchestrator
package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aide-sh/aide/internal/clock"
	"github.com/aide-sh/aide/internal/constants"
	aideerrors "github.com/aide-sh/aide/internal/errors"
)

// JobFunc is a scheduled callback. Errors are counted and logged; they
// never stop the scheduler or affect other jobs.
type JobFunc func(ctx context.Context) error

// JobStatus is a point-in-time snapshot of one scheduled job.
type JobStatus struct {
	Name       string        `json:"name"`
	Interval   time.Duration `json:"interval"`
	LastRun    time.Time     `json:"last_run,omitzero"`
	NextRun    time.Time     `json:"next_run"`
	RunCount   int           `json:"run_count"`
	ErrorCount int           `json:"error_count"`
}

// Status is a snapshot of the whole scheduler.
type Status struct {
	IsRunning bool        `json:"is_running"`
	JobCount  int         `json:"job_count"`
	Jobs      []JobStatus `json:"jobs"`
}

// job is a registered callback with its schedule bookkeeping.
type job struct {
	name       string
	fn         JobFunc
	interval   time.Duration
	lastRun    time.Time
	nextRun    time.Time
	runCount   int
	errorCount int
}

// Scheduler runs registered jobs on their intervals inside a single
// control loop ticking at one-second resolution.
type Scheduler struct {
	clk clock.Clock

	mu      sync.Mutex
	jobs    []*job
	running bool
	done    chan struct{}
}

// NewScheduler creates an empty scheduler.
func NewScheduler(clk clock.Clock) *Scheduler {
	return &Scheduler{clk: clk}
}

// AddJob registers a job. With runImmediately the first run happens on
// the next tick; otherwise the job first fires one interval from now.
// Jobs cannot be added while the scheduler is running.
func (s *Scheduler) AddJob(name string, fn JobFunc, interval time.Duration, runImmediately bool) error {
	if name == "" {
		return fmt.Errorf("job name %w", aideerrors.ErrEmptyValue)
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive, got %s: %w", name, interval, aideerrors.ErrConfigInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("cannot add job %s: %w", name, aideerrors.ErrSchedulerRunning)
	}

	next := s.clk.Now()
	if !runImmediately {
		next = next.Add(interval)
	}
	s.jobs = append(s.jobs, &job{
		name:     name,
		fn:       fn,
		interval: interval,
		nextRun:  next,
	})
	return nil
}

// Start launches the control loop. It returns immediately; the loop
// exits when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return aideerrors.ErrSchedulerRunning
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(ctx)
	zerolog.Ctx(ctx).Info().Msg("scheduler started")
	return nil
}

// Wait blocks until the control loop has exited.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// IsRunning reports whether the control loop is alive.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(constants.SchedulerTickResolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			close(s.done)
			s.mu.Unlock()
			zerolog.Ctx(ctx).Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue runs every job whose next-run time has arrived. Exported so
// tests and the orchestrator's shutdown path can drive the schedule
// deterministically without the wall-clock ticker.
func (s *Scheduler) RunDue(ctx context.Context) int {
	s.mu.Lock()
	now := s.clk.Now()
	var due []*job
	for _, j := range s.jobs {
		if !now.Before(j.nextRun) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		s.runJob(ctx, j)
	}
	return len(due)
}

// runJob executes one job with error isolation and panic recovery, then
// schedules the next run relative to completion.
func (s *Scheduler) runJob(ctx context.Context, j *job) {
	logger := zerolog.Ctx(ctx).With().Str("component", "scheduler").Str("job", j.name).Logger()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v\n%s", r, debug.Stack())
			}
		}()
		return j.fn(ctx)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	j.lastRun = now
	// No catch-up: the next run is one interval after this one finished,
	// regardless of how late or slow this run was.
	j.nextRun = now.Add(j.interval)
	if err != nil {
		j.errorCount++
		logger.Error().Err(err).Msg("scheduled job failed")
		return
	}
	j.runCount++
	logger.Debug().Msg("scheduled job ran")
}

// Status returns a snapshot of all jobs.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, JobStatus{
			Name:       j.name,
			Interval:   j.interval,
			LastRun:    j.lastRun,
			NextRun:    j.nextRun,
			RunCount:   j.runCount,
			ErrorCount: j.errorCount,
		})
	}
	return Status{
		IsRunning: s.running,
		JobCount:  len(s.jobs),
		Jobs:      jobs,
	}
}
