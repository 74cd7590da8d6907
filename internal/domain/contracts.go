package domain

import (
	"context"
	"time"
)

// Watcher is the minimal health contract an input source exposes to the
// watchdog. Watchers run their own polling loop and are responsible for
// creating task records in the intake point; the engine only reads health
// and drives start/stop.
type Watcher interface {
	// Name identifies the watcher in logs, audit events, and alerts.
	Name() string

	// Start launches the watcher's polling loop. It returns once the loop
	// is running; the loop itself must observe ctx for shutdown.
	Start(ctx context.Context) error

	// Stop terminates the polling loop and blocks until it has exited.
	Stop() error

	// IsRunning reports whether the polling loop is alive.
	IsRunning() bool

	// LastCheck is the time of the most recent poll, zero if never polled.
	LastCheck() time.Time

	// ItemsProcessed is the cumulative count of intake items handled.
	ItemsProcessed() int
}

// WatcherStatus is a point-in-time health snapshot for status reporting.
type WatcherStatus struct {
	Name           string    `json:"name"`
	IsRunning      bool      `json:"is_running"`
	LastCheck      time.Time `json:"last_check,omitzero"`
	ItemsProcessed int       `json:"items_processed"`
}

// ExecutionResult is what an external executor reports back for an
// approved task. The engine does not await or retry on the executor's
// behalf; this type only crosses the callback boundary.
type ExecutionResult struct {
	Status  string         `json:"status"` // success | failed | skipped
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Executor is the external action-executor contract. Concrete executors
// (email, social, invoicing) live outside the engine; the approval
// handler's callback is the sole integration point.
type Executor interface {
	// CanHandle reports whether this executor accepts the task.
	CanHandle(task *Task) bool

	// Execute performs the task's action.
	Execute(ctx context.Context, task *Task) (*ExecutionResult, error)
}
