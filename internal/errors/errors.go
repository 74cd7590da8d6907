// Package errors provides centralized error handling for aide.
//
// This package defines sentinel errors used for programmatic error
// categorization throughout the application. All error types can be
// checked using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for error categorization.
// These allow callers to check error types with errors.Is().
var (
	// ErrTaskNotFound indicates the requested task record does not exist
	// in the expected vault location.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists indicates an attempt to create a task record whose
	// name is already taken in the target location.
	ErrTaskExists = errors.New("task already exists")

	// ErrDestinationExists indicates a state transition would overwrite an
	// existing record. Transitions fail loudly rather than overwrite.
	ErrDestinationExists = errors.New("destination record already exists")

	// ErrUnknownLocation indicates a vault location name that is not part
	// of the state-location contract.
	ErrUnknownLocation = errors.New("unknown vault location")

	// ErrEmptyValue indicates that a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrPathTraversal indicates a record name attempted to escape its
	// vault location.
	ErrPathTraversal = errors.New("record name must not contain path separators")

	// ErrMultiStepNotFound indicates the requested multi-step task is not
	// in the active set.
	ErrMultiStepNotFound = errors.New("multi-step task not found")

	// ErrNoCurrentStep indicates an advance was requested but the task has
	// no step at its current index.
	ErrNoCurrentStep = errors.New("no current step")

	// ErrTaskFinished indicates an operation on a multi-step task that has
	// already reached a terminal status.
	ErrTaskFinished = errors.New("multi-step task already finished")

	// ErrStepApprovalPending indicates an advance was requested for a step
	// that still awaits approval.
	ErrStepApprovalPending = errors.New("step awaits approval")

	// ErrWatcherStopped indicates an operation on a watcher that is not
	// running.
	ErrWatcherStopped = errors.New("watcher is not running")

	// ErrConfigInvalid indicates a configuration value failed validation.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrSchedulerRunning indicates the scheduler control loop was started
	// twice.
	ErrSchedulerRunning = errors.New("scheduler already running")

	// ErrShutdownTimeout indicates background loops did not exit within
	// the bounded join timeout.
	ErrShutdownTimeout = errors.New("shutdown join timeout")

	// ErrVaultLocked indicates another engine instance holds the vault
	// lock. Only one writer may run against a vault at a time.
	ErrVaultLocked = errors.New("vault is locked by another process")
)
