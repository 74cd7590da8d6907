package domain

import (
	"fmt"
	"time"

	"github.com/aide-sh/aide/internal/constants"
)

// MultiStepTask is a compound task composed of ordered steps, persisted
// after every mutation so progress survives process restarts.
//
// Invariants:
//   - CurrentStep is monotonically non-decreasing.
//   - Status is completed iff CurrentStep == len(Steps).
//   - Status is paused iff the step at CurrentStep requires approval that
//     has not yet been granted.
type MultiStepTask struct {
	// ID is the unique identifier. Format: ms_YYYYMMDD_HHMMSS_<suffix>.
	ID string `yaml:"id"`

	// Title is the human-readable summary.
	Title string `yaml:"title"`

	// Steps is the ordered step list.
	Steps []Step `yaml:"steps"`

	// CurrentStep is the zero-based index of the active step.
	CurrentStep int `yaml:"current_step"`

	// Status is the overall task status.
	Status constants.MultiStepStatus `yaml:"status"`

	// CreatedAt is when the task was created.
	CreatedAt time.Time `yaml:"created"`

	// UpdatedAt is when the task was last mutated.
	UpdatedAt time.Time `yaml:"updated"`
}

// Current returns the active step, or nil if CurrentStep is out of range
// (which is the case once the task completes).
func (t *MultiStepTask) Current() *Step {
	if t.CurrentStep < 0 || t.CurrentStep >= len(t.Steps) {
		return nil
	}
	return &t.Steps[t.CurrentStep]
}

// Progress returns a "completed/total" display string.
func (t *MultiStepTask) Progress() string {
	completed := 0
	for _, s := range t.Steps {
		if s.Status == constants.StepCompleted {
			completed++
		}
	}
	return fmt.Sprintf("%d/%d", completed, len(t.Steps))
}

// Step is a single step within a multi-step task.
type Step struct {
	// Name identifies the step (e.g. "draft reply", "send invoice").
	Name string `yaml:"name"`

	// Action is the action-type tag routed to an external executor.
	Action string `yaml:"action"`

	// RequiresApproval pauses the task before this step executes.
	RequiresApproval bool `yaml:"requires_approval"`

	// Status is the step's own state: pending, completed, or failed.
	Status constants.StepStatus `yaml:"status"`

	// Result is the optional payload recorded when the step finished.
	Result map[string]any `yaml:"result,omitempty"`
}

// StepResult carries the outcome of an executed step into Advance.
type StepResult struct {
	// Status is the executor-reported outcome: success, failed, or skipped.
	Status string `yaml:"status"`

	// Message is a human-readable summary.
	Message string `yaml:"message,omitempty"`

	// Data is arbitrary result payload.
	Data map[string]any `yaml:"data,omitempty"`

	// Error holds the failure detail when Status is failed.
	Error string `yaml:"error,omitempty"`
}

// Execution result statuses reported by external executors.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Failed reports whether this result signals an unrecoverable step failure.
func (r *StepResult) Failed() bool {
	return r != nil && r.Status == ResultFailed
}
