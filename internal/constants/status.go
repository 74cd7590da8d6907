package constants

// MultiStepStatus represents the state of a multi-step task.
// Status values use snake_case for serialization compatibility.
type MultiStepStatus string

// Multi-step task status constants. The state machine:
//
//	Pending → InProgress
//	InProgress ⇄ Paused
//	InProgress → Completed, Failed
//	Paused → InProgress, Failed
const (
	// MultiStepPending indicates a task has been created but no step has
	// completed yet.
	MultiStepPending MultiStepStatus = "pending"

	// MultiStepInProgress indicates the task is actively advancing.
	MultiStepInProgress MultiStepStatus = "in_progress"

	// MultiStepPaused indicates the current step requires approval that
	// has not yet been granted.
	MultiStepPaused MultiStepStatus = "paused"

	// MultiStepCompleted indicates every step finished. Terminal.
	MultiStepCompleted MultiStepStatus = "completed"

	// MultiStepFailed indicates a step reported an unrecoverable failure.
	// Terminal.
	MultiStepFailed MultiStepStatus = "failed"
)

// String implements fmt.Stringer for convenient logging.
func (s MultiStepStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are allowed.
func (s MultiStepStatus) IsTerminal() bool {
	return s == MultiStepCompleted || s == MultiStepFailed
}

// StepStatus represents the state of a single step in a multi-step task.
type StepStatus string

// Step status constants.
const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// String implements fmt.Stringer for convenient logging.
func (s StepStatus) String() string {
	return string(s)
}

// Priority is the declared urgency of a task record.
type Priority string

// Task priority constants.
const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// String implements fmt.Stringer for convenient logging.
func (p Priority) String() string {
	return string(p)
}
