// Package domain provides shared domain types for the aide workflow engine.
// These types are used across all internal packages to ensure consistent
// data structures.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, internal/errors, standard library
//   - MUST NOT import: any other internal packages
package domain

import (
	"time"

	"github.com/aide-sh/aide/internal/constants"
)

// Task represents a single unit of work flowing through the vault state
// machine. A task's state is the vault location that holds its record, not
// a field on the struct; Name identifies the record within that location.
//
// The serialized form is a structured YAML header followed by a free-text
// body. Any header field written by the engine round-trips through
// vault.ParseRecord.
type Task struct {
	// Name is the record filename within its vault location, including
	// extension. Generated at creation time from timestamp + slug; stable
	// for the task's lifetime until archival renames it into Done.
	Name string `yaml:"-"`

	// Title is the human-readable summary.
	Title string `yaml:"title"`

	// Source identifies the task's origin (e.g. "Filesystem Watcher",
	// "Gmail", "Multi-Step Task: ms_...").
	Source string `yaml:"source,omitempty"`

	// Priority is the declared urgency: high, normal, or low.
	Priority constants.Priority `yaml:"priority,omitempty"`

	// Type is a free-form tag used to route the task to an external
	// executor (e.g. "email_send", "general").
	Type string `yaml:"type,omitempty"`

	// Created is when the task record was created.
	Created time.Time `yaml:"created"`

	// Metadata holds arbitrary header fields not covered by the typed
	// fields above. Round-trips through the record codec.
	Metadata map[string]any `yaml:"-"`

	// Body is the free-text content following the header.
	Body string `yaml:"-"`
}

// MultiStepID returns the parent multi-step task ID if this task was
// created by the multi-step runner, or "" for standalone tasks.
func (t *Task) MultiStepID() string {
	if t.Metadata == nil {
		return ""
	}
	id, _ := t.Metadata[constants.MetaMultiStepID].(string)
	return id
}

// StepIndex returns the step index for a runner-created task, or -1.
func (t *Task) StepIndex() int {
	if t.Metadata == nil {
		return -1
	}
	switch v := t.Metadata[constants.MetaStepIndex].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return -1
	}
}

// Plan is the derived artifact pairing a risk decision with a task. It is
// co-located with the task it documents; plan data is never the source of
// truth for state — the task's location is.
type Plan struct {
	// Name is the plan record filename.
	Name string

	// TaskName is the name of the task this plan documents.
	TaskName string

	// Created is when the plan was generated.
	Created time.Time

	// ActionType is the detected action category.
	ActionType string

	// RiskLevel is the classifier's severity: low, medium, or high.
	RiskLevel string

	// RequiresApproval mirrors the classifier decision.
	RequiresApproval bool

	// Reasons are the human-readable classification reasons, in order.
	Reasons []string

	// SuggestedAction is the classifier's free-text next action.
	SuggestedAction string
}
