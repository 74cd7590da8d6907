// Package constants defines shared constants for the aide workflow engine.
//
// Import rules:
//   - CAN import: standard library only
//   - MUST NOT import: any other internal packages
package constants

import "time"

// AideHome is the default aide home directory name (under $HOME).
const AideHome = ".aide"

// Vault directory names. The vault is the task directory tree acting as a
// durable state machine: a task's state is the directory that holds it.
const (
	// InboxDir is the intake point. Watchers and humans drop raw files here.
	InboxDir = "Inbox"

	// NeedsActionDir holds new tasks awaiting classification.
	NeedsActionDir = "Needs_Action"

	// PlansDir is an overlay holding plan artifacts. It is not a task state.
	PlansDir = "Plans"

	// PendingApprovalDir holds tasks awaiting human review.
	PendingApprovalDir = "Pending_Approval"

	// ApprovedDir holds tasks cleared for execution (by a human or auto).
	ApprovedDir = "Approved"

	// DoneDir is the append-only terminal archive. Entries are never
	// deleted or renamed after arrival.
	DoneDir = "Done"

	// DraftsDir is a scratch area for executor-authored review artifacts.
	DraftsDir = "Drafts"

	// MultiStepDir holds persisted multi-step task state files.
	MultiStepDir = "MultiStep"

	// LogsDir holds the append-only audit log.
	LogsDir = "Logs"

	// BriefingsDir holds generated briefing reports.
	BriefingsDir = "Briefings"
)

// Risk classification thresholds.
const (
	// ApprovalAmountThreshold is the dollar amount above which a task is
	// always routed to human approval.
	ApprovalAmountThreshold = 50.0
)

// Watchdog tuning.
const (
	// MaxRestartAttempts is the number of cumulative restart attempts the
	// watchdog makes before escalating to a human alert.
	MaxRestartAttempts = 3

	// RestartBackoffCap bounds the exponential restart backoff.
	RestartBackoffCap = 60 * time.Second

	// StalenessThreshold is how old a watcher's last check may be before
	// the watchdog considers it stalled.
	StalenessThreshold = 5 * time.Minute

	// RestartHistoryLimit bounds the retained restart/alert event history.
	RestartHistoryLimit = 10
)

// Orchestrator tuning.
const (
	// DefaultProcessInterval is how often the orchestrator tick scans
	// Needs_Action and Approved.
	DefaultProcessInterval = 10 * time.Second

	// DefaultHealthCheckInterval is how often the watchdog checks watcher
	// health.
	DefaultHealthCheckInterval = 60 * time.Second

	// DefaultWatcherInterval is how often watchers poll their sources.
	DefaultWatcherInterval = 30 * time.Second

	// SchedulerTickResolution is the scheduler's control loop resolution.
	SchedulerTickResolution = time.Second

	// ShutdownTimeout bounds how long the orchestrator waits for
	// background loops to exit before giving up on a clean join.
	ShutdownTimeout = 5 * time.Second
)

// File names and extensions.
const (
	// RecordExt is the extension of task and plan records in the vault.
	RecordExt = ".md"

	// MultiStepStateExt is the extension of persisted multi-step state.
	MultiStepStateExt = ".yaml"

	// AuditLogFileName is the name of the append-only audit log file.
	AuditLogFileName = "audit.jsonl"

	// CLILogFileName is the global CLI log file under ~/.aide/logs.
	CLILogFileName = "aide.log"

	// GlobalConfigName is the global aide configuration file name.
	GlobalConfigName = "config.yaml"

	// ProjectConfigName is the per-directory configuration file name.
	ProjectConfigName = ".aide.yaml"
)

// Log rotation settings for the CLI log file.
const (
	LogMaxSizeMB  = 10
	LogMaxBackups = 3
	LogMaxAgeDays = 30
	LogCompress   = true
)

// Metadata keys reserved by the engine. Tasks created by the multi-step
// runner carry these so the approval handler can tell a step-approval
// artifact apart from a standalone task.
const (
	// MetaMultiStepID tags a task record with its parent multi-step task.
	MetaMultiStepID = "multistep_id"

	// MetaStepIndex tags a task record with the step it executes.
	MetaStepIndex = "step_index"
)
