package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aide-sh/aide/internal/audit"
	"github.com/aide-sh/aide/internal/clock"
	"github.com/aide-sh/aide/internal/constants"
	"github.com/aide-sh/aide/internal/domain"
	"github.com/aide-sh/aide/internal/vault"
)

// StepApprovalHook receives approval decisions for step artifacts
// created by the multi-step runner. The hook advances or pauses the
// parent multi-step task; the artifact itself is archived by the
// handler like any other record.
type StepApprovalHook interface {
	HandleStepApproval(ctx context.Context, task *domain.Task, approved bool) error
}

// Archived record names carry an outcome marker between the timestamp
// and the original name.
const (
	doneCompletedInfix = "_completed_"
	doneRejectedInfix  = "_REJECTED_"
)

// PendingSummary describes the current approval queue.
type PendingSummary struct {
	PendingCount  int      `json:"pending_count"`
	ApprovedCount int      `json:"approved_count"`
	PendingTasks  []string `json:"pending_tasks,omitempty"`
	ApprovedTasks []string `json:"approved_tasks,omitempty"`
}

// ApprovalHandler drains the Approved location: newly approved tasks are
// executed and archived into Done. It also exposes the approve/reject
// operations the CLI uses on Pending_Approval.
//
// The handler tracks processed approvals in memory only. After a
// restart, tasks still in Approved are treated as newly approved and
// re-executed; executors are expected to be idempotent.
type ApprovalHandler struct {
	store     vault.Store
	sink      audit.Sink
	clk       clock.Clock
	executors []domain.Executor
	stepHook  StepApprovalHook
	dryRun    bool
	processed map[string]bool
}

// NewApprovalHandler creates an approval handler. executors are tried in
// order; the first one whose CanHandle matches runs the task. stepHook
// may be nil when no multi-step runner is wired.
func NewApprovalHandler(store vault.Store, sink audit.Sink, clk clock.Clock, executors []domain.Executor, stepHook StepApprovalHook, dryRun bool) *ApprovalHandler {
	return &ApprovalHandler{
		store:     store,
		sink:      sink,
		clk:       clk,
		executors: executors,
		stepHook:  stepHook,
		dryRun:    dryRun,
		processed: make(map[string]bool),
	}
}

// ProcessApprovals executes every newly approved task and returns how
// many were processed. Per-task failures leave the record in Approved
// and are retried next tick.
func (h *ApprovalHandler) ProcessApprovals(ctx context.Context) (int, error) {
	logger := zerolog.Ctx(ctx).With().Str("component", "approval").Logger()

	names, err := h.store.List(ctx, vault.Approved, constants.RecordExt)
	if err != nil {
		return 0, fmt.Errorf("failed to scan %s: %w", vault.Approved, err)
	}

	count := 0
	for _, name := range names {
		if IsPlanRecord(name) || h.processed[name] {
			continue
		}
		if err := h.processApproved(ctx, name); err != nil {
			logger.Error().Err(err).Str("task", name).Msg("approved task processing failed")
			h.sink.Record(audit.Event{
				Time:   h.clk.Now(),
				Type:   audit.EventApprovalError,
				Task:   name,
				Detail: err.Error(),
			})
			continue
		}
		count++
	}
	return count, nil
}

// processApproved executes one approved task and archives it.
func (h *ApprovalHandler) processApproved(ctx context.Context, name string) error {
	logger := zerolog.Ctx(ctx).With().Str("component", "approval").Str("task", name).Logger()

	data, err := h.store.Read(ctx, vault.Approved, name)
	if err != nil {
		return err
	}
	task := vault.ParseTask(name, data)

	h.processed[name] = true
	h.sink.Record(audit.Event{
		Time:   h.clk.Now(),
		Type:   audit.EventTaskApproved,
		Task:   name,
		Fields: map[string]any{"approved_by": "human"},
	})

	switch {
	case h.dryRun:
		// Dry run suppresses execution only; the record still flows
		// through to Done.
		logger.Info().Msg("dry run: skipping execution")
	case task.MultiStepID() != "" && h.stepHook != nil:
		// Step artifacts advance their parent multi-step task instead
		// of running an executor.
		if err := h.stepHook.HandleStepApproval(ctx, task, true); err != nil {
			logger.Error().Err(err).Str("multistep", task.MultiStepID()).Msg("step approval hook failed")
		}
	default:
		h.execute(ctx, task)
	}

	return h.archive(ctx, vault.Approved, name, doneCompletedInfix, audit.EventTaskCompleted, nil)
}

// execute runs the first matching executor. Execution failures are
// logged and audited but do not block archival; the record of what
// happened lives in the audit trail.
func (h *ApprovalHandler) execute(ctx context.Context, task *domain.Task) {
	logger := zerolog.Ctx(ctx).With().Str("component", "approval").Str("task", task.Name).Logger()

	for _, ex := range h.executors {
		if !ex.CanHandle(task) {
			continue
		}
		result, err := ex.Execute(ctx, task)
		if err != nil {
			logger.Error().Err(err).Msg("executor failed")
			h.sink.Record(audit.Event{
				Time:   h.clk.Now(),
				Type:   audit.EventTaskProcessError,
				Task:   task.Name,
				Detail: err.Error(),
			})
			return
		}
		if result != nil && result.Error != "" {
			logger.Error().Str("error", result.Error).Msg("executor reported failure")
			h.sink.Record(audit.Event{
				Time:   h.clk.Now(),
				Type:   audit.EventTaskProcessError,
				Task:   task.Name,
				Detail: result.Error,
			})
			return
		}
		if result != nil {
			logger.Info().Str("status", result.Status).Str("message", result.Message).Msg("task executed")
		}
		return
	}
	logger.Debug().Msg("no executor matched; archiving as-is")
}

// Approve moves a task (and its plan copies) from Pending_Approval to
// Approved, where the next tick will execute it.
func (h *ApprovalHandler) Approve(ctx context.Context, name string) error {
	if err := h.store.Relocate(ctx, vault.PendingApproval, vault.Approved, name); err != nil {
		return err
	}

	plans, err := h.plansFor(ctx, vault.PendingApproval, name)
	if err != nil {
		return err
	}
	for _, plan := range plans {
		if err := h.store.Relocate(ctx, vault.PendingApproval, vault.Approved, plan); err != nil {
			return err
		}
	}

	zerolog.Ctx(ctx).Info().Str("task", name).Msg("task approved")
	return nil
}

// Reject appends a rejection note and archives the task into Done with a
// REJECTED marker. Step artifacts additionally pause their parent
// multi-step task.
func (h *ApprovalHandler) Reject(ctx context.Context, name, reason string) error {
	data, err := h.store.Read(ctx, vault.PendingApproval, name)
	if err != nil {
		return err
	}
	task := vault.ParseTask(name, data)

	if reason == "" {
		reason = "No reason provided"
	}
	note := fmt.Sprintf("\n\n---\n\n## REJECTED\n\n**Date**: %s\n**Reason**: %s\n",
		h.clk.Now().Format(time.RFC3339), reason)
	if err := h.store.Append(ctx, vault.PendingApproval, name, []byte(note)); err != nil {
		return err
	}

	if task.MultiStepID() != "" && h.stepHook != nil {
		if err := h.stepHook.HandleStepApproval(ctx, task, false); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("multistep", task.MultiStepID()).Msg("step rejection hook failed")
		}
	}

	return h.archive(ctx, vault.PendingApproval, name, doneRejectedInfix, audit.EventTaskRejected,
		map[string]any{"reason": reason})
}

// archive moves a task and its plan copies into Done under a
// timestamped outcome name. Done is append-only: nothing is ever
// renamed or removed once it lands there.
func (h *ApprovalHandler) archive(ctx context.Context, from vault.Location, name, infix string, eventType audit.EventType, fields map[string]any) error {
	now := h.clk.Now()
	stamp := now.Format("20060102_150405")

	doneName := stamp + infix + name
	if err := h.store.RelocateRenamed(ctx, from, vault.Done, name, doneName); err != nil {
		return err
	}

	plans, err := h.plansFor(ctx, from, name)
	if err == nil {
		for _, plan := range plans {
			_ = h.store.RelocateRenamed(ctx, from, vault.Done, plan, stamp+infix+plan)
		}
	}

	h.sink.Record(audit.Event{
		Time:   now,
		Type:   eventType,
		Task:   name,
		Detail: doneName,
		Fields: fields,
	})
	return nil
}

// plansFor lists the plan copies co-located with a task.
func (h *ApprovalHandler) plansFor(ctx context.Context, loc vault.Location, taskName string) ([]string, error) {
	names, err := h.store.List(ctx, loc, constants.RecordExt)
	if err != nil {
		return nil, err
	}
	return planRecordsFor(names, taskName), nil
}

// Summary reports the current approval queue state.
func (h *ApprovalHandler) Summary(ctx context.Context) (PendingSummary, error) {
	pending, err := h.taskRecords(ctx, vault.PendingApproval)
	if err != nil {
		return PendingSummary{}, err
	}
	approved, err := h.taskRecords(ctx, vault.Approved)
	if err != nil {
		return PendingSummary{}, err
	}
	return PendingSummary{
		PendingCount:  len(pending),
		ApprovedCount: len(approved),
		PendingTasks:  pending,
		ApprovedTasks: approved,
	}, nil
}

// taskRecords lists non-plan records in a location.
func (h *ApprovalHandler) taskRecords(ctx context.Context, loc vault.Location) ([]string, error) {
	names, err := h.store.List(ctx, loc, constants.RecordExt)
	if err != nil {
		return nil, err
	}
	tasks := make([]string, 0, len(names))
	for _, name := range names {
		if !IsPlanRecord(name) {
			tasks = append(tasks, name)
		}
	}
	return tasks, nil
}
