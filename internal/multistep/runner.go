// Package multistep implements resumable multi-step tasks.
//
// Each task is an ordered step list persisted to a YAML state file in
// the vault after every mutation, so progress survives process
// restarts. Steps execute through the normal workflow pipeline: the
// runner emits a step record into Needs_Action (or an approval artifact
// into Pending_Approval for gated steps) tagged with reserved metadata,
// and the approval handler routes the decision back into Advance.
//
// Import rules:
//   - CAN import: internal/audit, internal/clock, internal/constants,
//     internal/domain, internal/errors, internal/vault
//   - MUST NOT import: internal/workflow, internal/orchestrator
package multistep

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/aide-sh/aide/internal/audit"
	"github.com/aide-sh/aide/internal/clock"
	"github.com/aide-sh/aide/internal/constants"
	"github.com/aide-sh/aide/internal/domain"
	aideerrors "github.com/aide-sh/aide/internal/errors"
	"github.com/aide-sh/aide/internal/vault"
)

// Summary is a point-in-time view of one multi-step task for status
// reporting.
type Summary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	Progress    string `json:"progress"`
	CurrentStep int    `json:"current_step"`
	TotalSteps  int    `json:"total_steps"`
}

// Runner manages multi-step task state and dispatch.
type Runner struct {
	store vault.Store
	sink  audit.Sink
	clk   clock.Clock

	mu    sync.Mutex
	tasks map[string]*domain.MultiStepTask
}

// NewRunner creates a multi-step runner.
func NewRunner(store vault.Store, sink audit.Sink, clk clock.Clock) *Runner {
	return &Runner{
		store: store,
		sink:  sink,
		clk:   clk,
		tasks: make(map[string]*domain.MultiStepTask),
	}
}

// Create registers a new multi-step task and persists its initial state.
// The task does not begin executing until Start is called.
func (r *Runner) Create(ctx context.Context, title string, steps []domain.Step) (*domain.MultiStepTask, error) {
	if title == "" {
		return nil, fmt.Errorf("task title %w", aideerrors.ErrEmptyValue)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("task steps %w", aideerrors.ErrEmptyValue)
	}

	now := r.clk.Now()
	task := &domain.MultiStepTask{
		ID:        fmt.Sprintf("ms_%s_%s", now.Format("20060102_150405"), uuid.NewString()[:6]),
		Title:     title,
		Steps:     make([]domain.Step, len(steps)),
		Status:    constants.MultiStepPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, s := range steps {
		if s.Action == "" {
			s.Action = "general"
		}
		s.Status = constants.StepPending
		s.Result = nil
		task.Steps[i] = s
	}

	r.mu.Lock()
	r.tasks[task.ID] = task
	r.mu.Unlock()

	if err := r.persist(ctx, task); err != nil {
		return nil, err
	}

	r.sink.Record(audit.Event{
		Time: now,
		Type: audit.EventMultiStepCreated,
		Task: task.ID,
		Fields: map[string]any{
			"title":      title,
			"step_count": len(steps),
		},
	})
	zerolog.Ctx(ctx).Info().
		Str("multistep", task.ID).
		Str("title", title).
		Int("steps", len(steps)).
		Msg("multi-step task created")
	return task, nil
}

// Start begins executing the task's current step.
func (r *Runner) Start(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", aideerrors.ErrMultiStepNotFound, id)
	}
	if task.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", aideerrors.ErrTaskFinished, id, task.Status)
	}

	if err := r.dispatch(ctx, task); err != nil {
		return err
	}
	return r.persist(ctx, task)
}

// Advance records the outcome of the current step and moves to the next.
// A failed result marks the step and the whole task failed; there is no
// automatic retry of a failed step. Returns true when the task advanced
// to another step, false when it reached a terminal status.
func (r *Runner) Advance(ctx context.Context, id string, result *domain.StepResult) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := zerolog.Ctx(ctx).With().Str("multistep", id).Logger()

	task, ok := r.tasks[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", aideerrors.ErrMultiStepNotFound, id)
	}
	if task.Status.IsTerminal() {
		return false, fmt.Errorf("%w: %s is %s", aideerrors.ErrTaskFinished, id, task.Status)
	}

	current := task.Current()
	if current == nil {
		return false, fmt.Errorf("%w: %s", aideerrors.ErrNoCurrentStep, id)
	}

	now := r.clk.Now()
	task.UpdatedAt = now

	if result.Failed() {
		current.Status = constants.StepFailed
		current.Result = resultPayload(result)
		task.Status = constants.MultiStepFailed
		if err := r.persist(ctx, task); err != nil {
			return false, err
		}

		r.sink.Record(audit.Event{
			Time:   now,
			Type:   audit.EventMultiStepFailed,
			Task:   id,
			Detail: result.Error,
			Fields: map[string]any{"step": current.Name},
		})
		logger.Error().Str("step", current.Name).Str("error", result.Error).Msg("multi-step task failed")
		return false, nil
	}

	current.Status = constants.StepCompleted
	current.Result = resultPayload(result)
	logger.Info().Str("step", current.Name).Str("progress", task.Progress()).Msg("step completed")

	next := task.CurrentStep + 1
	task.CurrentStep = next
	if next >= len(task.Steps) {
		task.Status = constants.MultiStepCompleted
		if err := r.persist(ctx, task); err != nil {
			return false, err
		}

		r.sink.Record(audit.Event{
			Time:   now,
			Type:   audit.EventMultiStepCompleted,
			Task:   id,
			Fields: map[string]any{"title": task.Title},
		})
		logger.Info().Str("title", task.Title).Msg("multi-step task completed")
		return false, nil
	}

	if err := r.dispatch(ctx, task); err != nil {
		return false, err
	}
	if err := r.persist(ctx, task); err != nil {
		return false, err
	}

	r.sink.Record(audit.Event{
		Time: now,
		Type: audit.EventMultiStepAdvanced,
		Task: id,
		Fields: map[string]any{
			"step":     task.Steps[next].Name,
			"progress": task.Progress(),
		},
	})
	return true, nil
}

// Pause suspends a task without recording a step outcome.
func (r *Runner) Pause(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", aideerrors.ErrMultiStepNotFound, id)
	}
	if task.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", aideerrors.ErrTaskFinished, id, task.Status)
	}

	task.Status = constants.MultiStepPaused
	task.UpdatedAt = r.clk.Now()
	return r.persist(ctx, task)
}

// HandleStepApproval routes an approval decision for a step artifact
// back into the runner. Approval counts as the gated step's successful
// outcome; rejection pauses the task for later human intervention.
func (r *Runner) HandleStepApproval(ctx context.Context, artifact *domain.Task, approved bool) error {
	id := artifact.MultiStepID()
	if id == "" {
		return fmt.Errorf("record %s: %w", artifact.Name, aideerrors.ErrMultiStepNotFound)
	}

	if !approved {
		zerolog.Ctx(ctx).Info().Str("multistep", id).Msg("step rejected; pausing task")
		return r.Pause(ctx, id)
	}

	_, err := r.Advance(ctx, id, &domain.StepResult{
		Status:  domain.ResultSuccess,
		Message: "approved by human",
	})
	return err
}

// ResumeAll loads persisted state files and resumes every task that was
// pending, in progress, or paused. Terminal tasks stay on disk as the
// historical record but are not loaded. Corrupt state files are logged
// and skipped.
func (r *Runner) ResumeAll(ctx context.Context) (int, error) {
	logger := zerolog.Ctx(ctx).With().Str("component", "multistep").Logger()

	names, err := r.store.List(ctx, vault.MultiStep, constants.MultiStepStateExt)
	if err != nil {
		return 0, fmt.Errorf("failed to scan multi-step state: %w", err)
	}

	resumed := 0
	for _, name := range names {
		data, err := r.store.Read(ctx, vault.MultiStep, name)
		if err != nil {
			logger.Error().Err(err).Str("file", name).Msg("failed to read state file")
			continue
		}

		var task domain.MultiStepTask
		if err := yaml.Unmarshal(data, &task); err != nil || task.ID == "" {
			logger.Error().Err(err).Str("file", name).Msg("failed to parse state file")
			continue
		}
		if task.Status.IsTerminal() {
			continue
		}

		r.mu.Lock()
		r.tasks[task.ID] = &task
		r.mu.Unlock()
		resumed++

		logger.Info().
			Str("multistep", task.ID).
			Str("title", task.Title).
			Str("progress", task.Progress()).
			Msg("resumed multi-step task")
	}
	return resumed, nil
}

// Get returns a task by ID.
func (r *Runner) Get(id string) (*domain.MultiStepTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	return task, ok
}

// ActiveTasks returns summaries of every non-terminal task.
func (r *Runner) ActiveTasks() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	var active []Summary
	for _, task := range r.tasks {
		if task.Status.IsTerminal() {
			continue
		}
		active = append(active, Summary{
			ID:          task.ID,
			Title:       task.Title,
			Status:      task.Status.String(),
			Progress:    task.Progress(),
			CurrentStep: task.CurrentStep,
			TotalSteps:  len(task.Steps),
		})
	}
	return active
}

// dispatch emits the current step's work record or approval artifact.
// Caller holds the mutex.
func (r *Runner) dispatch(ctx context.Context, task *domain.MultiStepTask) error {
	step := task.Current()
	if step == nil {
		return fmt.Errorf("%w: %s", aideerrors.ErrNoCurrentStep, task.ID)
	}

	if step.RequiresApproval {
		task.Status = constants.MultiStepPaused
		return r.createApprovalArtifact(ctx, task, step)
	}
	task.Status = constants.MultiStepInProgress
	return r.createStepRecord(ctx, task, step)
}

// createStepRecord emits a step work record into Needs_Action for the
// normal pipeline to pick up.
func (r *Runner) createStepRecord(ctx context.Context, task *domain.MultiStepTask, step *domain.Step) error {
	now := r.clk.Now()
	name := fmt.Sprintf("%s_multistep_%s_step%d%s",
		now.Format("20060102_150405"), task.ID, task.CurrentStep, constants.RecordExt)

	record := &domain.Task{
		Name:     name,
		Title:    fmt.Sprintf("%s - Step %d: %s", task.Title, task.CurrentStep+1, step.Name),
		Source:   "Multi-Step Task: " + task.ID,
		Priority: constants.PriorityNormal,
		Type:     step.Action,
		Created:  now,
		Metadata: map[string]any{
			constants.MetaMultiStepID: task.ID,
			constants.MetaStepIndex:   task.CurrentStep,
		},
		Body: fmt.Sprintf("# %s\n\n## Multi-Step Task: %s\n\n**Task ID**: %s\n**Step**: %d of %d\n**Action**: %s\n\n## Instructions\n\nExecute step: %s\n",
			step.Name, task.Title, task.ID, task.CurrentStep+1, len(task.Steps), step.Action, step.Name),
	}

	data, err := vault.EncodeTask(record)
	if err != nil {
		return err
	}
	return r.store.Create(ctx, vault.NeedsAction, name, data)
}

// createApprovalArtifact emits a high-priority approval request into
// Pending_Approval for a gated step.
func (r *Runner) createApprovalArtifact(ctx context.Context, task *domain.MultiStepTask, step *domain.Step) error {
	now := r.clk.Now()
	name := fmt.Sprintf("%s_approval_%s_step%d%s",
		now.Format("20060102_150405"), task.ID, task.CurrentStep, constants.RecordExt)

	record := &domain.Task{
		Name:     name,
		Title:    fmt.Sprintf("Approval Required: %s - %s", task.Title, step.Name),
		Source:   "Multi-Step Task: " + task.ID,
		Priority: constants.PriorityHigh,
		Type:     step.Action,
		Created:  now,
		Metadata: map[string]any{
			constants.MetaMultiStepID: task.ID,
			constants.MetaStepIndex:   task.CurrentStep,
		},
		Body: fmt.Sprintf("# Approval Required\n\n## Multi-Step Task: %s\n\n**Task ID**: %s\n**Step**: %d of %d\n**Action**: %s\n\n## Progress So Far\n\n%s\n\n## Action Required\n\nReview and approve this step before execution proceeds.\n\nMove this record to Approved/ to continue the multi-step task.\n",
			task.Title, task.ID, task.CurrentStep+1, len(task.Steps), step.Name, formatProgress(task)),
	}

	data, err := vault.EncodeTask(record)
	if err != nil {
		return err
	}
	return r.store.Create(ctx, vault.PendingApproval, name, data)
}

// persist writes the task state file. Caller holds the mutex.
func (r *Runner) persist(ctx context.Context, task *domain.MultiStepTask) error {
	data, err := yaml.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode state for %s: %w", task.ID, err)
	}
	return r.store.Put(ctx, vault.MultiStep, task.ID+constants.MultiStepStateExt, data)
}

// formatProgress renders a step checklist for approval artifacts.
func formatProgress(task *domain.MultiStepTask) string {
	var b strings.Builder
	for i, step := range task.Steps {
		switch {
		case step.Status == constants.StepCompleted:
			fmt.Fprintf(&b, "- [x] Step %d: %s\n", i+1, step.Name)
		case i == task.CurrentStep:
			fmt.Fprintf(&b, "- [ ] Step %d: %s **(current)**\n", i+1, step.Name)
		default:
			fmt.Fprintf(&b, "- [ ] Step %d: %s\n", i+1, step.Name)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// resultPayload flattens a StepResult into the persisted step record.
func resultPayload(result *domain.StepResult) map[string]any {
	if result == nil {
		return nil
	}
	payload := map[string]any{"status": result.Status}
	if result.Message != "" {
		payload["message"] = result.Message
	}
	if result.Error != "" {
		payload["error"] = result.Error
	}
	for k, v := range result.Data {
		payload[k] = v
	}
	return payload
}
