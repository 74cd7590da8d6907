// Package workflow implements the task processing and approval halves of
// the engine's tick.
//
// The processor drains Needs_Action: classify, write a plan, route the
// task to Pending_Approval or Approved. The approval handler drains
// Approved: execute and archive into Done. Both operate through the
// vault store only; neither touches files directly.
//
// Import rules:
//   - CAN import: internal/audit, internal/clock, internal/constants,
//     internal/domain, internal/errors, internal/hitl, internal/vault
//   - MUST NOT import: internal/orchestrator, internal/cli
package workflow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aide-sh/aide/internal/audit"
	"github.com/aide-sh/aide/internal/clock"
	"github.com/aide-sh/aide/internal/constants"
	"github.com/aide-sh/aide/internal/hitl"
	"github.com/aide-sh/aide/internal/vault"
)

// Processor drains Needs_Action, classifying each task and routing it to
// the approval location its risk demands.
//
// Per-task failures never abort the scan: the record stays where it is
// and the error lands in the audit trail, so the next tick retries it.
type Processor struct {
	store      vault.Store
	classifier *hitl.Classifier
	sink       audit.Sink
	clk        clock.Clock
	processed  int
}

// NewProcessor creates a task processor.
func NewProcessor(store vault.Store, classifier *hitl.Classifier, sink audit.Sink, clk clock.Clock) *Processor {
	return &Processor{
		store:      store,
		classifier: classifier,
		sink:       sink,
		clk:        clk,
	}
}

// ProcessedCount returns how many tasks this processor has routed since
// construction.
func (p *Processor) ProcessedCount() int {
	return p.processed
}

// ProcessAll processes every task currently in Needs_Action and returns
// how many were routed. Listing errors abort the scan; per-task errors
// are audited and skipped.
func (p *Processor) ProcessAll(ctx context.Context) (int, error) {
	logger := zerolog.Ctx(ctx).With().Str("component", "processor").Logger()

	names, err := p.store.List(ctx, vault.NeedsAction, constants.RecordExt)
	if err != nil {
		return 0, fmt.Errorf("failed to scan %s: %w", vault.NeedsAction, err)
	}

	count := 0
	for _, name := range names {
		if IsPlanRecord(name) {
			continue
		}
		if err := p.processTask(ctx, name); err != nil {
			logger.Error().Err(err).Str("task", name).Msg("task processing failed")
			p.sink.Record(audit.Event{
				Time:   p.clk.Now(),
				Type:   audit.EventTaskProcessError,
				Task:   name,
				Detail: err.Error(),
			})
			continue
		}
		count++
		p.processed++
	}
	return count, nil
}

// processTask classifies one task, writes its plan, and relocates it.
// The relocate is last: a failure at any earlier point leaves the task
// in Needs_Action for the next tick.
func (p *Processor) processTask(ctx context.Context, name string) error {
	logger := zerolog.Ctx(ctx).With().Str("component", "processor").Str("task", name).Logger()

	data, err := p.store.Read(ctx, vault.NeedsAction, name)
	if err != nil {
		return err
	}
	task := vault.ParseTask(name, data)

	decision := p.classifier.Classify(task.Body, task.Metadata)

	now := p.clk.Now()
	planName := PlanName(now, name)
	planData := RenderPlan(task, decision, now)

	if err := p.store.Create(ctx, vault.Plans, planName, planData); err != nil {
		return err
	}
	p.sink.Record(audit.Event{
		Time: now,
		Type: audit.EventPlanCreated,
		Task: name,
		Fields: map[string]any{
			"plan":              planName,
			"action_type":       decision.ActionType.String(),
			"risk_level":        decision.RiskLevel.String(),
			"requires_approval": decision.RequiresApproval,
		},
	})

	dest := vault.Approved
	eventType := audit.EventTaskAutoApproved
	if decision.RequiresApproval {
		dest = vault.PendingApproval
		eventType = audit.EventTaskPendingApproval
	}

	// Copy of the plan travels with the task so reviewers see the
	// analysis next to what they are approving.
	if err := p.store.Create(ctx, dest, planName, planData); err != nil {
		return err
	}
	if err := p.store.Relocate(ctx, vault.NeedsAction, dest, name); err != nil {
		return err
	}

	logger.Info().
		Str("destination", dest.String()).
		Str("risk_level", decision.RiskLevel.String()).
		Strs("reasons", decision.Reasons).
		Msg("task routed")

	p.sink.Record(audit.Event{
		Time: p.clk.Now(),
		Type: eventType,
		Task: name,
		Fields: map[string]any{
			"risk_level": decision.RiskLevel.String(),
			"reasons":    decision.Reasons,
		},
	})
	return nil
}
