package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/aide-sh/aide/internal/constants"
	"github.com/aide-sh/aide/internal/domain"
	"github.com/aide-sh/aide/internal/hitl"
)

// planMarker is the substring that identifies plan records. Plan copies
// travel alongside their task through the approval locations, and scans
// use this marker to tell them apart from task records.
const planMarker = "_plan_"

// bodySummaryLimit caps how much task body is quoted in the plan.
const bodySummaryLimit = 1000

// IsPlanRecord reports whether a record name denotes a plan artifact
// rather than a task.
func IsPlanRecord(name string) bool {
	return strings.Contains(name, planMarker)
}

// PlanName builds the plan record name for a task:
// <timestamp>_plan_<task-stem>.md.
func PlanName(now time.Time, taskName string) string {
	stem := strings.TrimSuffix(taskName, constants.RecordExt)
	return fmt.Sprintf("%s%s%s%s", now.Format("20060102_150405"), planMarker, stem, constants.RecordExt)
}

// planRecordsFor returns the plan records in names that belong to the
// given task. Plans are matched on the full "_plan_<stem>.md" suffix so
// a task whose stem prefixes another's never claims the wrong plan.
func planRecordsFor(names []string, taskName string) []string {
	stem := strings.TrimSuffix(taskName, constants.RecordExt)
	suffix := planMarker + stem + constants.RecordExt
	var plans []string
	for _, name := range names {
		if strings.HasSuffix(name, suffix) {
			plans = append(plans, name)
		}
	}
	return plans
}

// RenderPlan produces the plan artifact content for a classified task.
func RenderPlan(task *domain.Task, decision hitl.Decision, now time.Time) []byte {
	status := "auto_approved"
	firstStep := "Auto-approved for execution"
	if decision.RequiresApproval {
		status = "pending_approval"
		firstStep = "AWAIT HUMAN APPROVAL"
	}

	source := task.Source
	if source == "" {
		source = "Unknown"
	}
	created := "Unknown"
	if !task.Created.IsZero() {
		created = task.Created.Format(time.RFC3339)
	}

	summary := task.Body
	if len(summary) > bodySummaryLimit {
		summary = summary[:bodySummaryLimit] + "..."
	}

	var reasons strings.Builder
	for _, reason := range decision.Reasons {
		reasons.WriteString("- " + reason + "\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, `---
task: %s
created: %s
action_type: %s
risk_level: %s
requires_approval: %t
status: %s
---

# Plan: %s

## Original Task

**Source**: %s
**Priority**: %s
**Created**: %s

## Analysis

**Action Type**: %s
**Risk Level**: %s
**Requires Approval**: %t

### Reasons
%s
## Suggested Action

%s

## Task Content Summary

%s

---

## Execution Steps

1. %s
2. %s
3. Log result to the audit trail
4. Archive to Done
`,
		task.Name,
		now.Format(time.RFC3339),
		decision.ActionType,
		decision.RiskLevel,
		decision.RequiresApproval,
		status,
		task.Title,
		source,
		task.Priority,
		created,
		decision.ActionType,
		strings.ToUpper(string(decision.RiskLevel)),
		decision.RequiresApproval,
		reasons.String(),
		decision.SuggestedAction,
		summary,
		firstStep,
		decision.SuggestedAction,
	)
	return []byte(b.String())
}
