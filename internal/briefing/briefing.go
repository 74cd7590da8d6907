// Package briefing generates periodic markdown status reports from the
// vault. A briefing summarizes the week's completed work, the pending
// queue, bottlenecks, and system health, and lands in the Briefings
// location for human review.
//
// Import rules:
//   - CAN import: internal/audit, internal/clock, internal/constants,
//     internal/domain, internal/vault, internal/workflow
//   - MUST NOT import: internal/orchestrator
package briefing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aide-sh/aide/internal/audit"
	"github.com/aide-sh/aide/internal/clock"
	"github.com/aide-sh/aide/internal/constants"
	"github.com/aide-sh/aide/internal/domain"
	"github.com/aide-sh/aide/internal/vault"
	"github.com/aide-sh/aide/internal/workflow"
)

// reportPeriod is the lookback window for the completed-tasks section.
const reportPeriod = 7 * 24 * time.Hour

// bottleneckAge is how long a task may sit in a pending location before
// the briefing flags it.
const bottleneckAge = 2 * 24 * time.Hour

// listLimit bounds the completed and pending sections.
const listLimit = 10

// recordTimestampLen is the length of the name prefix "20060102_150405".
const recordTimestampLen = 15

// Health is the system-health input to a briefing. The orchestrator
// fills it from the watchdog; tests fill it directly.
type Health struct {
	Watchers        []domain.WatcherStatus
	WatchersHealthy bool
	RestartCounts   map[string]int
}

// HealthFunc supplies a health snapshot at generation time. May be nil.
type HealthFunc func() Health

// completedTask is one entry in the completed-tasks section.
type completedTask struct {
	name string
	done time.Time
}

// pendingTask is one entry in the pending or bottleneck sections.
type pendingTask struct {
	name     string
	location string
	age      time.Duration
}

// Generator builds briefing reports from the vault.
type Generator struct {
	store  vault.Store
	sink   audit.Sink
	clk    clock.Clock
	health HealthFunc
}

// NewGenerator creates a briefing generator. health may be nil when no
// orchestrator is running (the `brief` command).
func NewGenerator(store vault.Store, sink audit.Sink, clk clock.Clock, health HealthFunc) *Generator {
	return &Generator{store: store, sink: sink, clk: clk, health: health}
}

// Generate builds the report and writes it into Briefings as
// <YYYY-MM-DD>_Weekly_Briefing.md, overwriting an earlier report from
// the same day. It returns the record name.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	logger := zerolog.Ctx(ctx).With().Str("component", "briefing").Logger()

	now := g.clk.Now()
	weekStart := now.Add(-reportPeriod)

	completed, totalDone, err := g.completedSince(ctx, weekStart)
	if err != nil {
		return "", err
	}
	pending, err := g.pendingTasks(ctx, now)
	if err != nil {
		return "", err
	}
	bottlenecks := findBottlenecks(pending)

	report := g.buildReport(now, weekStart, completed, totalDone, pending, bottlenecks)

	name := fmt.Sprintf("%s_Weekly_Briefing%s", now.Format("2006-01-02"), constants.RecordExt)
	if err := g.store.Put(ctx, vault.Briefings, name, []byte(report)); err != nil {
		return "", err
	}

	logger.Info().
		Str("briefing", name).
		Int("completed", len(completed)).
		Int("pending", len(pending)).
		Int("bottlenecks", len(bottlenecks)).
		Msg("briefing generated")

	g.sink.Record(audit.Event{
		Time:   now,
		Type:   audit.EventBriefingGenerated,
		Task:   name,
		Detail: fmt.Sprintf("%d completed, %d pending, %d bottlenecks", len(completed), len(pending), len(bottlenecks)),
	})
	return name, nil
}

// completedSince scans Done for records archived within the window.
// Completion time comes from the archival timestamp prefix; records
// without one are counted but not listed.
func (g *Generator) completedSince(ctx context.Context, since time.Time) ([]completedTask, int, error) {
	names, err := g.store.List(ctx, vault.Done, constants.RecordExt)
	if err != nil {
		return nil, 0, err
	}

	var completed []completedTask
	for _, name := range names {
		ts, ok := recordTimestamp(name)
		if !ok || ts.Before(since) {
			continue
		}
		completed = append(completed, completedTask{name: stem(name), done: ts})
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].done.After(completed[j].done)
	})
	return completed, len(names), nil
}

// pendingTasks gathers tasks sitting in Needs_Action and
// Pending_Approval, with their time in queue. Plan records are overlay
// artifacts, not tasks, and are excluded.
func (g *Generator) pendingTasks(ctx context.Context, now time.Time) ([]pendingTask, error) {
	var pending []pendingTask
	for _, loc := range []vault.Location{vault.NeedsAction, vault.PendingApproval} {
		names, err := g.store.List(ctx, loc, constants.RecordExt)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if workflow.IsPlanRecord(name) {
				continue
			}
			pending = append(pending, pendingTask{
				name:     stem(name),
				location: string(loc),
				age:      taskAge(name, now),
			})
		}
	}
	return pending, nil
}

// findBottlenecks filters pending tasks older than the threshold,
// oldest first.
func findBottlenecks(pending []pendingTask) []pendingTask {
	var bottlenecks []pendingTask
	for _, task := range pending {
		if task.age > bottleneckAge {
			bottlenecks = append(bottlenecks, task)
		}
	}
	sort.Slice(bottlenecks, func(i, j int) bool {
		return bottlenecks[i].age > bottlenecks[j].age
	})
	return bottlenecks
}

// taskAge derives how long a record has been queued from its name's
// timestamp prefix. Records without a prefix report zero age.
func taskAge(name string, now time.Time) time.Duration {
	ts, ok := recordTimestamp(name)
	if !ok {
		return 0
	}
	age := now.Sub(ts)
	if age < 0 {
		return 0
	}
	return age
}

// recordTimestamp parses the 20060102_150405 prefix of a record name.
func recordTimestamp(name string) (time.Time, bool) {
	if len(name) < recordTimestampLen {
		return time.Time{}, false
	}
	ts, err := time.Parse("20060102_150405", name[:recordTimestampLen])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// stem strips the record extension for display.
func stem(name string) string {
	return strings.TrimSuffix(name, constants.RecordExt)
}

func (g *Generator) buildReport(now, weekStart time.Time, completed []completedTask, totalDone int, pending, bottlenecks []pendingTask) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Weekly Briefing\n\n")
	fmt.Fprintf(&b, "**Generated**: %s\n", now.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "**Period**: %s to %s\n\n---\n\n", weekStart.Format("2006-01-02"), now.Format("2006-01-02"))

	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&b, "- **Tasks Completed This Week**: %d\n", len(completed))
	fmt.Fprintf(&b, "- **Tasks Pending**: %d\n", len(pending))
	fmt.Fprintf(&b, "- **Bottlenecks (>2 days)**: %d\n\n---\n\n", len(bottlenecks))

	b.WriteString("## Completed Tasks\n\n")
	b.WriteString(formatCompleted(completed))
	b.WriteString("\n\n---\n\n")

	b.WriteString("## Pending Tasks\n\n")
	b.WriteString(formatPending(pending))
	b.WriteString("\n\n---\n\n")

	b.WriteString("## Bottlenecks (Action Required)\n\n")
	b.WriteString(formatBottlenecks(bottlenecks))
	b.WriteString("\n\n---\n\n")

	b.WriteString("## Watcher Health\n\n")
	b.WriteString(g.formatHealth())
	b.WriteString("\n\n---\n\n")

	b.WriteString("## System Metrics\n\n")
	b.WriteString(formatMetrics(totalDone, len(pending)))
	b.WriteString("\n\n---\n\n")

	b.WriteString("## Recommendations\n\n")
	b.WriteString(recommendations(completed, pending, bottlenecks))
	b.WriteString("\n\n---\n\n")

	b.WriteString("## Next Week Focus\n\n")
	b.WriteString("1. Address bottlenecks listed above\n")
	b.WriteString("2. Review pending approvals in Pending_Approval\n")
	b.WriteString("3. Keep the Inbox clear\n")

	return b.String()
}

func formatCompleted(tasks []completedTask) string {
	if len(tasks) == 0 {
		return "*No tasks completed this week*"
	}
	var lines []string
	for i, task := range tasks {
		if i == listLimit {
			lines = append(lines, fmt.Sprintf("- ... and %d more", len(tasks)-listLimit))
			break
		}
		lines = append(lines, fmt.Sprintf("- [x] %s (%s)", task.name, task.done.Format("01/02")))
	}
	return strings.Join(lines, "\n")
}

func formatPending(tasks []pendingTask) string {
	if len(tasks) == 0 {
		return "*No pending tasks*"
	}
	var lines []string
	for i, task := range tasks {
		if i == listLimit {
			lines = append(lines, fmt.Sprintf("- ... and %d more", len(tasks)-listLimit))
			break
		}
		lines = append(lines, fmt.Sprintf("- [ ] %s (%s, %d days)", task.name, task.location, int(task.age.Hours()/24)))
	}
	return strings.Join(lines, "\n")
}

func formatBottlenecks(tasks []pendingTask) string {
	if len(tasks) == 0 {
		return "*No bottlenecks*"
	}
	var lines []string
	for _, task := range tasks {
		lines = append(lines, fmt.Sprintf("- **%s** - %d days in %s", task.name, int(task.age.Hours()/24), task.location))
	}
	return strings.Join(lines, "\n")
}

func (g *Generator) formatHealth() string {
	if g.health == nil {
		return "*No watchers configured*"
	}
	health := g.health()
	if len(health.Watchers) == 0 {
		return "*No watchers configured*"
	}

	var lines []string
	for _, w := range health.Watchers {
		icon := "x"
		if w.IsRunning {
			icon = "+"
		}
		last := "Never"
		if !w.LastCheck.IsZero() {
			last = w.LastCheck.Format("2006-01-02 15:04")
		}
		lines = append(lines, fmt.Sprintf("- [%s] **%s**: Items processed: %d, Last check: %s",
			icon, w.Name, w.ItemsProcessed, last))
	}

	verdict := "UNHEALTHY"
	if health.WatchersHealthy {
		verdict = "Healthy"
	}
	lines = append(lines, fmt.Sprintf("- **Watchdog**: %s", verdict))
	for name, count := range health.RestartCounts {
		if count > 0 {
			lines = append(lines, fmt.Sprintf("  - %s: %d restart(s)", name, count))
		}
	}
	return strings.Join(lines, "\n")
}

func formatMetrics(totalDone, totalPending int) string {
	rate := 0.0
	if total := totalDone + totalPending; total > 0 {
		rate = float64(totalDone) / float64(total) * 100
	}
	return fmt.Sprintf("| Metric | Value |\n|--------|-------|\n| Total Completed (all time) | %d |\n| Currently Pending | %d |\n| Completion Rate | %.1f%% |",
		totalDone, totalPending, rate)
}

func recommendations(completed []completedTask, pending, bottlenecks []pendingTask) string {
	var recs []string
	if len(bottlenecks) > 0 {
		recs = append(recs, fmt.Sprintf("- **Priority**: Clear %d bottleneck(s) that are blocking progress", len(bottlenecks)))
	}
	if len(pending) > 5 {
		recs = append(recs, fmt.Sprintf("- Review and prioritize %d pending tasks", len(pending)))
	}
	approvals := 0
	for _, task := range pending {
		if task.location == string(vault.PendingApproval) {
			approvals++
		}
	}
	if approvals > 0 {
		recs = append(recs, fmt.Sprintf("- %d task(s) awaiting your approval", approvals))
	}
	if len(completed) == 0 {
		recs = append(recs, "- No tasks completed this week - review workload and blockers")
	} else if len(completed) > listLimit {
		recs = append(recs, fmt.Sprintf("- %d tasks completed this week", len(completed)))
	}
	if len(recs) == 0 {
		recs = append(recs, "- System running smoothly, continue current workflow")
	}
	return strings.Join(recs, "\n")
}
