// Package audit records workflow decisions as an append-only event log.
//
// Every consequential transition (plan created, task approved, watchdog
// restart) emits one event. The file sink writes JSON lines under the
// vault's Logs directory so the trail lives next to the state it
// describes.
//
// Import rules:
//   - CAN import: internal/clock, internal/constants, std lib
//   - MUST NOT import: internal/vault, internal/workflow
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aide-sh/aide/internal/constants"
)

// EventType identifies the kind of workflow event.
type EventType string

// Workflow event types.
const (
	EventPlanCreated         EventType = "plan_created"
	EventTaskPendingApproval EventType = "task_pending_approval"
	EventTaskAutoApproved    EventType = "task_auto_approved"
	EventTaskApproved        EventType = "task_approved"
	EventTaskCompleted       EventType = "task_completed"
	EventTaskRejected        EventType = "task_rejected"
	EventTaskProcessError    EventType = "task_process_error"
	EventApprovalError       EventType = "approval_process_error"
	EventMultiStepCreated    EventType = "multistep_created"
	EventMultiStepAdvanced   EventType = "multistep_advanced"
	EventMultiStepCompleted  EventType = "multistep_completed"
	EventMultiStepFailed     EventType = "multistep_failed"
	EventInboxCaptured       EventType = "inbox_captured"
	EventWatchdogRestart     EventType = "watchdog_restart"
	EventWatchdogAlert       EventType = "watchdog_alert"
	EventBriefingGenerated   EventType = "briefing_generated"
	EventSystemStarted       EventType = "system_started"
	EventSystemStopped       EventType = "system_stopped"
)

// String implements fmt.Stringer.
func (e EventType) String() string {
	return string(e)
}

// Event is a single audit record.
type Event struct {
	Time   time.Time      `json:"time"`
	Type   EventType      `json:"type"`
	Task   string         `json:"task,omitempty"`
	Detail string         `json:"detail,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Sink receives audit events. Implementations must tolerate concurrent
// Record calls.
type Sink interface {
	Record(event Event)
}

// FileSink appends events as JSON lines to a rotating file.
type FileSink struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// NewFileSink creates a sink writing to audit.jsonl inside logDir, with
// size-based rotation.
func NewFileSink(logDir string) *FileSink {
	return &FileSink{
		w: &lumberjack.Logger{
			Filename:   filepath.Join(logDir, constants.AuditLogFileName),
			MaxSize:    constants.LogMaxSizeMB,
			MaxBackups: constants.LogMaxBackups,
			MaxAge:     constants.LogMaxAgeDays,
			Compress:   constants.LogCompress,
		},
	}
}

// Record appends one event. Serialization failures are swallowed: the
// audit trail must never break the workflow it observes.
func (s *FileSink) Record(event Event) {
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(line)
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Close(); err != nil {
		return fmt.Errorf("failed to close audit sink: %w", err)
	}
	return nil
}

// NopSink discards all events.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(Event) {}

// MemSink collects events in memory for tests and status reporting.
type MemSink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemSink creates an empty in-memory sink.
func NewMemSink() *MemSink {
	return &MemSink{}
}

// Record implements Sink.
func (s *MemSink) Record(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of all recorded events in order.
func (s *MemSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Types returns the sorted set of distinct event types recorded.
func (s *MemSink) Types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[EventType]bool, len(s.events))
	for _, e := range s.events {
		seen[e.Type] = true
	}
	types := make([]EventType, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// EventsOf returns the recorded events of the given type in order.
func (s *MemSink) EventsOf(eventType EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// CountOf returns how many events of the given type were recorded.
func (s *MemSink) CountOf(eventType EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, e := range s.events {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

// Interface guards.
var (
	_ Sink = (*FileSink)(nil)
	_ Sink = (*MemSink)(nil)
	_ Sink = NopSink{}
)
