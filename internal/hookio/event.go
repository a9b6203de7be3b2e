// Package hookio implements the wire contract between the host agent and
// the hook engine: one JSON event on stdin per invocation, an optional
// decision document on stdout, and exit-code semantics (0 allow, 2 deny).
package hookio

import (
	"encoding/json"
	"fmt"
	"io"
)

// Event names the host emits. The field set differs per event; unknown
// fields are ignored so the engine stays compatible with host additions.
const (
	EventPreToolUse       = "PreToolUse"
	EventPostToolUse      = "PostToolUse"
	EventUserPromptSubmit = "UserPromptSubmit"
	EventStop             = "Stop"
	EventSessionStart     = "SessionStart"
	EventSessionEnd       = "SessionEnd"
	EventSubagentStart    = "SubagentStart"
	EventPreCompact       = "PreCompact"
	EventTaskCompleted    = "TaskCompleted"
)

// ToolInput carries the tool-specific argument fields. Only the fields
// relevant to the invoking tool are populated.
type ToolInput struct {
	FilePath string `json:"file_path,omitempty"`
	Command  string `json:"command,omitempty"`
	Content  string `json:"content,omitempty"`
}

// Event is one structured record per tool-use occurrence. Immutable after
// decoding; constructed once per invocation and discarded after dispatch.
type Event struct {
	Name           string    `json:"hook_event_name"`
	ToolName       string    `json:"tool_name"`
	ToolInput      ToolInput `json:"tool_input"`
	Prompt         string    `json:"prompt,omitempty"`
	SessionID      string    `json:"session_id"`
	TranscriptPath string    `json:"transcript_path,omitempty"`
	CWD            string    `json:"cwd"`
	StopHookActive bool      `json:"stop_hook_active,omitempty"`
	TaskID         string    `json:"task_id,omitempty"`
	TaskSubject    string    `json:"task_subject,omitempty"`
	AgentType      string    `json:"agent_type,omitempty"`
	AgentID        string    `json:"agent_id,omitempty"`
	Trigger        string    `json:"trigger,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

// DecodeEvent reads one event document from r. The event name argument, if
// non-empty, overrides the document's hook_event_name — the host passes the
// event as an argument in its registration manifest, which is authoritative.
func DecodeEvent(r io.Reader, eventName string) (*Event, error) {
	var ev Event
	dec := json.NewDecoder(r)
	if err := dec.Decode(&ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if eventName != "" {
		ev.Name = eventName
	}
	return &ev, nil
}

// Blocking reports whether handlers on this event type may deny the
// underlying action. Post-action and telemetry-only events cannot block,
// so every handler always runs for them.
func (e *Event) Blocking() bool {
	switch e.Name {
	case EventPreToolUse, EventUserPromptSubmit:
		return true
	default:
		return false
	}
}
