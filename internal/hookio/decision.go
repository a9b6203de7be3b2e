package hookio

import (
	"encoding/json"
	"io"
)

// Permission decisions a handler may render on a blockable event.
const (
	PermissionAllow = "allow"
	PermissionDeny  = "deny"
)

// Exit codes the host interprets. Anything else is undefined and treated
// by the host as allow-with-warning.
const (
	ExitAllow = 0
	ExitDeny  = 2
)

// HookSpecificOutput is the permission block of the decision document.
type HookSpecificOutput struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
}

// Decision is the document written to stdout. Absence of output is
// interpreted by the host as an implicit allow with empty reason.
type Decision struct {
	HookSpecificOutput *HookSpecificOutput `json:"hookSpecificOutput,omitempty"`
	AdditionalContext  string              `json:"additionalContext,omitempty"`
}

// Deny builds an explicit deny decision for the given event.
func Deny(eventName, reason string) *Decision {
	return &Decision{
		HookSpecificOutput: &HookSpecificOutput{
			HookEventName:            eventName,
			PermissionDecision:       PermissionDeny,
			PermissionDecisionReason: reason,
		},
	}
}

// Advise builds an allow decision carrying non-blocking context.
func Advise(context string) *Decision {
	return &Decision{AdditionalContext: context}
}

// Empty reports whether writing this decision would carry no information.
// Silent exit is preferred over an empty JSON document.
func (d *Decision) Empty() bool {
	return d == nil || (d.HookSpecificOutput == nil && d.AdditionalContext == "")
}

// Denied reports whether the decision blocks the underlying action.
func (d *Decision) Denied() bool {
	return d != nil && d.HookSpecificOutput != nil &&
		d.HookSpecificOutput.PermissionDecision == PermissionDeny
}

// ExitCode maps the decision onto the process exit contract.
func (d *Decision) ExitCode() int {
	if d.Denied() {
		return ExitDeny
	}
	return ExitAllow
}

// Write renders the decision to w. Empty decisions write nothing.
func (d *Decision) Write(w io.Writer) error {
	if d.Empty() {
		return nil
	}
	enc := json.NewEncoder(w)
	return enc.Encode(d)
}
