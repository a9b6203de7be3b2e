// Package dispatch resolves which registered handlers apply to a tool-use
// event, invokes them in manifest order under a wall-clock budget, and
// aggregates their decisions. Handler crashes and timeouts fail open: the
// action proceeds with a warning in the diagnostic buffer, never a block.
package dispatch

import (
	"context"

	"github.com/forgeworks/warden/internal/hookio"
)

// Handler is the interface every policy/observer unit implements.
// Implementations must respect context deadlines, return quickly, and
// tolerate being invoked more than once with an identical event without
// duplicating side effects — replayed events are expected.
type Handler interface {
	// Name returns the handler's unique identifier used in the manifest.
	Name() string

	// Handle evaluates one event. A nil Result means implicit allow.
	Handle(ctx context.Context, ev *hookio.Event) (*Result, error)
}

// Result is one handler's decision for one event.
type Result struct {
	// Deny blocks the underlying action; Reason is surfaced verbatim.
	Deny   bool
	Reason string

	// Context is non-blocking advisory output attached to the decision.
	Context string
}

// Allow is the implicit result of a handler with nothing to say.
func Allow() *Result { return nil }

// DenyResult builds a blocking result.
func DenyResult(reason string) *Result {
	return &Result{Deny: true, Reason: reason}
}

// AdviseResult builds a non-blocking result carrying context.
func AdviseResult(context string) *Result {
	return &Result{Context: context}
}
