package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forgeworks/warden/internal/diag"
	"github.com/forgeworks/warden/internal/hookio"
)

// Dispatcher composes handlers while preserving the fail-open,
// first-deny-wins semantics of the wire contract.
type Dispatcher struct {
	rules    *RuleTable
	handlers map[string]Handler
	timeout  time.Duration
	buffer   *diag.Buffer
	logger   *zap.Logger
}

// NewDispatcher builds a dispatcher over the compiled rule table and the
// registered handler set.
func NewDispatcher(rules *RuleTable, handlers []Handler, timeout time.Duration, buffer *diag.Buffer, logger *zap.Logger) *Dispatcher {
	byName := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		byName[h.Name()] = h
	}
	return &Dispatcher{
		rules:    rules,
		handlers: byName,
		timeout:  timeout,
		buffer:   buffer,
		logger:   logger,
	}
}

// handlerOutcome carries one handler run's result over the channel so the
// dispatcher can keep its own deadline even if the handler never returns.
type handlerOutcome struct {
	result *Result
	err    error
}

// Dispatch runs the handlers matching the event in manifest order and
// aggregates their decisions into one document.
//
// Blocking events short-circuit on the first deny; warnings produced by
// handlers that already ran are still surfaced. Observe-only events always
// run every handler since they cannot block. A handler crash or timeout is
// treated as allow-with-warning — infrastructure failure never blocks the
// underlying action.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *hookio.Event) *hookio.Decision {
	names := d.rules.Select(ev.Name, ev.ToolName)

	var contexts []string
	for _, name := range names {
		h, ok := d.handlers[name]
		if !ok {
			d.report(name, "handler registered in manifest but not built in")
			continue
		}

		result, err := d.runOne(ctx, h, ev)
		if err != nil {
			d.report(name, err.Error())
			continue
		}
		if result == nil {
			continue
		}
		if result.Context != "" {
			contexts = append(contexts, result.Context)
		}
		if result.Deny {
			if ev.Blocking() {
				dec := hookio.Deny(ev.Name, result.Reason)
				dec.AdditionalContext = strings.Join(contexts, "\n\n")
				return dec
			}
			// Handlers on non-blocking events cannot deny; demote to a
			// buffered warning so the signal is not lost.
			d.report(name, "deny rendered on non-blocking event: "+result.Reason)
		}
	}

	if len(contexts) == 0 {
		return nil
	}
	return hookio.Advise(strings.Join(contexts, "\n\n"))
}

// runOne invokes a single handler under the wall-clock budget, recovering
// panics. Exceeding the budget is treated identically to a crash.
func (d *Dispatcher) runOne(ctx context.Context, h Handler, ev *hookio.Event) (*Result, error) {
	hctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ch := make(chan handlerOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- handlerOutcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		result, err := h.Handle(hctx, ev)
		ch <- handlerOutcome{result: result, err: err}
	}()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-hctx.Done():
		return nil, fmt.Errorf("handler timeout after %s", d.timeout)
	}
}

// report logs a soft failure to both the logger and the diagnostic buffer.
func (d *Dispatcher) report(handler, detail string) {
	d.logger.Warn("handler soft failure",
		zap.String("handler", handler),
		zap.String("detail", detail),
	)
	if d.buffer != nil {
		d.buffer.Append(handler, diag.SeverityWarning, detail)
	}
}
