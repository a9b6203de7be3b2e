package telemetry

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgeworks/warden/internal/diag"
	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
)

// HealthEmitter drains the shared diagnostic buffer after each tool use
// and surfaces the accumulated findings as one consolidated report. Silent
// when the buffer is empty, which is the common case.
type HealthEmitter struct {
	buffer *diag.Buffer
}

func NewHealthEmitter(buffer *diag.Buffer) *HealthEmitter {
	return &HealthEmitter{buffer: buffer}
}

func (e *HealthEmitter) Name() string { return "health_emitter" }

func (e *HealthEmitter) Handle(_ context.Context, _ *hookio.Event) (*dispatch.Result, error) {
	entries, err := e.buffer.Drain()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return dispatch.Allow(), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Engine health report (%d finding(s)):\n", len(entries))
	for _, entry := range entries {
		fmt.Fprintf(&b, "  - [%s] %s: %s\n", entry.Severity, entry.Source, entry.Message)
	}
	return dispatch.AdviseResult(strings.TrimRight(b.String(), "\n")), nil
}
