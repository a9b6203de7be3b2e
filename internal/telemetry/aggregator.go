package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/forgeworks/warden/internal/diag"
	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
)

const telemetryLogFile = "telemetry.log"

// SessionAggregator summarizes the session at stop time: one block appended
// to the local telemetry log, a row in the session store, and a record to
// the fleet sink when one is configured.
type SessionAggregator struct {
	runtimeDir string
	memoryDir  string
	contextDir string
	store      *Store
	sink       EventSink
	buffer     *diag.Buffer
	now        func() time.Time
}

// NewSessionAggregator wires the aggregator. store, sink and buffer are
// each optional; a nil value skips that destination.
func NewSessionAggregator(runtimeDir, memoryDir, contextDir string, store *Store, sink EventSink, buffer *diag.Buffer) *SessionAggregator {
	return &SessionAggregator{
		runtimeDir: runtimeDir,
		memoryDir:  memoryDir,
		contextDir: contextDir,
		store:      store,
		sink:       sink,
		buffer:     buffer,
		now:        time.Now,
	}
}

func (a *SessionAggregator) Name() string { return "session_telemetry" }

func (a *SessionAggregator) Handle(_ context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	if ev.StopHookActive || ev.TranscriptPath == "" {
		return dispatch.Allow(), nil
	}
	stats, err := ParseTranscript(ev.TranscriptPath, a.memoryDir, a.contextDir)
	if err != nil {
		return dispatch.Allow(), nil // no transcript, nothing to aggregate
	}

	record := &SessionRecord{
		SessionID:    ev.SessionID,
		ProjectRoot:  ev.CWD,
		EndedAt:      a.now(),
		ToolCounts:   stats.ToolCounts,
		Skills:       stats.Skills,
		Commands:     stats.Commands,
		MemoryReads:  stats.MemoryReads,
		MemoryWrites: stats.MemoryWrites,
		ContextLoads: stats.ContextLoads,
	}
	var findings []diag.Entry
	if a.buffer != nil {
		// Drain rather than peek: the session boundary consumes the
		// buffer so the next session starts empty.
		findings, _ = a.buffer.Drain()
		record.Diagnostics = uint32(len(findings))
	}

	if err := a.appendLog(ev.SessionID, stats, findings); err != nil {
		return nil, err
	}
	if a.store != nil {
		if err := a.store.RecordSession(record); err != nil {
			return nil, err
		}
	}
	if a.sink != nil {
		a.sink.Write(record)
	}
	return dispatch.Allow(), nil
}

func (a *SessionAggregator) appendLog(sessionID string, stats *SessionStats, findings []diag.Entry) error {
	if err := os.MkdirAll(a.runtimeDir, 0o755); err != nil {
		return fmt.Errorf("telemetry log: %w", err)
	}
	path := filepath.Join(a.runtimeDir, telemetryLogFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("telemetry log: %w", err)
	}
	defer f.Close()

	block := fmt.Sprintf("timestamp: %s\nsession: %s\n%sdiagnostics: %s\n\n",
		a.now().Format(time.RFC3339), sessionID, stats.Summary(), diagnosticSummary(findings))
	if _, err := f.WriteString(block); err != nil {
		return fmt.Errorf("telemetry log: %w", err)
	}
	return nil
}

// diagnosticSummary consolidates drained findings by source, e.g.
// "3 (freshness=2 sandbox=1)".
func diagnosticSummary(findings []diag.Entry) string {
	if len(findings) == 0 {
		return "0"
	}
	bySource := map[string]int{}
	for _, e := range findings {
		src := e.Source
		if src == "" {
			src = "unknown"
		}
		bySource[src]++
	}
	sources := make([]string, 0, len(bySource))
	for src := range bySource {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	parts := make([]string, 0, len(sources))
	for _, src := range sources {
		parts = append(parts, fmt.Sprintf("%s=%d", src, bySource[src]))
	}
	return fmt.Sprintf("%d (%s)", len(findings), strings.Join(parts, " "))
}
