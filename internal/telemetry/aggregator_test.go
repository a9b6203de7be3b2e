package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/forgeworks/warden/internal/diag"
	"github.com/forgeworks/warden/internal/hookio"
)

// captureSink records writes for assertions.
type captureSink struct {
	mu      sync.Mutex
	records []*SessionRecord
}

func (s *captureSink) Write(record *SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

func (s *captureSink) Close() {}

func stopEvent(sessionID, transcriptPath, cwd string) *hookio.Event {
	return &hookio.Event{
		Name:           hookio.EventStop,
		SessionID:      sessionID,
		TranscriptPath: transcriptPath,
		CWD:            cwd,
	}
}

func TestSessionAggregator_WritesLogStoreAndSink(t *testing.T) {
	runtimeDir := t.TempDir()
	transcript := writeTranscript(t,
		toolLine("Read", "memory/projects/demo/notes.md"),
		toolLine("Write", "claudedocs/report.md"),
	)
	store, err := OpenStore(filepath.Join(runtimeDir, "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	sink := &captureSink{}

	a := NewSessionAggregator(runtimeDir, "memory", "context", store, sink, nil)
	a.now = func() time.Time { return time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC) }

	res, err := a.Handle(context.Background(), stopEvent("sess-1", transcript, "/proj"))
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Fatalf("aggregator should be silent, got %+v", res)
	}

	raw, err := os.ReadFile(filepath.Join(runtimeDir, "telemetry.log"))
	if err != nil {
		t.Fatal(err)
	}
	log := string(raw)
	for _, want := range []string{"timestamp: 2026-08-26T12:00:00Z", "session: sess-1", "tools: Read=1 Write=1", "memory: 1 reads, 0 writes"} {
		if !strings.Contains(log, want) {
			t.Fatalf("telemetry log missing %q:\n%s", want, log)
		}
	}

	records, err := store.RecentSessions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].SessionID != "sess-1" {
		t.Fatalf("store records = %+v", records)
	}
	if records[0].ToolCounts["Read"] != 1 {
		t.Fatalf("stored tool counts = %v", records[0].ToolCounts)
	}

	if len(sink.records) != 1 || sink.records[0].SessionID != "sess-1" {
		t.Fatalf("sink records = %+v", sink.records)
	}
}

func TestSessionAggregator_DrainsAndGroupsDiagnostics(t *testing.T) {
	runtimeDir := t.TempDir()
	transcript := writeTranscript(t, toolLine("Bash", ""))
	buffer := diag.New(runtimeDir, zap.NewNop())
	for _, e := range []struct{ source, msg string }{
		{"sandbox", "blocked /etc/shadow"},
		{"freshness", "memory/projects/demo/notes.md is aging"},
		{"freshness", "memory/projects/demo/arch.md is aging"},
	} {
		if err := buffer.Append(e.source, diag.SeverityWarning, e.msg); err != nil {
			t.Fatal(err)
		}
	}

	a := NewSessionAggregator(runtimeDir, "memory", "context", nil, nil, buffer)
	if _, err := a.Handle(context.Background(), stopEvent("sess-1", transcript, "/proj")); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(runtimeDir, "telemetry.log"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "diagnostics: 3 (freshness=2 sandbox=1)"; !strings.Contains(string(raw), want) {
		t.Fatalf("telemetry log missing %q:\n%s", want, raw)
	}
	if buffer.Len() != 0 {
		t.Fatalf("buffer should be drained at session end, %d entries left", buffer.Len())
	}
}

func TestSessionAggregator_AppendsAcrossSessions(t *testing.T) {
	runtimeDir := t.TempDir()
	transcript := writeTranscript(t, toolLine("Bash", ""))
	a := NewSessionAggregator(runtimeDir, "memory", "context", nil, nil, nil)

	for _, id := range []string{"sess-1", "sess-2"} {
		if _, err := a.Handle(context.Background(), stopEvent(id, transcript, "/proj")); err != nil {
			t.Fatal(err)
		}
	}
	raw, _ := os.ReadFile(filepath.Join(runtimeDir, "telemetry.log"))
	if got := strings.Count(string(raw), "session: "); got != 2 {
		t.Fatalf("log blocks = %d, want 2", got)
	}
}

func TestSessionAggregator_StopHookActiveSkipped(t *testing.T) {
	runtimeDir := t.TempDir()
	a := NewSessionAggregator(runtimeDir, "memory", "context", nil, nil, nil)
	ev := stopEvent("sess-1", "/no/such", "/proj")
	ev.StopHookActive = true
	if _, err := a.Handle(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(runtimeDir, "telemetry.log")); !os.IsNotExist(err) {
		t.Fatal("stop_hook_active must not write telemetry")
	}
}
