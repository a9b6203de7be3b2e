package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forgeworks/warden/internal/hookio"
)

func TestClassifyBoundaries(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		daysAgo int
		want    State
	}{
		{0, StateFresh},
		{30, StateFresh},
		{31, StateAging},
		{90, StateAging},
		{91, StateStale},
		{400, StateStale},
	}
	for _, c := range cases {
		got := Classify(now.AddDate(0, 0, -c.daysAgo), now)
		if got != c.want {
			t.Fatalf("%d days ago: got %s, want %s", c.daysAgo, got, c.want)
		}
	}
}

func TestClassifyFirstLine(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	state, lastUpdated := ClassifyFirstLine("<!-- Last Updated: 2026-08-20 -->", now)
	if state != StateFresh {
		t.Fatalf("state = %s, want fresh", state)
	}
	if lastUpdated.Format("2006-01-02") != "2026-08-20" {
		t.Fatalf("lastUpdated = %s", lastUpdated)
	}

	for _, firstLine := range []string{"# Notes", "", "<!-- Last Updated: yesterday -->"} {
		if state, _ := ClassifyFirstLine(firstLine, now); state != StateGhost {
			t.Fatalf("ClassifyFirstLine(%q) = %s, want ghost", firstLine, state)
		}
	}
}

func writeMemoryFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readEvent(path, cwd string) *hookio.Event {
	return &hookio.Event{
		Name:      hookio.EventPreToolUse,
		ToolName:  "Read",
		ToolInput: hookio.ToolInput{FilePath: path},
		CWD:       cwd,
	}
}

func newTestGate(now time.Time) *FreshnessGate {
	g := NewFreshnessGate("memory")
	g.now = func() time.Time { return now }
	return g
}

func TestFreshnessGate_FreshFileSilent(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	path := writeMemoryFile(t, root, "memory/projects/demo/notes.md",
		"<!-- Last Updated: 2026-08-20 -->\n# Notes\n")
	g := newTestGate(now)
	res, err := g.Handle(context.Background(), readEvent(path, root))
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Fatalf("fresh file should be silent, got %+v", res)
	}
}

func TestFreshnessGate_AgingFileAdvises(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	path := writeMemoryFile(t, root, "memory/projects/demo/notes.md",
		"<!-- Last Updated: 2026-06-01 -->\n# Notes\n")
	g := newTestGate(now)
	res, _ := g.Handle(context.Background(), readEvent(path, root))
	if res == nil || res.Deny {
		t.Fatalf("aging file should advise, got %+v", res)
	}
	if !strings.Contains(res.Context, "aging") {
		t.Fatalf("advisory should mention aging: %s", res.Context)
	}
}

func TestFreshnessGate_StaleFileDenied(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	path := writeMemoryFile(t, root, "memory/projects/demo/notes.md",
		"<!-- Last Updated: 2025-01-01 -->\n# Notes\n")
	g := newTestGate(now)
	res, _ := g.Handle(context.Background(), readEvent(path, root))
	if res == nil || !res.Deny {
		t.Fatal("stale file read must be denied")
	}
	if !strings.Contains(res.Reason, "stale") {
		t.Fatalf("reason should mention staleness: %s", res.Reason)
	}
}

func TestFreshnessGate_MissingMarkerDenied(t *testing.T) {
	root := t.TempDir()
	path := writeMemoryFile(t, root, "memory/projects/demo/notes.md", "# Notes without marker\n")
	g := newTestGate(time.Now())
	res, _ := g.Handle(context.Background(), readEvent(path, root))
	if res == nil || !res.Deny {
		t.Fatal("unmarked memory file read must be denied")
	}
	if !strings.Contains(res.Reason, "Last Updated") {
		t.Fatalf("reason should explain the marker: %s", res.Reason)
	}
}

func TestFreshnessGate_OperationalFilesExempt(t *testing.T) {
	root := t.TempDir()
	path := writeMemoryFile(t, root, "memory/index.md", "# Index, no marker needed\n")
	g := newTestGate(time.Now())
	res, _ := g.Handle(context.Background(), readEvent(path, root))
	if res != nil {
		t.Fatalf("operational file should be exempt, got %+v", res)
	}
}

func TestFreshnessGate_NonMemoryReadsIgnored(t *testing.T) {
	root := t.TempDir()
	path := writeMemoryFile(t, root, "src/main.go", "package main\n")
	g := newTestGate(time.Now())
	res, _ := g.Handle(context.Background(), readEvent(path, root))
	if res != nil {
		t.Fatalf("non-memory read should be ignored, got %+v", res)
	}
}
