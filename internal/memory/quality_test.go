package memory

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/forgeworks/warden/internal/hookio"
)

func writeEvent(path, cwd string) *hookio.Event {
	return &hookio.Event{
		Name:      hookio.EventPostToolUse,
		ToolName:  "Write",
		ToolInput: hookio.ToolInput{FilePath: path},
		CWD:       cwd,
	}
}

func newTestQualityGate(now time.Time) *QualityGate {
	g := NewQualityGate("memory", nil)
	g.now = func() time.Time { return now }
	return g
}

func TestQualityGate_InjectsMarkerOnUnmarkedFile(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	path := writeMemoryFile(t, root, "memory/projects/demo/notes.md", "# Notes\nParser uses two passes.\n")
	g := newTestQualityGate(now)

	res, err := g.Handle(context.Background(), writeEvent(path, root))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(raw), "<!-- Last Updated: 2026-08-26 -->\n# Notes\n") {
		t.Fatalf("marker not injected: %q", string(raw))
	}
	if res == nil || res.Deny {
		t.Fatalf("gate must advise, never deny: %+v", res)
	}
}

func TestQualityGate_RefreshesOldMarker(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	path := writeMemoryFile(t, root, "memory/projects/demo/notes.md",
		"<!-- Last Updated: 2024-01-01 -->\n# Notes\n")
	g := newTestQualityGate(now)

	if _, err := g.Handle(context.Background(), writeEvent(path, root)); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(raw), "<!-- Last Updated: 2026-08-26 -->") {
		t.Fatalf("marker not refreshed: %q", string(raw))
	}
}

func TestQualityGate_CurrentMarkerCleanContentSilent(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	path := writeMemoryFile(t, root, "memory/projects/demo/notes.md",
		"<!-- Last Updated: 2026-08-26 -->\n# Notes\nParser uses two passes.\n")
	g := newTestQualityGate(now)

	res, _ := g.Handle(context.Background(), writeEvent(path, root))
	if res != nil {
		t.Fatalf("already-stamped clean file should be silent, got %+v", res)
	}
}

func TestQualityGate_WarnsAboveCeiling(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	content := "<!-- Last Updated: 2026-08-26 -->\n" + strings.Repeat("line\n", 520)
	path := writeMemoryFile(t, root, "memory/projects/demo/notes.md", content)
	g := newTestQualityGate(now)

	res, _ := g.Handle(context.Background(), writeEvent(path, root))
	if res == nil || res.Deny {
		t.Fatalf("over-ceiling file should advise, got %+v", res)
	}
	if !strings.Contains(res.Context, "ceiling") {
		t.Fatalf("advisory should mention the ceiling: %s", res.Context)
	}
}

func TestQualityGate_WarnsOnVaguePhrasesAndMachinePaths(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	path := writeMemoryFile(t, root, "memory/projects/demo/notes.md",
		"<!-- Last Updated: 2026-08-26 -->\nMade various changes in /home/alice/project.\n")
	g := newTestQualityGate(now)

	res, _ := g.Handle(context.Background(), writeEvent(path, root))
	if res == nil {
		t.Fatal("expected advisories")
	}
	if !strings.Contains(res.Context, "vague phrase") {
		t.Fatalf("missing vague-phrase note: %s", res.Context)
	}
	if !strings.Contains(res.Context, "absolute paths") {
		t.Fatalf("missing path note: %s", res.Context)
	}
}

func TestQualityGate_OperationalFilesExempt(t *testing.T) {
	root := t.TempDir()
	path := writeMemoryFile(t, root, "memory/sync_log.md", "log entry\n")
	g := newTestQualityGate(time.Now())
	res, _ := g.Handle(context.Background(), writeEvent(path, root))
	if res != nil {
		t.Fatalf("operational file should be exempt, got %+v", res)
	}
	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), MarkerPrefix) {
		t.Fatal("operational file must not be stamped")
	}
}
