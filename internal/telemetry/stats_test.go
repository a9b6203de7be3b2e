package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forgeworks/warden/internal/hookio"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func toolLine(tool, filePath string) string {
	return `{"type":"tool_use","tool_name":"` + tool + `","tool_input":{"file_path":"` + filePath + `"}}`
}

func TestParseTranscript(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"user","prompt":"/review the parser"}`,
		toolLine("Read", "skills/code-review/SKILL.md"),
		toolLine("Read", "memory/projects/demo/notes.md"),
		toolLine("Read", "context/python/patterns.md"),
		toolLine("Read", "context/python/patterns.md"),
		toolLine("Edit", "memory/projects/demo/notes.md"),
		toolLine("Bash", ""),
		toolLine("Write", "claudedocs/review.md"),
	)
	stats, err := ParseTranscript(path, "memory", "context")
	if err != nil {
		t.Fatal(err)
	}
	if stats.ToolCounts["Read"] != 4 || stats.ToolCounts["Edit"] != 1 || stats.ToolCounts["Bash"] != 1 {
		t.Fatalf("tool counts wrong: %v", stats.ToolCounts)
	}
	if len(stats.Skills) != 1 || stats.Skills[0] != "code-review" {
		t.Fatalf("skills = %v", stats.Skills)
	}
	if len(stats.Commands) != 1 || stats.Commands[0] != "review" {
		t.Fatalf("commands = %v", stats.Commands)
	}
	if stats.MemoryReads != 1 || stats.MemoryWrites != 1 {
		t.Fatalf("memory traffic = %d reads, %d writes", stats.MemoryReads, stats.MemoryWrites)
	}
	if stats.ContextLoads != 2 || len(stats.ContextFiles) != 1 {
		t.Fatalf("context = %d loads, files %v", stats.ContextLoads, stats.ContextFiles)
	}
}

func TestSessionStats_Summary(t *testing.T) {
	stats := &SessionStats{
		ToolCounts:  map[string]uint32{"Read": 3, "Bash": 1},
		Skills:      []string{"code-review"},
		Commands:    []string{"review"},
		MemoryReads: 2,
	}
	summary := stats.Summary()
	for _, want := range []string{"tools: Bash=1 Read=3", "skills: code-review", "commands: review", "memory: 2 reads, 0 writes", "context: 0 loads"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestContextUsageReporter_ListsLoadedContext(t *testing.T) {
	path := writeTranscript(t,
		toolLine("Read", "context/python/patterns.md"),
		toolLine("Read", "memory/projects/demo/notes.md"),
	)
	r := NewContextUsageReporter("memory", "context")
	ev := &hookio.Event{Name: hookio.EventPreCompact, TranscriptPath: path, Trigger: "auto"}
	res, err := r.Handle(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.Deny {
		t.Fatalf("expected advisory, got %+v", res)
	}
	if !strings.Contains(res.Context, "context/python/patterns.md") {
		t.Fatalf("loaded context not listed: %s", res.Context)
	}
}

func TestContextUsageReporter_QuietSession(t *testing.T) {
	path := writeTranscript(t, toolLine("Bash", ""))
	r := NewContextUsageReporter("memory", "context")
	res, _ := r.Handle(context.Background(), &hookio.Event{Name: hookio.EventPreCompact, TranscriptPath: path})
	if res != nil {
		t.Fatalf("no context traffic means silence, got %+v", res)
	}
}

func TestContextUsageReporter_MissingTranscript(t *testing.T) {
	r := NewContextUsageReporter("memory", "context")
	res, err := r.Handle(context.Background(), &hookio.Event{Name: hookio.EventPreCompact, TranscriptPath: "/no/such"})
	if err != nil || res != nil {
		t.Fatalf("missing transcript must fail open: %+v, %v", res, err)
	}
}
