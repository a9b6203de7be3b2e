package memory

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
)

// Phrases that carry no information a future session can act on.
var vaguePhrases = []string{
	"various changes",
	"several improvements",
	"some updates",
	"misc fixes",
	"minor tweaks",
	"stuff",
	"etc.",
}

var machinePathPattern = regexp.MustCompile(`(?:/home/|/Users/)\w+`)

// QualityGate runs after a memory file is written: it stamps the freshness
// marker to today and surfaces advisories for content that will age badly.
// It never denies; the write has already happened.
type QualityGate struct {
	memoryDir string
	ceilings  map[string]int
	now       func() time.Time
}

func NewQualityGate(memoryDir string, ceilings map[string]int) *QualityGate {
	return &QualityGate{memoryDir: memoryDir, ceilings: ceilings, now: time.Now}
}

func (g *QualityGate) Name() string { return "memory_quality" }

func (g *QualityGate) Handle(_ context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	path := ev.ToolInput.FilePath
	if (ev.ToolName != "Write" && ev.ToolName != "Edit") ||
		!IsMemoryPath(path, ev.CWD, g.memoryDir) || IsOperational(path) {
		return dispatch.Allow(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return dispatch.Allow(), nil
	}
	content := string(raw)

	stamped, changed := InjectMarker(content, g.now())
	if changed {
		if err := WriteFileAtomic(path, []byte(stamped), 0o644); err != nil {
			return nil, fmt.Errorf("quality gate: stamp %s: %w", path, err)
		}
		content = stamped
	}

	var notes []string
	if changed {
		notes = append(notes, "freshness marker updated to today")
	}
	lineCount := strings.Count(content, "\n") + 1
	if ceiling := LineCeiling(path, g.ceilings); lineCount > ceiling {
		notes = append(notes, fmt.Sprintf("file is %d lines, above its %d-line ceiling; it will be pruned at session end", lineCount, ceiling))
	}
	lower := strings.ToLower(content)
	for _, phrase := range vaguePhrases {
		if strings.Contains(lower, phrase) {
			notes = append(notes, fmt.Sprintf("vague phrase %q; record what specifically changed", phrase))
			break
		}
	}
	if machinePathPattern.MatchString(content) {
		notes = append(notes, "contains machine-local absolute paths; prefer project-relative paths")
	}

	if len(notes) == 0 {
		return dispatch.Allow(), nil
	}
	return dispatch.AdviseResult(fmt.Sprintf("Memory quality (%s):\n  - %s",
		Rel(path, ev.CWD), strings.Join(notes, "\n  - "))), nil
}
