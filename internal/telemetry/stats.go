package telemetry

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
)

// SessionStats is what ParseTranscript extracts from one session log.
type SessionStats struct {
	ToolCounts   map[string]uint32
	Skills       []string
	Commands     []string
	MemoryReads  uint32
	MemoryWrites uint32
	ContextLoads uint32
	ContextFiles []string
}

var (
	toolNamePattern = regexp.MustCompile(`"tool_name"\s*:\s*"(\w+)"`)
	filePathPattern = regexp.MustCompile(`"file_path"\s*:\s*"([^"]+)"`)
	skillDocPattern = regexp.MustCompile(`skills/([\w\-]+)/SKILL\.md`)
	commandPattern  = regexp.MustCompile(`"prompt"\s*:\s*"(/[\w\-]+)`)
)

// ParseTranscript scans a transcript line by line for tool uses, skill
// invocations, slash commands and memory/context traffic. The format is
// treated as opaque text; only the JSON field fragments above are trusted.
func ParseTranscript(path, memoryDir, contextDir string) (*SessionStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stats := &SessionStats{ToolCounts: map[string]uint32{}}
	seenSkills := map[string]struct{}{}
	seenContext := map[string]struct{}{}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()

		tool := ""
		if m := toolNamePattern.FindStringSubmatch(line); m != nil {
			tool = m[1]
			stats.ToolCounts[tool]++
		}
		if m := skillDocPattern.FindStringSubmatch(line); m != nil {
			if _, ok := seenSkills[m[1]]; !ok {
				seenSkills[m[1]] = struct{}{}
				stats.Skills = append(stats.Skills, m[1])
			}
		}
		if m := commandPattern.FindStringSubmatch(line); m != nil {
			stats.Commands = append(stats.Commands, strings.TrimPrefix(m[1], "/"))
		}
		for _, m := range filePathPattern.FindAllStringSubmatch(line, -1) {
			path := m[1]
			switch {
			case pathInDir(path, memoryDir):
				switch tool {
				case "Read":
					stats.MemoryReads++
				case "Write", "Edit":
					stats.MemoryWrites++
				}
			case pathInDir(path, contextDir):
				if tool == "Read" {
					stats.ContextLoads++
					if _, ok := seenContext[path]; !ok {
						seenContext[path] = struct{}{}
						stats.ContextFiles = append(stats.ContextFiles, path)
					}
				}
			}
		}
	}
	return stats, sc.Err()
}

func pathInDir(path, dir string) bool {
	return strings.Contains(path, "/"+dir+"/") || strings.HasPrefix(path, dir+"/")
}

// Summary renders the stats as the telemetry log block format.
func (s *SessionStats) Summary() string {
	var b strings.Builder
	if len(s.ToolCounts) > 0 {
		names := make([]string, 0, len(s.ToolCounts))
		for name := range s.ToolCounts {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%d", name, s.ToolCounts[name]))
		}
		fmt.Fprintf(&b, "tools: %s\n", strings.Join(parts, " "))
	}
	if len(s.Skills) > 0 {
		fmt.Fprintf(&b, "skills: %s\n", strings.Join(s.Skills, ", "))
	}
	if len(s.Commands) > 0 {
		fmt.Fprintf(&b, "commands: %s\n", strings.Join(s.Commands, ", "))
	}
	fmt.Fprintf(&b, "memory: %d reads, %d writes\n", s.MemoryReads, s.MemoryWrites)
	fmt.Fprintf(&b, "context: %d loads\n", s.ContextLoads)
	return b.String()
}

// ContextUsageReporter answers PreCompact with the context documents the
// session has loaded so far, so what mattered can be re-loaded first after
// compaction. Advisory only.
type ContextUsageReporter struct {
	memoryDir  string
	contextDir string
}

func NewContextUsageReporter(memoryDir, contextDir string) *ContextUsageReporter {
	return &ContextUsageReporter{memoryDir: memoryDir, contextDir: contextDir}
}

func (r *ContextUsageReporter) Name() string { return "context_usage" }

func (r *ContextUsageReporter) Handle(_ context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	if ev.TranscriptPath == "" {
		return dispatch.Allow(), nil
	}
	stats, err := ParseTranscript(ev.TranscriptPath, r.memoryDir, r.contextDir)
	if err != nil {
		return dispatch.Allow(), nil
	}
	if len(stats.ContextFiles) == 0 && stats.MemoryReads == 0 {
		return dispatch.Allow(), nil
	}
	var b strings.Builder
	b.WriteString("Context usage before compaction:\n")
	for _, file := range stats.ContextFiles {
		fmt.Fprintf(&b, "  - %s\n", file)
	}
	fmt.Fprintf(&b, "memory reads this session: %d\nRe-load these first if they are still relevant after compaction.", stats.MemoryReads)
	return dispatch.AdviseResult(b.String()), nil
}
