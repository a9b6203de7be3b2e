package memory

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
	"github.com/forgeworks/warden/internal/lockfile"
)

// Section headings worth carrying across skills. Matched as prefixes of
// "## " headings, case-insensitive.
var insightHeadings = []string{"critical", "security", "breaking", "performance"}

const (
	insightsFileName = "cross_skill_insights.md"
	insightMaxLines  = 6
	insightTagPrefix = "<!-- insight:"
)

// Pollinator copies high-signal sections written into per-skill project
// memory (memory/skills/<skill>/<project>/*.md) into the project's shared
// cross_skill_insights.md so other skills see them. Appends are deduplicated
// by content hash and serialized with a lockfile. Advisory only.
type Pollinator struct {
	memoryDir string
	lockWait  time.Duration
	now       func() time.Time
}

func NewPollinator(memoryDir string, lockWait time.Duration) *Pollinator {
	return &Pollinator{memoryDir: memoryDir, lockWait: lockWait, now: time.Now}
}

func (p *Pollinator) Name() string { return "pollination" }

func (p *Pollinator) Handle(_ context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	path := ev.ToolInput.FilePath
	if ev.ToolName != "Write" && ev.ToolName != "Edit" {
		return dispatch.Allow(), nil
	}
	skill, project, ok := p.skillMemoryPath(path, ev.CWD)
	if !ok {
		return dispatch.Allow(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return dispatch.Allow(), nil
	}
	insights := ExtractInsights(string(raw))
	if len(insights) == 0 {
		return dispatch.Allow(), nil
	}

	target := filepath.Join(ev.CWD, p.memoryDir, "projects", project, insightsFileName)
	appended, err := p.appendInsights(target, skill, insights)
	if err != nil {
		return nil, err
	}
	if appended == 0 {
		return dispatch.Allow(), nil
	}
	return dispatch.AdviseResult(fmt.Sprintf(
		"Cross-skill pollination: %d insight(s) from skill %q shared to %s",
		appended, skill, Rel(target, ev.CWD))), nil
}

// skillMemoryPath recognizes memory/skills/<skill>/<project>/<file>.md and
// returns the skill and project segments.
func (p *Pollinator) skillMemoryPath(path, projectRoot string) (skill, project string, ok bool) {
	if !strings.HasSuffix(path, ".md") || IsOperational(path) {
		return "", "", false
	}
	rel := Rel(path, projectRoot)
	parts := strings.Split(rel, "/")
	if len(parts) < 5 || parts[0] != p.memoryDir || parts[1] != "skills" {
		return "", "", false
	}
	return parts[2], parts[3], true
}

// ExtractInsights pulls out the bodies of high-signal "## " sections,
// condensed to their first few non-empty lines.
func ExtractInsights(content string) []string {
	var insights []string
	lines := strings.Split(content, "\n")
	for i := 0; i < len(lines); i++ {
		heading, ok := insightHeading(lines[i])
		if !ok {
			continue
		}
		var body []string
		for j := i + 1; j < len(lines) && !strings.HasPrefix(lines[j], "## "); j++ {
			if line := strings.TrimSpace(lines[j]); line != "" {
				body = append(body, line)
			}
			if len(body) == insightMaxLines {
				break
			}
		}
		if len(body) > 0 {
			insights = append(insights, heading+"\n"+strings.Join(body, "\n"))
		}
	}
	return insights
}

func insightHeading(line string) (string, bool) {
	if !strings.HasPrefix(line, "## ") {
		return "", false
	}
	title := strings.TrimSpace(strings.TrimPrefix(line, "## "))
	lower := strings.ToLower(title)
	for _, want := range insightHeadings {
		if strings.HasPrefix(lower, want) {
			return title, true
		}
	}
	return "", false
}

func (p *Pollinator) appendInsights(target, skill string, insights []string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("pollinate: %w", err)
	}
	release, err := lockfile.Acquire(target+".lock", p.lockWait)
	if err != nil {
		return 0, nil // contended; the next write retries pollination
	}
	defer release()

	existing, err := os.ReadFile(target)
	if err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("pollinate: read %s: %w", target, err)
	}
	content := string(existing)
	if content == "" {
		content = Marker(p.now()) + "\n# Cross-Skill Insights\n"
	}

	appended := 0
	for _, insight := range insights {
		sum := blake2b.Sum256([]byte(insight))
		tag := insightTagPrefix + " " + hex.EncodeToString(sum[:8]) + " -->"
		if strings.Contains(content, tag) {
			continue
		}
		content += fmt.Sprintf("\n%s\n## %s (via %s, %s)\n%s\n",
			tag, firstLineOf(insight), skill, p.now().Format(markerLayout),
			strings.Join(strings.Split(insight, "\n")[1:], "\n"))
		appended++
	}
	if appended == 0 {
		return 0, nil
	}
	stamped, _ := InjectMarker(content, p.now())
	if err := WriteFileAtomic(target, []byte(stamped), 0o644); err != nil {
		return 0, fmt.Errorf("pollinate: %w", err)
	}
	return appended, nil
}

func firstLineOf(s string) string {
	first, _, _ := cutLine(s)
	return first
}
