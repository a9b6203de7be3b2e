package compliance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
	"github.com/forgeworks/warden/internal/memory"
)

// Score weights per dimension.
const (
	weightCompleteness  = 30
	weightActionability = 30
	weightFormatting    = 25
	weightNaming        = 15
)

const scoreTagPrefix = "<!-- quality-score:"

var (
	kebabNamePattern  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*\.md$`)
	actionWordPattern = regexp.MustCompile(`(?i)^#{2,3}\s+(?:recommendations?|next steps|action items?|remediation)`)
	scoreTagPattern   = regexp.MustCompile(`(?m)^<!-- quality-score:.*-->\n?`)
)

// QualityScore is the scored breakdown for one generated document.
type QualityScore struct {
	Completeness  int
	Actionability int
	Formatting    int
	Naming        int
}

func (s QualityScore) Total() int {
	return s.Completeness + s.Actionability + s.Formatting + s.Naming
}

func (s QualityScore) Grade() string {
	switch total := s.Total(); {
	case total >= 90:
		return "A"
	case total >= 80:
		return "B"
	case total >= 70:
		return "C"
	case total >= 60:
		return "D"
	default:
		return "F"
	}
}

// OutputScorer grades generated documents after they land in the output
// directory and stamps the breakdown into the file. Advisory only.
type OutputScorer struct {
	outputDir string
	now       func() time.Time
}

func NewOutputScorer(outputDir string) *OutputScorer {
	return &OutputScorer{outputDir: outputDir, now: time.Now}
}

func (s *OutputScorer) Name() string { return "output_score" }

func (s *OutputScorer) Handle(_ context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	path := ev.ToolInput.FilePath
	if (ev.ToolName != "Write" && ev.ToolName != "Edit") || !s.scoredPath(path, ev.CWD) {
		return dispatch.Allow(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return dispatch.Allow(), nil
	}
	// Strip any previous stamp so rescoring is stable.
	content := scoreTagPattern.ReplaceAllString(string(raw), "")

	score := ScoreDocument(filepath.Base(path), content)
	stamp := fmt.Sprintf("%s %d/100 (%s) completeness=%d actionability=%d formatting=%d naming=%d %s -->\n",
		scoreTagPrefix, score.Total(), score.Grade(),
		score.Completeness, score.Actionability, score.Formatting, score.Naming,
		s.now().Format("2006-01-02"))
	stamped := strings.TrimRight(content, "\n") + "\n\n" + stamp
	if err := memory.WriteFileAtomic(path, []byte(stamped), 0o644); err != nil {
		return nil, fmt.Errorf("output score: %w", err)
	}
	return dispatch.AdviseResult(fmt.Sprintf("Output quality: %s scored %d/100 (%s)",
		memory.Rel(path, ev.CWD), score.Total(), score.Grade())), nil
}

// scoredPath limits scoring to markdown in the output directory, excluding
// the archive tree and its manifest.
func (s *OutputScorer) scoredPath(path, projectRoot string) bool {
	if !strings.HasSuffix(path, ".md") {
		return false
	}
	rel := memory.Rel(path, projectRoot)
	if !strings.HasPrefix(rel, s.outputDir+"/") {
		return false
	}
	if strings.HasPrefix(rel, s.outputDir+"/archive/") {
		return false
	}
	return filepath.Base(rel) != "manifest.md"
}

// ScoreDocument grades one document by name and content.
func ScoreDocument(name, content string) QualityScore {
	lines := strings.Split(content, "\n")
	var score QualityScore

	// Completeness: a title, real section structure and enough substance.
	if strings.HasPrefix(strings.TrimSpace(content), "# ") {
		score.Completeness += 10
	}
	if sectionCount(lines) >= 3 {
		score.Completeness += 10
	}
	if nonEmptyCount(lines) >= 20 {
		score.Completeness += 10
	}

	// Actionability: concrete artifacts a reader can act on.
	if strings.Contains(content, "```") {
		score.Actionability += 10
	}
	if listItemCount(lines) >= 3 {
		score.Actionability += 10
	}
	for _, line := range lines {
		if actionWordPattern.MatchString(line) {
			score.Actionability += 10
			break
		}
	}

	// Formatting: headings separated from prose, lines of sane width.
	if blankBeforeHeadings(lines) {
		score.Formatting += 15
	}
	if maxLineLen(lines) <= 200 {
		score.Formatting += 10
	}

	// Naming: kebab-case markdown file names sort and link cleanly.
	if kebabNamePattern.MatchString(name) {
		score.Naming += 15
	}
	return score
}

func sectionCount(lines []string) int {
	n := 0
	for _, line := range lines {
		if strings.HasPrefix(line, "## ") {
			n++
		}
	}
	return n
}

func nonEmptyCount(lines []string) int {
	n := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func listItemCount(lines []string) int {
	n := 0
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* ") {
			n++
		}
	}
	return n
}

func blankBeforeHeadings(lines []string) bool {
	for i := 1; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "## ") && strings.TrimSpace(lines[i-1]) != "" {
			return false
		}
	}
	return true
}

func maxLineLen(lines []string) int {
	max := 0
	for _, line := range lines {
		if len(line) > max {
			max = len(line)
		}
	}
	return max
}
