package compliance

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
)

// Workflow steps a skill may declare. Evidence for each is read off the
// session transcript.
const (
	StepLoadMemory     = "load_memory"
	StepLoadContext    = "load_context"
	StepUpdateMemory   = "update_memory"
	StepGenerateOutput = "generate_output"
)

var knownSteps = map[string]struct{}{
	StepLoadMemory:     {},
	StepLoadContext:    {},
	StepUpdateMemory:   {},
	StepGenerateOutput: {},
}

// ComplianceReport is the outcome of checking one skill's declared steps
// against what the session actually did.
type ComplianceReport struct {
	Skill    string
	Expected []string
	Observed []string
	Missing  []string
	Passed   bool
}

var (
	toolNamePattern  = regexp.MustCompile(`"tool_name"\s*:\s*"(\w+)"`)
	filePathPattern  = regexp.MustCompile(`"file_path"\s*:\s*"([^"]+)"`)
	skillDocPattern  = regexp.MustCompile(`skills/([\w\-]+)/SKILL\.md`)
	stepListPattern  = regexp.MustCompile(`^\s*(?:[-*]|\d+\.)\s+([a-z_]+)\s*$`)
	transcriptMaxLen = 1 << 20
)

// transcriptActivity is what the step checker extracts from a transcript:
// which skills were invoked and which step evidence appeared.
type transcriptActivity struct {
	skills   []string
	observed map[string]struct{}
}

// StepChecker verifies at session stop that every invoked skill's declared
// workflow steps actually happened. Advisory: a broken workflow is worth
// flagging, not worth trapping the agent in a stop loop.
type StepChecker struct {
	memoryDir  string
	contextDir string
	outputDir  string
}

func NewStepChecker(memoryDir, contextDir, outputDir string) *StepChecker {
	return &StepChecker{memoryDir: memoryDir, contextDir: contextDir, outputDir: outputDir}
}

func (c *StepChecker) Name() string { return "step_compliance" }

func (c *StepChecker) Handle(_ context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	if ev.StopHookActive || ev.TranscriptPath == "" {
		return dispatch.Allow(), nil
	}
	activity, err := c.scanTranscript(ev.TranscriptPath)
	if err != nil {
		return dispatch.Allow(), nil // transcript unavailable: nothing to check
	}

	var failures []string
	for _, skill := range activity.skills {
		report := c.Check(ev.CWD, skill, activity.observed)
		if report.Passed {
			continue
		}
		failures = append(failures, fmt.Sprintf("%s: missing %s",
			report.Skill, strings.Join(report.Missing, ", ")))
	}
	if len(failures) == 0 {
		return dispatch.Allow(), nil
	}
	return dispatch.AdviseResult("Workflow compliance: declared skill steps were not completed this session:\n  - " +
		strings.Join(failures, "\n  - ")), nil
}

// Check compares a skill's declared steps against observed step evidence.
func (c *StepChecker) Check(projectRoot, skill string, observed map[string]struct{}) ComplianceReport {
	report := ComplianceReport{Skill: skill, Passed: true}
	report.Expected = declaredSteps(filepath.Join(projectRoot, "skills", skill, "SKILL.md"))
	for _, step := range report.Expected {
		if _, ok := observed[step]; ok {
			report.Observed = append(report.Observed, step)
		} else {
			report.Missing = append(report.Missing, step)
			report.Passed = false
		}
	}
	return report
}

// scanTranscript reads the transcript line by line, collecting invoked
// skills and evidence for each workflow step.
func (c *StepChecker) scanTranscript(path string) (*transcriptActivity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	activity := &transcriptActivity{observed: map[string]struct{}{}}
	seenSkills := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), transcriptMaxLen)
	for sc.Scan() {
		line := sc.Text()
		if m := skillDocPattern.FindStringSubmatch(line); m != nil {
			if _, ok := seenSkills[m[1]]; !ok {
				seenSkills[m[1]] = struct{}{}
				activity.skills = append(activity.skills, m[1])
			}
		}
		tool := ""
		if m := toolNamePattern.FindStringSubmatch(line); m != nil {
			tool = m[1]
		}
		for _, m := range filePathPattern.FindAllStringSubmatch(line, -1) {
			if step := c.stepFor(tool, m[1]); step != "" {
				activity.observed[step] = struct{}{}
			}
		}
	}
	return activity, sc.Err()
}

// stepFor maps one tool use to the workflow step it evidences.
func (c *StepChecker) stepFor(tool, path string) string {
	inDir := func(dir string) bool {
		return strings.Contains(path, "/"+dir+"/") || strings.HasPrefix(path, dir+"/")
	}
	switch tool {
	case "Read":
		if inDir(c.memoryDir) {
			return StepLoadMemory
		}
		if inDir(c.contextDir) {
			return StepLoadContext
		}
	case "Write", "Edit":
		if inDir(c.memoryDir) {
			return StepUpdateMemory
		}
		if inDir(c.outputDir) {
			return StepGenerateOutput
		}
	}
	return ""
}

// declaredSteps parses a SKILL.md for list items naming known workflow
// steps. A missing or stepless skill doc declares nothing.
func declaredSteps(skillDoc string) []string {
	raw, err := os.ReadFile(skillDoc)
	if err != nil {
		return nil
	}
	var steps []string
	seen := map[string]struct{}{}
	for _, line := range strings.Split(string(raw), "\n") {
		m := stepListPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		step := m[1]
		if _, known := knownSteps[step]; !known {
			continue
		}
		if _, dup := seen[step]; dup {
			continue
		}
		seen[step] = struct{}{}
		steps = append(steps, step)
	}
	return steps
}
