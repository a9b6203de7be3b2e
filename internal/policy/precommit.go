package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
)

var stagedSecretFilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:^|/)\.env(?:\.[\w.-]+)?$`),
	regexp.MustCompile(`(?:^|/)credentials\.json$`),
	regexp.MustCompile(`(?:^|/)secrets\.json$`),
	regexp.MustCompile(`(?:^|/)id_(?:rsa|ed25519|ecdsa)$`),
	regexp.MustCompile(`\.pem$`),
}

var absolutePathPattern = regexp.MustCompile(`(?m)(?:/home/|/Users/)\w+`)

var gitCommitPattern = regexp.MustCompile(`\bgit\s+commit\b`)

// PrecommitGate inspects the staged file set when a commit is about to run:
// secret files are denied, and generated output, unversioned skill docs and
// memory files carrying machine-local paths draw advisories.
type PrecommitGate struct {
	outputDir string
	memoryDir string
	git       GitRunner
}

func NewPrecommitGate(outputDir, memoryDir string, git GitRunner) *PrecommitGate {
	if git == nil {
		git = execGit
	}
	return &PrecommitGate{outputDir: outputDir, memoryDir: memoryDir, git: git}
}

func (g *PrecommitGate) Name() string { return "precommit" }

func (g *PrecommitGate) Handle(ctx context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	if ev.ToolName != "Bash" || !gitCommitPattern.MatchString(ev.ToolInput.Command) {
		return dispatch.Allow(), nil
	}
	out, err := g.git(ctx, ev.CWD, "diff", "--cached", "--name-only")
	if err != nil {
		return dispatch.Allow(), nil // fail open outside a repo
	}

	var warnings []string
	for _, file := range strings.Split(strings.TrimSpace(out), "\n") {
		if file == "" {
			continue
		}
		for _, re := range stagedSecretFilePatterns {
			if re.MatchString(file) {
				return dispatch.DenyResult(fmt.Sprintf(
					"Pre-commit gate: %s is staged and looks like a secrets file; unstage it before committing", file)), nil
			}
		}
		if g.outputDir != "" && strings.HasPrefix(file, g.outputDir+"/") {
			warnings = append(warnings, fmt.Sprintf("%s is generated output; consider keeping %s/ out of version control", file, g.outputDir))
		}
		if filepath.Base(file) == "SKILL.md" {
			if content, err := os.ReadFile(filepath.Join(ev.CWD, file)); err == nil {
				if !strings.Contains(string(content), "## Version History") {
					warnings = append(warnings, fmt.Sprintf("%s has no \"## Version History\" section", file))
				}
			}
		}
		if g.memoryDir != "" && strings.HasPrefix(file, g.memoryDir+"/") && strings.HasSuffix(file, ".md") {
			if content, err := os.ReadFile(filepath.Join(ev.CWD, file)); err == nil {
				if absolutePathPattern.Match(content) {
					warnings = append(warnings, fmt.Sprintf("%s contains machine-local absolute paths; portable notes should use project-relative paths", file))
				}
			}
		}
	}
	if len(warnings) > 0 {
		return dispatch.AdviseResult("Pre-commit gate:\n  - " + strings.Join(warnings, "\n  - ")), nil
	}
	return dispatch.Allow(), nil
}
