package policy

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
)

// GitRunner executes a git subcommand in dir and returns its stdout. Tests
// substitute a canned implementation.
type GitRunner func(ctx context.Context, dir string, args ...string) (string, error)

func execGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	return string(out), err
}

var (
	conventionalCommitPattern = regexp.MustCompile(
		`^(feat|fix|docs|style|refactor|perf|test|build|ci|chore|revert)(\([\w\-./ ]+\))?!?: .+`)
	forceFlagPattern    = regexp.MustCompile(`(?:^|\s)(?:--force(?:-with-lease)?|-f)(?:\s|$)`)
	gitPushPattern      = regexp.MustCompile(`\bgit\s+push\b([^|;&]*)`)
	gitCommitMsgPattern = regexp.MustCompile(`\bgit\s+commit\b[^|;&]*?(?:-m|--message)(?:=|\s+)("((?:[^"\\]|\\.)*)"|'([^']*)'|(\S+))`)
)

// Diff hunks containing these are treated as staged secrets.
var diffSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	regexp.MustCompile(`\b(?:ghp_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{22,})\b`),
	regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)\b(?:password|secret|api[_-]?key|auth[_-]?token)\s*[:=]\s*['"][^'"]{8,}['"]`),
}

// VCSGuard enforces git hygiene on shell commands: no pushes to protected
// branches, no force pushes, conventional commit messages, and no secrets
// in the staged diff at commit time.
type VCSGuard struct {
	protected map[string]struct{}
	git       GitRunner
}

func NewVCSGuard(protectedBranches []string, git GitRunner) *VCSGuard {
	if git == nil {
		git = execGit
	}
	set := make(map[string]struct{}, len(protectedBranches))
	for _, b := range protectedBranches {
		set[b] = struct{}{}
	}
	return &VCSGuard{protected: set, git: git}
}

func (g *VCSGuard) Name() string { return "vcs" }

func (g *VCSGuard) Handle(ctx context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	if ev.ToolName != "Bash" || ev.ToolInput.Command == "" {
		return dispatch.Allow(), nil
	}
	command := ev.ToolInput.Command

	if res := g.checkPush(ctx, command, ev.CWD); res != nil && res.Deny {
		return res, nil
	}
	if msg, ok := commitMessage(command); ok {
		if !conventionalCommitPattern.MatchString(msg) {
			return dispatch.DenyResult(fmt.Sprintf(
				"Git hygiene: commit message %q does not follow conventional commit format (type(scope): description)", msg)), nil
		}
		if res := g.scanStagedDiff(ctx, ev.CWD); res != nil {
			return res, nil
		}
	}
	return dispatch.Allow(), nil
}

func (g *VCSGuard) checkPush(ctx context.Context, command, cwd string) *dispatch.Result {
	for _, m := range gitPushPattern.FindAllStringSubmatch(command, -1) {
		args := m[1]
		if forceFlagPattern.MatchString(args) {
			return dispatch.DenyResult("Git hygiene: force push is not allowed")
		}
		for _, field := range strings.Fields(args) {
			if strings.HasPrefix(field, "-") {
				continue
			}
			// Refspecs push the right-hand side; HEAD:main targets main.
			target := field
			if i := strings.LastIndex(field, ":"); i >= 0 {
				target = field[i+1:]
			}
			if _, ok := g.protected[target]; ok {
				return dispatch.DenyResult(fmt.Sprintf(
					"Git hygiene: direct push to protected branch %q is not allowed; use a feature branch and a pull request", target))
			}
		}
		// A bare "git push" resolves against the current branch.
		if len(strings.Fields(args)) == 0 {
			branch, err := g.git(ctx, cwd, "rev-parse", "--abbrev-ref", "HEAD")
			if err == nil {
				if _, ok := g.protected[strings.TrimSpace(branch)]; ok {
					return dispatch.DenyResult(fmt.Sprintf(
						"Git hygiene: direct push to protected branch %q is not allowed; use a feature branch and a pull request", strings.TrimSpace(branch)))
				}
			}
		}
	}
	return nil
}

func (g *VCSGuard) scanStagedDiff(ctx context.Context, cwd string) *dispatch.Result {
	diff, err := g.git(ctx, cwd, "diff", "--cached")
	if err != nil {
		return nil // not a repo or git unavailable: fail open
	}
	for _, line := range strings.Split(diff, "\n") {
		if !strings.HasPrefix(line, "+") || strings.HasPrefix(line, "+++") {
			continue
		}
		for _, re := range diffSecretPatterns {
			if re.MatchString(line) {
				return dispatch.DenyResult("Git hygiene: staged changes appear to contain a credential or private key; unstage it before committing")
			}
		}
	}
	return nil
}

// commitMessage extracts the -m/--message argument from a git commit
// invocation, handling double-quoted, single-quoted and bare forms.
func commitMessage(command string) (string, bool) {
	m := gitCommitMsgPattern.FindStringSubmatch(command)
	if m == nil {
		return "", false
	}
	switch {
	case m[2] != "":
		return strings.ReplaceAll(m[2], `\"`, `"`), true
	case m[3] != "":
		return m[3], true
	default:
		return m[4], true
	}
}
