// Package policy implements the stateless security handlers: path
// sandboxing, prompt secret/PII scanning, dependency deny-listing, VCS
// hygiene and the pre-commit staged-file gate.
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

// Sensitive credential file patterns, denied even inside the project.
var sensitiveFilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:^|/)\.env(?:\.[\w.-]+)?$`),
	regexp.MustCompile(`\.(?:pem|key|p12|pfx)$`),
	regexp.MustCompile(`(?:^|/)\.(?:npmrc|pypirc|netrc|htpasswd|git-credentials)$`),
	regexp.MustCompile(`(?:^|/)credentials\.(?:json|ya?ml)$`),
	regexp.MustCompile(`(?:^|/)secrets\.(?:json|ya?ml)$`),
	regexp.MustCompile(`service-account[\w.-]*\.json$`),
	regexp.MustCompile(`(?:^|/)id_(?:rsa|ed25519|ecdsa)(?:\.pub)?$`),
}

// Sensitive substrings scanned inside shell command text. Commands embed
// paths in arbitrary positions, so these are matched as fragments after
// home-reference normalization.
var commandDenyFragments = []string{
	"/.ssh", "/.gnupg", "/.config", "/.aws", "/.kube", "/.docker",
	"/.bashrc", "/.bash_profile", "/.zshrc", "/.profile",
	"/etc/passwd", "/etc/shadow", "/etc/hosts", "/etc/sudoers",
	".env", ".pem", ".key", ".p12", ".pfx",
	".npmrc", ".pypirc", ".netrc", ".htpasswd", ".git-credentials",
	"credentials.json", "credentials.yaml", "secrets.json",
	"service-account", "id_rsa",
}

var rmRootPattern = regexp.MustCompile(`\brm\s+(-[a-zA-Z]*\s+)*(-rf|-fr)\s+/(\s|$)`)

// SandboxGuard denies file operations and shell commands reaching outside
// the project directory or touching credential material.
type SandboxGuard struct{}

func NewSandboxGuard() *SandboxGuard { return &SandboxGuard{} }

func (g *SandboxGuard) Name() string { return "sandbox" }

func (g *SandboxGuard) Handle(_ context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	switch ev.ToolName {
	case "Read", "Write", "Edit":
		return g.checkPath(ev.ToolInput.FilePath, ev.CWD), nil
	case "Bash":
		return g.checkCommand(ev.ToolInput.Command), nil
	default:
		return dispatch.Allow(), nil
	}
}

func (g *SandboxGuard) checkPath(path, cwd string) *dispatch.Result {
	if path == "" {
		return dispatch.Allow()
	}
	resolved := normalizePath(path, cwd)

	for _, re := range sensitiveFilePatterns {
		if re.MatchString(resolved) {
			return dispatch.DenyResult(fmt.Sprintf(
				"Sandbox: %s matches a credentials/secrets file pattern and may not be accessed", path))
		}
	}

	if insideAllowlist(resolved, cwd) {
		return dispatch.Allow()
	}
	return dispatch.DenyResult(fmt.Sprintf(
		"Sandbox: %s is outside the project directory", path))
}

func (g *SandboxGuard) checkCommand(command string) *dispatch.Result {
	if command == "" {
		return dispatch.Allow()
	}
	if rmRootPattern.MatchString(command) {
		return dispatch.DenyResult("Sandbox: destructive removal of the filesystem root is blocked")
	}

	normalized := normalizeHomeRefs(command)
	for _, fragment := range commandDenyFragments {
		if strings.Contains(normalized, fragment) {
			return dispatch.DenyResult(fmt.Sprintf(
				"Sandbox: command references a sensitive path or credentials pattern (%s)", fragment))
		}
	}
	return dispatch.Allow()
}

// normalizePath expands home references and resolves relative segments
// against the project root, yielding a clean absolute path.
func normalizePath(path, cwd string) string {
	path = normalizeHomeRefs(path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}
	return filepath.Clean(path)
}

// normalizeHomeRefs rewrites ~ and $HOME prefixes to the literal home
// directory so one pattern table covers every spelling.
func normalizeHomeRefs(s string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "/home/unknown"
	}
	s = strings.ReplaceAll(s, "$HOME", home)
	s = strings.ReplaceAll(s, "${HOME}", home)
	if s == "~" {
		return home
	}
	s = strings.ReplaceAll(s, "~/", home+"/")
	return s
}

// insideAllowlist reports whether the path falls under the project root or
// one of the always-safe scratch locations.
func insideAllowlist(resolved, cwd string) bool {
	if resolved == "/dev/null" {
		return true
	}
	allowRoots := []string{"/tmp", "/var/tmp", os.TempDir()}
	if cwd != "" {
		allowRoots = append(allowRoots, filepath.Clean(cwd))
	}
	for _, root := range allowRoots {
		if root == "" {
			continue
		}
		if resolved == root || strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
