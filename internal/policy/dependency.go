package policy

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
)

// Known malicious or typosquatted pip packages. Sourced from public
// typosquat takedown reports.
var pipDenySet = map[string]string{
	"colourama":            "typosquat of colorama",
	"requestslib":          "typosquat of requests",
	"requsts":              "typosquat of requests",
	"requets":              "typosquat of requests",
	"urllib4":              "typosquat of urllib3",
	"djago":                "typosquat of django",
	"djnago":               "typosquat of django",
	"fask":                 "typosquat of flask",
	"flsk":                 "typosquat of flask",
	"nump":                 "typosquat of numpy",
	"numby":                "typosquat of numpy",
	"pandsa":               "typosquat of pandas",
	"ctx":                  "known credential-stealing package",
	"distutils-precedence": "known malicious package",
	"pipconfig":            "known malicious package",
}

// Names that shadow stdlib modules or tooling. Installing one is never
// legitimate, so these deny outright.
var pipSuspiciousSet = map[string]struct{}{
	"setup": {}, "pip": {}, "os": {}, "sys": {}, "http": {},
}

var npmDenySet = map[string]string{
	"crossenv":     "typosquat of cross-env",
	"cross-env.js": "typosquat of cross-env",
	"lodahs":       "typosquat of lodash",
	"loadsh":       "typosquat of lodash",
	"expresss":     "typosquat of express",
	"exress":       "typosquat of express",
	"recat":        "typosquat of react",
	"babelcli":     "typosquat of babel-cli",
}

var npmSuspiciousSet = map[string]struct{}{
	"npm": {}, "node": {}, "kernel": {},
}

// Popular package names used for near-miss typosquat detection.
var popularPip = []string{
	"requests", "urllib3", "django", "flask", "numpy", "pandas",
	"colorama", "setuptools", "boto3", "pytest",
}

var popularNpm = []string{
	"react", "express", "lodash", "cross-env", "webpack", "typescript",
	"axios", "eslint",
}

var (
	pipInstallPattern = regexp.MustCompile(`\b(?:pip3?|python3?\s+-m\s+pip)\s+install\b([^|;&]*)`)
	npmInstallPattern = regexp.MustCompile(`\b(?:npm\s+(?:install|i)|yarn\s+add)\b([^|;&]*)`)
)

// DependencyGuard blocks installation of known-malicious or typosquatted
// packages from pip and npm install commands.
type DependencyGuard struct {
	denyListPath string
}

// NewDependencyGuard loads optional extra deny entries from denyListPath
// (lines of the form "pip:name" or "npm:name"); a missing file is fine.
func NewDependencyGuard(denyListPath string) *DependencyGuard {
	return &DependencyGuard{denyListPath: denyListPath}
}

func (g *DependencyGuard) Name() string { return "dependency" }

func (g *DependencyGuard) Handle(_ context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	if ev.ToolName != "Bash" || ev.ToolInput.Command == "" {
		return dispatch.Allow(), nil
	}
	extraPip, extraNpm := g.loadDenyList(ev.CWD)

	var denials []string
	check := func(eco, name string) {
		name = strings.ToLower(name)
		switch eco {
		case "pip":
			if reason, ok := pipDenySet[name]; ok {
				denials = append(denials, fmt.Sprintf("%s (%s)", name, reason))
				return
			}
			if _, ok := extraPip[name]; ok {
				denials = append(denials, fmt.Sprintf("%s (project deny list)", name))
				return
			}
			if _, ok := pipSuspiciousSet[name]; ok {
				denials = append(denials, fmt.Sprintf("%s shadows a Python builtin or tool name", name))
				return
			}
			if near := nearestPopular(name, popularPip); near != "" {
				denials = append(denials, fmt.Sprintf("%s is one edit away from %s (likely typosquat)", name, near))
			}
		case "npm":
			if reason, ok := npmDenySet[name]; ok {
				denials = append(denials, fmt.Sprintf("%s (%s)", name, reason))
				return
			}
			if _, ok := extraNpm[name]; ok {
				denials = append(denials, fmt.Sprintf("%s (project deny list)", name))
				return
			}
			if _, ok := npmSuspiciousSet[name]; ok {
				denials = append(denials, fmt.Sprintf("%s shadows a platform name", name))
				return
			}
			if near := nearestPopular(name, popularNpm); near != "" {
				denials = append(denials, fmt.Sprintf("%s is one edit away from %s (likely typosquat)", name, near))
			}
		}
	}

	for _, m := range pipInstallPattern.FindAllStringSubmatch(ev.ToolInput.Command, -1) {
		for _, pkg := range parsePackageArgs(m[1]) {
			check("pip", pkg)
		}
	}
	for _, m := range npmInstallPattern.FindAllStringSubmatch(ev.ToolInput.Command, -1) {
		for _, pkg := range parsePackageArgs(m[1]) {
			check("npm", pkg)
		}
	}

	if len(denials) > 0 {
		return dispatch.DenyResult("Dependency guard: refusing to install " + strings.Join(denials, "; ")), nil
	}
	return dispatch.Allow(), nil
}

func (g *DependencyGuard) loadDenyList(cwd string) (pip, npm map[string]struct{}) {
	pip = map[string]struct{}{}
	npm = map[string]struct{}{}
	path := g.denyListPath
	if path == "" {
		return
	}
	if !filepath.IsAbs(path) && cwd != "" {
		path = filepath.Join(cwd, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "pip:"):
			pip[strings.ToLower(strings.TrimPrefix(line, "pip:"))] = struct{}{}
		case strings.HasPrefix(line, "npm:"):
			npm[strings.ToLower(strings.TrimPrefix(line, "npm:"))] = struct{}{}
		}
	}
	return
}

// parsePackageArgs extracts bare package names from install command
// arguments, skipping flags and version/extras qualifiers.
func parsePackageArgs(args string) []string {
	var pkgs []string
	for _, field := range strings.Fields(args) {
		if strings.HasPrefix(field, "-") {
			continue
		}
		name := field
		for _, sep := range []string{"==", ">=", "<=", "~=", "@", "["} {
			if i := strings.Index(name, sep); i >= 0 {
				name = name[:i]
			}
		}
		if name != "" {
			pkgs = append(pkgs, name)
		}
	}
	return pkgs
}

// nearestPopular returns a popular package within edit distance 1 of name,
// or "" when there is no near miss. Exact matches are not near misses.
func nearestPopular(name string, popular []string) string {
	for _, p := range popular {
		if name == p {
			return ""
		}
		if levenshtein.ComputeDistance(name, p) == 1 {
			return p
		}
	}
	return ""
}
