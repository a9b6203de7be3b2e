package compliance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
	"github.com/forgeworks/warden/internal/memory"
)

// Dependency manifests the drift detector watches.
var manifestNames = map[string]struct{}{
	"package.json":     {},
	"requirements.txt": {},
	"pyproject.toml":   {},
	"go.mod":           {},
}

func isDependencyManifest(path string) bool {
	base := filepath.Base(path)
	if _, ok := manifestNames[base]; ok {
		return true
	}
	return strings.HasSuffix(base, ".csproj")
}

// conflictTable maps dependencies to the memory files whose recorded
// assumptions depend on them.
type conflictTable struct {
	Conflicts []conflictEntry `yaml:"conflicts"`
}

type conflictEntry struct {
	Dependency string `yaml:"dependency"`
	Memory     string `yaml:"memory"`
	Note       string `yaml:"note"`
}

// DriftDetector warns when a dependency manifest changes in a way that may
// invalidate assumptions recorded in memory. No conflict table configured
// means no detection; advisory only.
type DriftDetector struct {
	tablePath string
}

func NewDriftDetector(tablePath string) *DriftDetector {
	return &DriftDetector{tablePath: tablePath}
}

func (d *DriftDetector) Name() string { return "drift" }

func (d *DriftDetector) Handle(_ context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	path := ev.ToolInput.FilePath
	if (ev.ToolName != "Write" && ev.ToolName != "Edit") || !isDependencyManifest(path) || d.tablePath == "" {
		return dispatch.Allow(), nil
	}
	table, err := d.loadTable(ev.CWD)
	if err != nil || len(table.Conflicts) == 0 {
		return dispatch.Allow(), nil // absent or malformed table disables detection
	}
	manifest, err := os.ReadFile(path)
	if err != nil {
		return dispatch.Allow(), nil
	}

	var hits []string
	for _, entry := range table.Conflicts {
		if entry.Dependency == "" || !strings.Contains(string(manifest), entry.Dependency) {
			continue
		}
		hit := fmt.Sprintf("%s changed; %s may be stale", entry.Dependency, entry.Memory)
		if entry.Note != "" {
			hit += " (" + entry.Note + ")"
		}
		hits = append(hits, hit)
	}
	if len(hits) == 0 {
		return dispatch.Allow(), nil
	}
	return dispatch.AdviseResult(fmt.Sprintf(
		"Dependency drift (%s):\n  - %s", memory.Rel(path, ev.CWD), strings.Join(hits, "\n  - "))), nil
}

func (d *DriftDetector) loadTable(cwd string) (*conflictTable, error) {
	path := d.tablePath
	if !filepath.IsAbs(path) && cwd != "" {
		path = filepath.Join(cwd, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var table conflictTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, err
	}
	return &table, nil
}
