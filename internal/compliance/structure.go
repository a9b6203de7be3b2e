package compliance

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
)

// StructureValidator checks project structural integrity at session start:
// the watched roots exist and the runtime directory is ready. It reports a
// component summary either way and never blocks.
type StructureValidator struct {
	projectRoot string
	runtimeDir  string
	memoryDir   string
	contextDir  string
	agentsDir   string
}

func NewStructureValidator(projectRoot, runtimeDir, memoryDir, contextDir, agentsDir string) *StructureValidator {
	return &StructureValidator{
		projectRoot: projectRoot,
		runtimeDir:  runtimeDir,
		memoryDir:   memoryDir,
		contextDir:  contextDir,
		agentsDir:   agentsDir,
	}
}

func (v *StructureValidator) Name() string { return "structure" }

func (v *StructureValidator) Handle(_ context.Context, _ *hookio.Event) (*dispatch.Result, error) {
	if err := os.MkdirAll(v.runtimeDir, 0o755); err != nil {
		return nil, fmt.Errorf("structure: runtime dir: %w", err)
	}

	var missing []string
	for _, dir := range []string{v.memoryDir, v.contextDir, v.agentsDir} {
		if st, err := os.Stat(filepath.Join(v.projectRoot, dir)); err != nil || !st.IsDir() {
			missing = append(missing, dir)
		}
	}

	summary := fmt.Sprintf("Session start: agents=%d context=%d memory=%d",
		countFiles(filepath.Join(v.projectRoot, v.agentsDir), ".config.json"),
		countFiles(filepath.Join(v.projectRoot, v.contextDir), ".md"),
		countFiles(filepath.Join(v.projectRoot, v.memoryDir), ".md"))
	if len(missing) > 0 {
		summary += "; missing directories: " + strings.Join(missing, ", ")
	}
	return dispatch.AdviseResult(summary), nil
}

// countFiles counts regular files under root with the given suffix. A
// missing root counts zero.
func countFiles(root, suffix string) int {
	n := 0
	filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), suffix) {
			n++
		}
		return nil
	})
	return n
}
