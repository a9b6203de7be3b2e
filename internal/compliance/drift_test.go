package compliance

import (
	"context"
	"strings"
	"testing"

	"github.com/forgeworks/warden/internal/hookio"
)

const conflictTableYAML = `conflicts:
  - dependency: react
    memory: memory/projects/demo/frontend.md
    note: component patterns assume React 18
  - dependency: pydantic
    memory: memory/projects/demo/api.md
`

func manifestWriteEvent(path, cwd string) *hookio.Event {
	return &hookio.Event{
		Name:      hookio.EventPostToolUse,
		ToolName:  "Write",
		ToolInput: hookio.ToolInput{FilePath: path},
		CWD:       cwd,
	}
}

func TestDriftDetector_FlagsAffectedMemory(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "security/conflicts.yml", conflictTableYAML)
	manifest := writeProjectFile(t, root, "package.json", `{"dependencies":{"react":"^19.0.0"}}`)

	d := NewDriftDetector("security/conflicts.yml")
	res, err := d.Handle(context.Background(), manifestWriteEvent(manifest, root))
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.Deny {
		t.Fatalf("expected advisory, got %+v", res)
	}
	if !strings.Contains(res.Context, "frontend.md") || !strings.Contains(res.Context, "React 18") {
		t.Fatalf("advisory should name the stale memory and note: %s", res.Context)
	}
	if strings.Contains(res.Context, "api.md") {
		t.Fatalf("unrelated entry should not fire: %s", res.Context)
	}
}

func TestDriftDetector_NoTableSilent(t *testing.T) {
	root := t.TempDir()
	manifest := writeProjectFile(t, root, "package.json", `{"dependencies":{"react":"^19.0.0"}}`)
	d := NewDriftDetector("")
	res, _ := d.Handle(context.Background(), manifestWriteEvent(manifest, root))
	if res != nil {
		t.Fatalf("no table configured means no detection, got %+v", res)
	}
}

func TestDriftDetector_MissingTableFileSilent(t *testing.T) {
	root := t.TempDir()
	manifest := writeProjectFile(t, root, "requirements.txt", "pydantic==2.7\n")
	d := NewDriftDetector("security/conflicts.yml")
	res, _ := d.Handle(context.Background(), manifestWriteEvent(manifest, root))
	if res != nil {
		t.Fatalf("missing table file must fail open, got %+v", res)
	}
}

func TestDriftDetector_NonManifestFilesIgnored(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "security/conflicts.yml", conflictTableYAML)
	other := writeProjectFile(t, root, "src/app.ts", "import react from 'react'\n")
	d := NewDriftDetector("security/conflicts.yml")
	res, _ := d.Handle(context.Background(), manifestWriteEvent(other, root))
	if res != nil {
		t.Fatalf("non-manifest writes should be ignored, got %+v", res)
	}
}

func TestIsDependencyManifest(t *testing.T) {
	for _, path := range []string{"package.json", "api/requirements.txt", "pyproject.toml", "go.mod", "App/App.csproj"} {
		if !isDependencyManifest(path) {
			t.Fatalf("%s should be recognized", path)
		}
	}
	if isDependencyManifest("src/index.ts") {
		t.Fatal("source files are not manifests")
	}
}
