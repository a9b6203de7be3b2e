package compliance

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forgeworks/warden/internal/hookio"
)

func subagentEvent(agentType string) *hookio.Event {
	return &hookio.Event{
		Name:      hookio.EventSubagentStart,
		SessionID: "sess-1",
		AgentType: agentType,
		AgentID:   "agent-001",
	}
}

func writeAgentConfig(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, "agents", name+".config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAgentConfigValidator_BuiltinsSkipped(t *testing.T) {
	v := NewAgentConfigValidator(t.TempDir(), "agents", "context")
	for _, agent := range []string{"Bash", "Explore", "Plan", ""} {
		res, err := v.Handle(context.Background(), subagentEvent(agent))
		if err != nil {
			t.Fatalf("Handle(%q): %v", agent, err)
		}
		if res != nil {
			t.Fatalf("builtin agent %q should be silent, got %+v", agent, res)
		}
	}
}

func TestAgentConfigValidator_ValidConfig(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "context", "python"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeAgentConfig(t, root, "python-engineer",
		`{"name": "python-engineer", "version": "2.1.0", "context": {"domains": ["python"]}}`)

	v := NewAgentConfigValidator(root, "agents", "context")
	res, err := v.Handle(context.Background(), subagentEvent("python-engineer"))
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.Deny {
		t.Fatalf("valid config should report without denying: %+v", res)
	}
	if !strings.Contains(res.Context, "config validated") {
		t.Fatalf("context = %q", res.Context)
	}
}

func TestAgentConfigValidator_MissingConfigReported(t *testing.T) {
	v := NewAgentConfigValidator(t.TempDir(), "agents", "context")
	res, err := v.Handle(context.Background(), subagentEvent("nonexistent-agent"))
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.Deny {
		t.Fatalf("missing config must report without denying: %+v", res)
	}
	if !strings.Contains(res.Context, "no config at") {
		t.Fatalf("context = %q", res.Context)
	}
}

func TestAgentConfigValidator_FieldProblemsReported(t *testing.T) {
	root := t.TempDir()
	writeAgentConfig(t, root, "full-stack-engineer",
		`{"name": "fullstack", "version": "two point oh"}`)

	v := NewAgentConfigValidator(root, "agents", "context")
	res, err := v.Handle(context.Background(), subagentEvent("full-stack-engineer"))
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.Deny {
		t.Fatalf("field problems report, never deny: %+v", res)
	}
	for _, want := range []string{"does not match agent type", "not semver"} {
		if !strings.Contains(res.Context, want) {
			t.Fatalf("context missing %q: %s", want, res.Context)
		}
	}
}

func TestAgentConfigValidator_MalformedJSONReported(t *testing.T) {
	root := t.TempDir()
	writeAgentConfig(t, root, "hephaestus", `{not json`)

	v := NewAgentConfigValidator(root, "agents", "context")
	res, _ := v.Handle(context.Background(), subagentEvent("hephaestus"))
	if res == nil || res.Deny || !strings.Contains(res.Context, "not valid JSON") {
		t.Fatalf("malformed config should be reported: %+v", res)
	}
}

func TestAgentConfigValidator_UnknownDomainReported(t *testing.T) {
	root := t.TempDir()
	writeAgentConfig(t, root, "schema-reviewer",
		`{"name": "schema-reviewer", "version": "1.0.0", "context": {"domains": ["fortran"]}}`)

	v := NewAgentConfigValidator(root, "agents", "context")
	res, _ := v.Handle(context.Background(), subagentEvent("schema-reviewer"))
	if res == nil || !strings.Contains(res.Context, "context domain fortran has no directory") {
		t.Fatalf("unknown domain should be reported: %+v", res)
	}
}
