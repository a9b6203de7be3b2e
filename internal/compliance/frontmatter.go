// Package compliance implements the workflow compliance layer: context
// frontmatter validation, declared-step checking against the session
// transcript, command chain state, dependency drift advisories and the
// generated-output quality score.
package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
	"github.com/forgeworks/warden/internal/memory"
)

// Context files that are structural, not content, and carry no frontmatter.
var frontmatterExempt = map[string]struct{}{
	"index.md":            {},
	"cross_domain.md":     {},
	"loading_protocol.md": {},
}

const frontmatterSchemaJSON = `{
  "type": "object",
  "required": ["id", "domain", "title", "type", "estimatedTokens", "loadingStrategy"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "domain": {
      "type": "string",
      "enum": ["engineering", "angular", "azure", "commands", "dotnet", "git", "python", "schema", "security"]
    },
    "title": {"type": "string", "minLength": 1},
    "type": {
      "type": "string",
      "enum": ["always", "framework", "reference", "pattern", "index", "detection"]
    },
    "estimatedTokens": {"type": "integer", "minimum": 1},
    "loadingStrategy": {"type": "string", "enum": ["always", "onDemand", "lazy"]}
  }
}`

var frontmatterSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(frontmatterSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("frontmatter schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("frontmatter.json", doc); err != nil {
		panic(fmt.Sprintf("frontmatter schema: %v", err))
	}
	sch, err := c.Compile("frontmatter.json")
	if err != nil {
		panic(fmt.Sprintf("frontmatter schema: %v", err))
	}
	return sch
}

// FrontmatterValidator denies writes of context documents whose YAML
// frontmatter is missing or fails the loading-metadata schema. Write events
// validate the incoming content; Edit events validate the file on disk.
type FrontmatterValidator struct {
	contextDir string
}

func NewFrontmatterValidator(contextDir string) *FrontmatterValidator {
	return &FrontmatterValidator{contextDir: contextDir}
}

func (v *FrontmatterValidator) Name() string { return "frontmatter" }

func (v *FrontmatterValidator) Handle(_ context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	path := ev.ToolInput.FilePath
	if (ev.ToolName != "Write" && ev.ToolName != "Edit") || !v.contextDocPath(path, ev.CWD) {
		return dispatch.Allow(), nil
	}

	var content string
	switch ev.ToolName {
	case "Write":
		content = ev.ToolInput.Content
	case "Edit":
		raw, err := os.ReadFile(path)
		if err != nil {
			return dispatch.Allow(), nil // new file; the Write path covers creation
		}
		content = string(raw)
	}

	if err := ValidateFrontmatter(content); err != nil {
		return dispatch.DenyResult(fmt.Sprintf(
			"Context frontmatter: %s rejected: %v", memory.Rel(path, ev.CWD), err)), nil
	}
	return dispatch.Allow(), nil
}

func (v *FrontmatterValidator) contextDocPath(path, projectRoot string) bool {
	if !strings.HasSuffix(path, ".md") {
		return false
	}
	rel := memory.Rel(path, projectRoot)
	if !strings.HasPrefix(rel, v.contextDir+"/") {
		return false
	}
	base := rel[strings.LastIndex(rel, "/")+1:]
	_, exempt := frontmatterExempt[base]
	return !exempt
}

// ValidateFrontmatter checks that content opens with a YAML frontmatter
// block satisfying the loading-metadata schema.
func ValidateFrontmatter(content string) error {
	block, err := frontmatterBlock(content)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := yaml.Unmarshal([]byte(block), &fields); err != nil {
		return fmt.Errorf("frontmatter is not valid YAML: %w", err)
	}
	if err := frontmatterSchema.Validate(normalizeYAML(fields)); err != nil {
		return err
	}
	return nil
}

// frontmatterBlock extracts the YAML between the leading "---" fences.
func frontmatterBlock(content string) (string, error) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", fmt.Errorf("missing frontmatter block (file must start with ---)")
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), nil
		}
	}
	return "", fmt.Errorf("unterminated frontmatter block")
}

// normalizeYAML converts yaml.v3 decode output into the value shapes the
// JSON schema validator expects (json.Number-free, string-keyed maps).
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	case int:
		return json.Number(strconv.Itoa(t))
	case int64:
		return json.Number(strconv.FormatInt(t, 10))
	case float64:
		return json.Number(strconv.FormatFloat(t, 'g', -1, 64))
	default:
		return v
	}
}
