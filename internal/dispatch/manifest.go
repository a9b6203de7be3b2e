package dispatch

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// manifestDoc mirrors the host's registration manifest: an ordered table
// of {event, handlers: [{handler, toolPattern}]}. The engine consumes it,
// it never authors it.
type manifestDoc struct {
	Hooks []manifestEvent `yaml:"hooks"`
}

type manifestEvent struct {
	Event    string          `yaml:"event"`
	Handlers []manifestEntry `yaml:"handlers"`
}

type manifestEntry struct {
	Handler     string `yaml:"handler"`
	ToolPattern string `yaml:"toolPattern"`
}

// Rule is one compiled manifest row. Tool patterns are compiled once at
// manifest load rather than re-interpreted per event.
type Rule struct {
	Event   string
	Handler string
	Pattern *regexp.Regexp // nil matches every tool
}

// Matches reports whether the rule applies to the given event/tool pair.
func (r *Rule) Matches(event, toolName string) bool {
	if r.Event != event {
		return false
	}
	if r.Pattern == nil {
		return true
	}
	return r.Pattern.MatchString(toolName)
}

// RuleTable is the ordered, compiled view of the manifest.
type RuleTable struct {
	rules []Rule
}

// Select returns the handler names applying to an event, preserving
// manifest order.
func (t *RuleTable) Select(event, toolName string) []string {
	var names []string
	for i := range t.rules {
		if t.rules[i].Matches(event, toolName) {
			names = append(names, t.rules[i].Handler)
		}
	}
	return names
}

// Len reports the rule count.
func (t *RuleTable) Len() int { return len(t.rules) }

// CompileManifest parses manifest YAML and compiles its tool patterns.
// Patterns are anchored: "Read|Write" must match the whole tool name, not
// a substring of it.
func CompileManifest(data []byte) (*RuleTable, error) {
	var doc manifestDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}

	table := &RuleTable{}
	for _, evt := range doc.Hooks {
		if evt.Event == "" {
			return nil, fmt.Errorf("manifest: entry missing event name")
		}
		for _, h := range evt.Handlers {
			if h.Handler == "" {
				return nil, fmt.Errorf("manifest: event %s: handler missing name", evt.Event)
			}
			rule := Rule{Event: evt.Event, Handler: h.Handler}
			if h.ToolPattern != "" && h.ToolPattern != ".*" {
				re, err := regexp.Compile("^(?:" + h.ToolPattern + ")$")
				if err != nil {
					return nil, fmt.Errorf("manifest: handler %s: bad toolPattern %q: %w",
						h.Handler, h.ToolPattern, err)
				}
				rule.Pattern = re
			}
			table.rules = append(table.rules, rule)
		}
	}
	return table, nil
}

// LoadManifest reads and compiles a manifest file, falling back to the
// built-in default table when the file does not exist.
func LoadManifest(path string) (*RuleTable, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return CompileManifest([]byte(DefaultManifest))
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return CompileManifest(data)
}

// DefaultManifest is the registration table shipped with the engine. The
// host may override it with a .warden/manifest.yml.
const DefaultManifest = `
hooks:
  - event: PreToolUse
    handlers:
      - handler: sandbox
        toolPattern: Read|Write|Edit|Bash
      - handler: dependency
        toolPattern: Bash
      - handler: vcs
        toolPattern: Bash
      - handler: precommit
        toolPattern: Bash
      - handler: frontmatter
        toolPattern: Write|Edit
      - handler: freshness
        toolPattern: Read
  - event: UserPromptSubmit
    handlers:
      - handler: promptscan
  - event: PostToolUse
    handlers:
      - handler: memory_quality
        toolPattern: Write|Edit
      - handler: pollination
        toolPattern: Write|Edit
      - handler: drift
        toolPattern: Write|Edit
      - handler: output_score
        toolPattern: Write|Edit
      - handler: health_emitter
  - event: TaskCompleted
    handlers:
      - handler: chain_state
  - event: SessionStart
    handlers:
      - handler: structure
  - event: SubagentStart
    handlers:
      - handler: agent_config
  - event: Stop
    handlers:
      - handler: step_compliance
      - handler: session_telemetry
  - event: PreCompact
    handlers:
      - handler: context_usage
  - event: SessionEnd
    handlers:
      - handler: memory_prune
      - handler: session_cleanup
`
