package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
)

// Built-in agent types ship with the host and carry no on-disk config.
var builtinAgents = map[string]struct{}{
	"Bash": {}, "Explore": {}, "Plan": {},
}

var (
	semverPattern    = regexp.MustCompile(`^\d+\.\d+\.\d+(?:-[0-9A-Za-z.\-]+)?(?:\+[0-9A-Za-z.\-]+)?$`)
	agentNamePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(?:-[a-z0-9]+)*$`)
)

// agentConfig is the subset of agents/<name>.config.json the validator
// inspects. Unknown fields pass through untouched.
type agentConfig struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Context struct {
		Domains []string `json:"domains"`
	} `json:"context"`
}

// AgentConfigValidator checks custom agent configurations at subagent
// start: JSON validity, name/filename parity, semver version, and that
// referenced context domains exist. Subagent start cannot block, so every
// problem surfaces as context for the root agent.
type AgentConfigValidator struct {
	projectRoot string
	agentsDir   string
	contextDir  string
}

func NewAgentConfigValidator(projectRoot, agentsDir, contextDir string) *AgentConfigValidator {
	return &AgentConfigValidator{projectRoot: projectRoot, agentsDir: agentsDir, contextDir: contextDir}
}

func (v *AgentConfigValidator) Name() string { return "agent_config" }

func (v *AgentConfigValidator) Handle(_ context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	agent := strings.TrimSpace(ev.AgentType)
	if agent == "" {
		return dispatch.Allow(), nil
	}
	if _, ok := builtinAgents[agent]; ok {
		return dispatch.Allow(), nil
	}

	problems := v.validate(agent)
	if len(problems) == 0 {
		return dispatch.AdviseResult(fmt.Sprintf("Agent %s: config validated", agent)), nil
	}
	return dispatch.AdviseResult(fmt.Sprintf("Agent %s config issues: %s",
		agent, strings.Join(problems, "; "))), nil
}

func (v *AgentConfigValidator) validate(agent string) []string {
	var problems []string
	if !agentNamePattern.MatchString(agent) {
		problems = append(problems, "agent type is not kebab-case")
	}

	path := filepath.Join(v.projectRoot, v.agentsDir, agent+".config.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return append(problems, fmt.Sprintf("no config at %s", filepath.Join(v.agentsDir, agent+".config.json")))
	}

	var cfg agentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return append(problems, "config is not valid JSON")
	}
	if cfg.Name == "" {
		problems = append(problems, "config missing required field name")
	} else if cfg.Name != agent {
		problems = append(problems, fmt.Sprintf("config name %q does not match agent type", cfg.Name))
	}
	if cfg.Version == "" {
		problems = append(problems, "config missing required field version")
	} else if !semverPattern.MatchString(cfg.Version) {
		problems = append(problems, fmt.Sprintf("version %q is not semver", cfg.Version))
	}
	for _, domain := range cfg.Context.Domains {
		dir := filepath.Join(v.projectRoot, v.contextDir, domain)
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			problems = append(problems, fmt.Sprintf("context domain %s has no directory", domain))
		}
	}
	return problems
}
