// Package config carries the engine configuration: env-first with
// defaults, plus optional warden.yml overrides for the pattern and limit
// tables that operators tune per project.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// File names under the project root.
const (
	RuntimeDirName = ".warden"
	OverridesFile  = "warden.yml"
)

// Config is the resolved engine configuration for one invocation.
type Config struct {
	// ProjectRoot is the working directory the host reported (cwd).
	ProjectRoot string

	// HandlerTimeout is the per-handler wall-clock budget.
	HandlerTimeout time.Duration

	// BufferCapacity caps the diagnostic buffer.
	BufferCapacity int

	// BufferLockWait bounds lock acquisition on shared files.
	BufferLockWait time.Duration

	// MemoryDir, ContextDir, OutputDir and AgentsDir are project-relative
	// roots the lifecycle and compliance handlers watch.
	MemoryDir  string `yaml:"memoryDir"`
	ContextDir string `yaml:"contextDir"`
	OutputDir  string `yaml:"outputDir"`
	AgentsDir  string `yaml:"agentsDir"`

	// ProtectedBranches are branch names the VCS guard refuses pushes to.
	ProtectedBranches []string `yaml:"protectedBranches"`

	// DenyListPath points at the dependency deny list (one entry per line,
	// optionally prefixed "pip:" or "npm:"). Empty means built-ins only.
	DenyListPath string `yaml:"denyListPath"`

	// ConflictTablePath points at the drift detector's dependency →
	// assumption table. Empty disables drift detection.
	ConflictTablePath string `yaml:"conflictTablePath"`

	// LineCeilings overrides per-category memory line ceilings.
	LineCeilings map[string]int `yaml:"lineCeilings"`

	// ClickHouseDSN enables the optional fleet telemetry sink.
	ClickHouseDSN string

	// LogLevel controls the stderr logger.
	LogLevel string
}

// RuntimeDir returns the on-disk shared state directory for the project.
func (c *Config) RuntimeDir() string {
	return filepath.Join(c.ProjectRoot, RuntimeDirName)
}

// Load resolves configuration from the environment and, when present, the
// project's warden.yml. A malformed overrides file is reported but never
// fatal — the engine fails open onto defaults.
func Load(projectRoot string) (*Config, error) {
	cfg := &Config{
		ProjectRoot:       projectRoot,
		HandlerTimeout:    time.Duration(envInt("WARDEN_HANDLER_TIMEOUT_MS", 5000)) * time.Millisecond,
		BufferCapacity:    envInt("WARDEN_BUFFER_CAPACITY", 200),
		BufferLockWait:    time.Duration(envInt("WARDEN_BUFFER_LOCK_WAIT_MS", 500)) * time.Millisecond,
		MemoryDir:         "memory",
		ContextDir:        "context",
		OutputDir:         "claudedocs",
		AgentsDir:         "agents",
		ProtectedBranches: []string{"main", "master"},
		ClickHouseDSN:     os.Getenv("WARDEN_CLICKHOUSE_DSN"),
		LogLevel:          envOrDefault("WARDEN_LOG_LEVEL", "info"),
	}

	overridesPath := filepath.Join(projectRoot, OverridesFile)
	data, err := os.ReadFile(overridesPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", overridesPath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", overridesPath, err)
	}
	return cfg, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
