package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConsoleConfig controls terminal output formatting.
type ConsoleConfig struct {
	EnableColor       bool `yaml:"enable_color"`
	EnableProgressBar bool `yaml:"enable_progress_bar"`
	ShowAgentNames    bool `yaml:"show_agent_names"`
	ShowDurations     bool `yaml:"show_durations"`
	CompactMode       bool `yaml:"compact_mode"`
}

// Config holds the runtime configuration for foreman.
//
// DatabaseURL, MaxAgents, TaskTimeout, LockTimeout, the LLM fields,
// LogLevel and Debug have environment-variable overrides, applied after
// the YAML file is merged, so that a shell-launched worker or CI job can
// override config without touching the checked-in file. The remaining
// fields come from defaults and the YAML file only.
type Config struct {
	// DatabaseURL is the DSN for the lock/queue/graph store. A bare path
	// or "file:..." DSN selects the embedded sqlite backend; ":memory:"
	// is honored for tests.
	DatabaseURL string `yaml:"database_url"`

	// MaxAgents caps the number of workers the run command spawns, one per
	// specialty. A zero in the YAML file keeps DefaultMaxAgents; a zero set
	// through MAX_AGENTS or a flag means no cap.
	MaxAgents int `yaml:"max_agents"`

	// TaskTimeout bounds a single task's end-to-end execution, including
	// lock acquisition, the LLM invocation, and the commit.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// LockTimeout is loaded and validated (it must be positive), but no
	// component reads it; the lock subcommand takes its TTL from its own
	// --ttl flag.
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// LLMProfile/LLMRegion/LLMModelID select the transport profile passed
	// to the claude invoker; see internal/claude.
	LLMProfile  string `yaml:"llm_profile"`
	LLMRegion   string `yaml:"llm_region"`
	LLMModelID  string `yaml:"llm_model_id"`

	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"`
	Debug    bool   `yaml:"debug"`

	// ProjectPath is the root of the git repository operated on.
	ProjectPath string `yaml:"project_path"`

	// TargetBranch is the branch task worktrees are ultimately merged into.
	TargetBranch string `yaml:"target_branch"`

	// WorkspacesDir holds per-task git worktrees, relative to ProjectPath
	// unless absolute.
	WorkspacesDir string `yaml:"workspaces_dir"`

	Console ConsoleConfig `yaml:"console"`
}

// DefaultMaxAgents is used when MaxAgents is left at its zero value.
const DefaultMaxAgents = 4

// DefaultConsoleConfig returns sensible terminal output defaults.
func DefaultConsoleConfig() ConsoleConfig {
	return ConsoleConfig{
		EnableColor:       true,
		EnableProgressBar: true,
		ShowAgentNames:    true,
		ShowDurations:     true,
		CompactMode:       false,
	}
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		DatabaseURL:   ".foreman/foreman.db",
		MaxAgents:     DefaultMaxAgents,
		TaskTimeout:   30 * time.Minute,
		LockTimeout:   2 * time.Minute,
		LLMProfile:    "default",
		LLMRegion:     "",
		LLMModelID:    "",
		LogLevel:      "info",
		LogDir:        ".foreman/logs",
		Debug:         false,
		ProjectPath:   ".",
		TargetBranch:  "main",
		WorkspacesDir: ".foreman/workspaces",
		Console:       DefaultConsoleConfig(),
	}
}

// applyEnvOverrides applies the DATABASE_URL, MAX_AGENTS, TASK_TIMEOUT,
// LOCK_TIMEOUT, LLM_PROFILE, LLM_REGION, LLM_MODEL_ID, LOG_LEVEL and DEBUG
// environment overrides. Env vars always win over both defaults and the
// YAML file. TASK_TIMEOUT and LOCK_TIMEOUT accept a whole number of
// seconds or a Go duration string such as "30m".
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("MAX_AGENTS"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.MaxAgents = n
		}
	}
	if v := os.Getenv("TASK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TaskTimeout = d
		} else if n, err := parsePositiveInt(v); err == nil {
			cfg.TaskTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("LOCK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LockTimeout = d
		} else if n, err := parsePositiveInt(v); err == nil {
			cfg.LockTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("LLM_PROFILE"); v != "" {
		cfg.LLMProfile = v
	}
	if v := os.Getenv("LLM_REGION"); v != "" {
		cfg.LLMRegion = v
	}
	if v := os.Getenv("LLM_MODEL_ID"); v != "" {
		cfg.LLMModelID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		cfg.Debug = v == "true" || v == "1"
	}
}

func parsePositiveInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %q", s)
	}
	return n, nil
}

// LoadConfig loads configuration from the given YAML path, merges it over
// DefaultConfig, and then applies environment overrides. A missing file is
// not an error; it just means the defaults (plus env) are used.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	type yamlConfig struct {
		DatabaseURL   string        `yaml:"database_url"`
		MaxAgents     int           `yaml:"max_agents"`
		TaskTimeout   string        `yaml:"task_timeout"`
		LockTimeout   string        `yaml:"lock_timeout"`
		LLMProfile    string        `yaml:"llm_profile"`
		LLMRegion     string        `yaml:"llm_region"`
		LLMModelID    string        `yaml:"llm_model_id"`
		LogLevel      string        `yaml:"log_level"`
		LogDir        string        `yaml:"log_dir"`
		Debug         bool          `yaml:"debug"`
		ProjectPath   string        `yaml:"project_path"`
		TargetBranch  string        `yaml:"target_branch"`
		WorkspacesDir string        `yaml:"workspaces_dir"`
		Console       ConsoleConfig `yaml:"console"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if yamlCfg.DatabaseURL != "" {
		cfg.DatabaseURL = yamlCfg.DatabaseURL
	}
	if yamlCfg.MaxAgents != 0 {
		cfg.MaxAgents = yamlCfg.MaxAgents
	}
	if yamlCfg.TaskTimeout != "" {
		d, err := time.ParseDuration(yamlCfg.TaskTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid task_timeout %q: %w", yamlCfg.TaskTimeout, err)
		}
		cfg.TaskTimeout = d
	}
	if yamlCfg.LockTimeout != "" {
		d, err := time.ParseDuration(yamlCfg.LockTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid lock_timeout %q: %w", yamlCfg.LockTimeout, err)
		}
		cfg.LockTimeout = d
	}
	if yamlCfg.LLMProfile != "" {
		cfg.LLMProfile = yamlCfg.LLMProfile
	}
	if yamlCfg.LLMRegion != "" {
		cfg.LLMRegion = yamlCfg.LLMRegion
	}
	if yamlCfg.LLMModelID != "" {
		cfg.LLMModelID = yamlCfg.LLMModelID
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.Debug {
		cfg.Debug = yamlCfg.Debug
	}
	if yamlCfg.ProjectPath != "" {
		cfg.ProjectPath = yamlCfg.ProjectPath
	}
	if yamlCfg.TargetBranch != "" {
		cfg.TargetBranch = yamlCfg.TargetBranch
	}
	if yamlCfg.WorkspacesDir != "" {
		cfg.WorkspacesDir = yamlCfg.WorkspacesDir
	}

	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err == nil {
		if consoleSection, exists := rawMap["console"]; exists && consoleSection != nil {
			consoleMap, _ := consoleSection.(map[string]interface{})
			console := yamlCfg.Console
			if _, ok := consoleMap["enable_color"]; ok {
				cfg.Console.EnableColor = console.EnableColor
			}
			if _, ok := consoleMap["enable_progress_bar"]; ok {
				cfg.Console.EnableProgressBar = console.EnableProgressBar
			}
			if _, ok := consoleMap["show_agent_names"]; ok {
				cfg.Console.ShowAgentNames = console.ShowAgentNames
			}
			if _, ok := consoleMap["show_durations"]; ok {
				cfg.Console.ShowDurations = console.ShowDurations
			}
			if _, ok := consoleMap["compact_mode"]; ok {
				cfg.Console.CompactMode = console.CompactMode
			}
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadConfigFromRootWithBuildTime loads .foreman/config.yaml beneath a
// build-time injected repository root.
func LoadConfigFromRootWithBuildTime(buildTimeRoot string) (*Config, error) {
	if buildTimeRoot == "" {
		return nil, fmt.Errorf("foreman repo root not configured: rebuild with repo path injected")
	}
	configPath := filepath.Join(buildTimeRoot, ".foreman", "config.yaml")
	return LoadConfig(configPath)
}

// LoadConfigFromDir loads .foreman/config.yaml from the build-time injected
// repository root; dir is accepted for call-site symmetry but ignored, as
// the build-time root is authoritative.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfigFromRootWithBuildTime(buildTimeRepoRoot)
}

// MergeWithFlags merges CLI flag overrides into the configuration.
// Non-nil flag values override configuration values.
func (c *Config) MergeWithFlags(maxAgents *int, taskTimeout *time.Duration, logDir *string, debug *bool) {
	if maxAgents != nil {
		c.MaxAgents = *maxAgents
	}
	if taskTimeout != nil {
		c.TaskTimeout = *taskTimeout
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if debug != nil {
		c.Debug = *debug
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.MaxAgents < 0 {
		return fmt.Errorf("max_agents must be >= 0, got %d", c.MaxAgents)
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.TaskTimeout < 0 {
		return fmt.Errorf("task_timeout must be >= 0, got %v", c.TaskTimeout)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be > 0, got %v", c.LockTimeout)
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("database_url cannot be empty")
	}
	if strings.TrimSpace(c.TargetBranch) == "" {
		return fmt.Errorf("target_branch cannot be empty")
	}

	return nil
}
