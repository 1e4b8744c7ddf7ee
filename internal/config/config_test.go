package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultMaxAgents, cfg.MaxAgents)
	assert.Equal(t, "main", cfg.TargetBranch)
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().DatabaseURL, cfg.DatabaseURL)
}

func TestLoadConfigMergesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_agents: 8
task_timeout: 45m
target_branch: develop
console:
  compact_mode: true
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxAgents)
	assert.Equal(t, 45*time.Minute, cfg.TaskTimeout)
	assert.Equal(t, "develop", cfg.TargetBranch)
	assert.True(t, cfg.Console.CompactMode)
	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultConfig().LockTimeout, cfg.LockTimeout)
}

func TestLoadConfigEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_agents: 2\n"), 0644))

	t.Setenv("MAX_AGENTS", "16")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.MaxAgents)
}

func TestLoadConfigInvalidDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("task_timeout: not-a-duration\n"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"negative max agents", func(c *Config) { c.MaxAgents = -1 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
		{"negative task timeout", func(c *Config) { c.TaskTimeout = -time.Second }, true},
		{"zero lock timeout", func(c *Config) { c.LockTimeout = 0 }, true},
		{"empty database url", func(c *Config) { c.DatabaseURL = "" }, true},
		{"empty target branch", func(c *Config) { c.TargetBranch = "" }, true},
		{"valid config", func(c *Config) {}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()
	agents := 12
	timeout := 5 * time.Minute
	logDir := "/tmp/logs"
	debug := true

	cfg.MergeWithFlags(&agents, &timeout, &logDir, &debug)

	assert.Equal(t, 12, cfg.MaxAgents)
	assert.Equal(t, 5*time.Minute, cfg.TaskTimeout)
	assert.Equal(t, "/tmp/logs", cfg.LogDir)
	assert.True(t, cfg.Debug)
}

func TestSetBuildTimeRepoRootRequired(t *testing.T) {
	SetBuildTimeRepoRoot("")
	_, err := LoadConfigFromRootWithBuildTime("")
	assert.Error(t, err)

	dir := t.TempDir()
	SetBuildTimeRepoRoot(dir)
	defer SetBuildTimeRepoRoot("")

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}
