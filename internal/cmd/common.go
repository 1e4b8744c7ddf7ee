package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrison/foreman/internal/config"
	"github.com/harrison/foreman/internal/fileutil"
	"github.com/harrison/foreman/internal/logger"
	"github.com/spf13/cobra"
)

// configFlag registers the --config flag every subcommand that touches
// runtime state shares, pointed at the repo-relative default the config
// loader already treats as "no file, use defaults + env".
func configFlag(cmd *cobra.Command) *string {
	return cmd.Flags().String("config", ".foreman/config.yaml", "path to a foreman config file")
}

// loadConfig resolves this invocation's configuration. When the caller left
// --config at its default, it defers to config.LoadConfigFromDir, which
// resolves config.yaml beneath the build-time injected repository root
// (GetForemanRepoRoot in root.go) so every subcommand finds config.yaml
// regardless of the caller's working directory; an explicit --config
// always wins and is loaded directly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if cmd.Flags().Changed("config") {
		path, flagErr := cmd.Flags().GetString("config")
		if flagErr != nil {
			return nil, flagErr
		}
		cfg, err = config.LoadConfig(path)
	} else {
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			// No build-time repo root injected (e.g. a dev build run
			// directly with `go run`) -- fall back to the flag's default.
			cfg, err = config.LoadConfig(".foreman/config.yaml")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// queueDBPath and lockDBPath carve out sibling sqlite files next to the
// configured database_url: one store per service (§4.2, §4.4), neither
// sharing a table namespace with the other.
func queueDBPath(cfg *config.Config) string {
	return storeSibling(cfg.DatabaseURL, "queue.db")
}

func lockDBPath(cfg *config.Config) string {
	return storeSibling(cfg.DatabaseURL, "locks.db")
}

func storeSibling(dbPath, name string) string {
	if dbPath == ":memory:" {
		return ":memory:"
	}
	dir := filepath.Dir(dbPath)
	if dir == "" || dir == "." {
		return name
	}
	if err := os.MkdirAll(dir, 0755); err == nil {
		return filepath.Join(dir, name)
	}
	return name
}

// readRequirements loads the text fed to the planner's decomposition
// prompt. A plain file is read as-is; a directory is treated as a
// multi-file requirements brief split across numbered fragments (e.g.
// "01-overview.md", "02-api.md") and concatenated in sorted filename
// order, each preceded by a heading naming its source file.
func readRequirements(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat requirements path: %w", err)
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read requirements file: %w", err)
		}
		return string(data), nil
	}

	result, err := fileutil.ScanDirectory(path, fileutil.ScanOptions{
		Extensions: []string{".md", ".markdown", ".txt"},
		Recursive:  false,
		MaxDepth:   1,
	})
	if err != nil {
		return "", fmt.Errorf("scan requirements directory: %w", err)
	}
	if len(result.Files) == 0 {
		return "", fmt.Errorf("no .md/.txt requirements fragments found in %s", path)
	}

	var b strings.Builder
	for _, f := range result.Files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("read requirements fragment %s: %w", f, err)
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", filepath.Base(f), string(data))
	}
	return b.String(), nil
}

// buildLogger fans output to both stderr and the configured log directory,
// using logger.MultiLogger to drive both sinks from one call site.
func buildLogger(cfg *config.Config) (logger.Logger, func(), error) {
	console := logger.NewConsoleLogger(os.Stderr, cfg.LogLevel)

	if cfg.LogDir == "" {
		return console, func() {}, nil
	}

	file, err := logger.NewFileLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("open file logger: %w", err)
	}

	return logger.MultiLogger{Loggers: []logger.Logger{console, file}}, func() { file.Close() }, nil
}
