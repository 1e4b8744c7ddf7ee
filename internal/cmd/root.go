// Package cmd wires the cobra CLI surface for foreman: the run/plan/
// validate/lock/queue subcommands each expose one slice of the C1-C8
// machinery (planner, queue, lock service, workers, merge orchestrator,
// validation pipeline) as a standalone operation.
package cmd

import (
	"github.com/harrison/foreman/internal/config"
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

// ForemanRepoRoot is the path to the foreman-managed repository root,
// injected at build time via -ldflags so database and workspace paths
// resolve consistently regardless of the caller's working directory.
var ForemanRepoRoot = ""

// GetForemanRepoRoot returns the build-time injected repository root.
func GetForemanRepoRoot() string {
	return ForemanRepoRoot
}

// NewRootCommand creates and returns the root cobra command for foreman.
func NewRootCommand() *cobra.Command {
	config.SetBuildTimeRepoRoot(ForemanRepoRoot)

	cmd := &cobra.Command{
		Use:   "foreman",
		Short: "Dependency-graph orchestration for a fleet of specialist workers",
		Long: `Foreman decomposes a project brief into a dependency graph of tasks,
runs specialty workers that draw ready tasks from per-specialty queues,
execute each in an isolated branch workspace, and merges validated results
back into the target branch.`,
		Version:      Version,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewPlanCommand())
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewLockCommand())
	cmd.AddCommand(NewQueueCommand())
	cmd.AddCommand(NewReapCommand())

	return cmd
}
