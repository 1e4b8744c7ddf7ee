package cmd

import (
	"fmt"
	"time"

	"github.com/harrison/foreman/internal/reaper"
	"github.com/harrison/foreman/internal/taskqueue"
	"github.com/harrison/foreman/internal/workspace"
	"github.com/spf13/cobra"
)

// NewReapCommand exposes the optional, disabled-by-default crash-recovery
// scanner (§7, §9 Open Question #3): it resets tasks stuck in_progress past
// a caller-chosen staleness window back onto their specialty queue, and
// reports workspaces on disk whose branch wasn't named as still live.
// Nothing in the core's normal run loop calls this on its own -- a reaper
// sweep is an explicit, opt-in operator action.
func NewReapCommand() *cobra.Command {
	var stuckAfter time.Duration
	var reclaim bool

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Scan for and recover work orphaned by a crashed worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, closeLog, err := buildLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			queue, err := taskqueue.New(queueDBPath(cfg))
			if err != nil {
				return fmt.Errorf("open task queue: %w", err)
			}
			defer queue.Close()

			runner := workspace.NewShellCommandRunner()
			workspaces, err := workspace.New(cfg.ProjectPath, cfg.WorkspacesDir, runner, log)
			if err != nil {
				return fmt.Errorf("open workspace manager: %w", err)
			}

			r := reaper.New(queue, workspaces, stuckAfter, log)
			report, err := r.Sweep(cmd.Context(), nil)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "reset %d stuck task(s), found %d orphaned workspace(s)\n",
				len(report.ResetTasks), len(report.OrphanedWorkspaces))
			for _, ws := range report.OrphanedWorkspaces {
				fmt.Fprintf(cmd.OutOrStdout(), "  orphan: %s (%s)\n", ws.Path, ws.Branch)
				if reclaim {
					if err := r.Reclaim(cmd.Context(), ws.Path); err != nil {
						log.Errorf("reclaim %s: %v", ws.Path, err)
					}
				}
			}
			return nil
		},
	}

	configFlag(cmd)
	cmd.Flags().DurationVar(&stuckAfter, "stuck-after", 30*time.Minute, "how long a task may sit in_progress before it's considered orphaned")
	cmd.Flags().BoolVar(&reclaim, "reclaim", false, "also force-remove orphaned workspaces found on disk")

	return cmd
}
