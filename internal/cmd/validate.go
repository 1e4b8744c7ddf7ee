package cmd

import (
	"fmt"
	"time"

	"github.com/harrison/foreman/internal/validation"
	"github.com/harrison/foreman/internal/workspace"
	"github.com/spf13/cobra"
)

// NewValidateCommand runs the quality-gate pipeline (C5) against a
// directory on disk, outside the context of a merge -- useful for a
// worker's own workspace before it commits, or for CI to re-check a
// branch already merged.
func NewValidateCommand() *cobra.Command {
	var stopOnFailure bool
	var timeout time.Duration
	var merge bool

	cmd := &cobra.Command{
		Use:   "validate <workspace-path>",
		Short: "Run the validation pipeline against a workspace directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := workspace.NewShellCommandRunner()

			var pipeline *validation.Pipeline
			if merge {
				pipeline = validation.NewMergePipeline(runner, timeout)
			} else {
				pipeline = validation.NewDefaultPipeline(runner, timeout)
			}

			allPassed, results := pipeline.RunAll(cmd.Context(), args[0], stopOnFailure)

			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-8s %s\n", r.ValidatorName, r.Status, r.Message)
				for _, issue := range r.Issues {
					fmt.Fprintf(cmd.OutOrStdout(), "  - [%s] %s:%d %s\n", issue.Severity, issue.File, issue.Line, issue.Message)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), pipeline.Summary(results))

			if !allPassed {
				return fmt.Errorf("validation failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&stopOnFailure, "stop-on-failure", false, "abort the pipeline on the first failed or errored validator")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "per-validator command timeout")
	cmd.Flags().BoolVar(&merge, "merge-order", false, "use the merge orchestrator's validator order instead of the default pre-commit order")

	return cmd
}
