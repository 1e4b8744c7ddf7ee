package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/harrison/foreman/internal/claude"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/planner"
	"github.com/spf13/cobra"
)

// NewPlanCommand creates the "plan" subcommand: it produces a validated
// execution plan (levels, critical path, hours, speedup) without enqueueing
// anything, either by running the planner's LLM decomposition (C8) against
// a requirements file, or by loading a hand-authored Markdown/YAML plan
// file directly via --plan-file.
func NewPlanCommand() *cobra.Command {
	var projectID string
	var projectContextPath string
	var planFile string

	cmd := &cobra.Command{
		Use:   "plan [requirements-file]",
		Short: "Decompose a requirements file, or load a hand-authored plan file, into a validated execution plan",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if planFile != "" {
				ep, err := planner.LoadPlanFile(planFile)
				if err != nil {
					return fmt.Errorf("load plan file: %w", err)
				}
				printExecutionPlan(cmd, ep)
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("requires exactly one requirements-file argument, or --plan-file")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			requirements, err := readRequirements(args[0])
			if err != nil {
				return err
			}

			var projectContext string
			if projectContextPath != "" {
				data, err := os.ReadFile(projectContextPath)
				if err != nil {
					return fmt.Errorf("read project context file: %w", err)
				}
				projectContext = string(data)
			}

			inv := claude.NewInvoker()
			inv.Timeout = cfg.TaskTimeout
			svc := claude.NewServiceWithInvoker(inv)
			p := planner.New(svc)

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()

			ep, err := p.Plan(ctx, projectID, requirements, projectContext)
			if err != nil {
				return fmt.Errorf("plan: %w", err)
			}

			printExecutionPlan(cmd, ep)
			return nil
		},
	}

	configFlag(cmd)
	cmd.Flags().StringVar(&projectID, "project-id", "", "project identifier stamped onto every generated task")
	cmd.Flags().StringVar(&projectContextPath, "context", "", "optional file of extra project context appended to the decomposition prompt")
	cmd.Flags().StringVar(&planFile, "plan-file", "", "load a hand-authored Markdown or YAML plan instead of decomposing a requirements file via the LLM")

	return cmd
}

// printExecutionPlan renders the plan the same shape logger.LogPlan does,
// plus the per-level task membership LogPlan's one-liner leaves out.
func printExecutionPlan(cmd *cobra.Command, ep *models.ExecutionPlan) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "project: %s\n", ep.Plan.ProjectName)
	fmt.Fprintf(out, "tasks: %d across %d levels\n", len(ep.Plan.Tasks), len(ep.Levels))
	for i, level := range ep.Levels {
		fmt.Fprintf(out, "  level %d: %v\n", i, level)
	}
	fmt.Fprintf(out, "critical path: %v\n", ep.CriticalPath)
	fmt.Fprintf(out, "total hours: %.1f, parallel hours: %.1f, speedup: %.2fx\n",
		ep.TotalEstimatedHours, ep.ParallelEstimatedHours, ep.Speedup)
}
