package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/harrison/foreman/internal/claude"
	"github.com/harrison/foreman/internal/config"
	"github.com/harrison/foreman/internal/lockservice"
	"github.com/harrison/foreman/internal/logger"
	"github.com/harrison/foreman/internal/merge"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/planner"
	"github.com/harrison/foreman/internal/taskqueue"
	"github.com/harrison/foreman/internal/validation"
	"github.com/harrison/foreman/internal/worker"
	"github.com/harrison/foreman/internal/workspace"
	"github.com/spf13/cobra"
)

// NewRunCommand wires every C1-C8 component together end to end: plan the
// requirements, seed the queue, spawn one worker per specialty the plan
// touches, let them drain their queues, then merge each worker's branch
// into the target branch and tear the workspaces down.
func NewRunCommand() *cobra.Command {
	var projectID string
	var projectContextPath string
	var planFile string
	var skipValidation bool
	var maxAgentsFlag int
	var taskTimeoutFlag time.Duration
	var logDirFlag string
	var debugFlag bool

	cmd := &cobra.Command{
		Use:   "run [requirements-file]",
		Short: "Plan, execute, and merge a full project brief end to end",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			var maxAgentsOverride *int
			if cmd.Flags().Changed("max-agents") {
				maxAgentsOverride = &maxAgentsFlag
			}
			var taskTimeoutOverride *time.Duration
			if cmd.Flags().Changed("task-timeout") {
				taskTimeoutOverride = &taskTimeoutFlag
			}
			var logDirOverride *string
			if cmd.Flags().Changed("log-dir") {
				logDirOverride = &logDirFlag
			}
			var debugOverride *bool
			if cmd.Flags().Changed("debug") {
				debugOverride = &debugFlag
			}
			cfg.MergeWithFlags(maxAgentsOverride, taskTimeoutOverride, logDirOverride, debugOverride)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config after flag overrides: %w", err)
			}

			log, closeLog, err := buildLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			var ep *models.ExecutionPlan
			inv := claude.NewInvoker()
			inv.Timeout = cfg.TaskTimeout

			if planFile != "" {
				ep, err = planner.LoadPlanFile(planFile)
				if err != nil {
					return fmt.Errorf("load plan file: %w", err)
				}
			} else {
				if len(args) != 1 {
					return fmt.Errorf("requires exactly one requirements-file argument, or --plan-file")
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

				svc := claude.NewServiceWithInvoker(inv)
				pl := planner.New(svc)

				planCtx, cancelPlan := context.WithTimeout(cmd.Context(), 10*time.Minute)
				ep, err = pl.Plan(planCtx, projectID, requirements, projectContext)
				cancelPlan()
				if err != nil {
					return fmt.Errorf("plan: %w", err)
				}
			}
			log.LogPlan(ep)

			ctx := cmd.Context()

			queue, err := taskqueue.New(queueDBPath(cfg))
			if err != nil {
				return fmt.Errorf("open task queue: %w", err)
			}
			defer queue.Close()

			locks, err := lockservice.New(lockDBPath(cfg))
			if err != nil {
				return fmt.Errorf("open lock service: %w", err)
			}
			defer locks.Close()

			for _, task := range ep.Plan.Tasks {
				if err := queue.Enqueue(ctx, task); err != nil {
					return fmt.Errorf("enqueue %s: %w", task.ID, err)
				}
			}

			runner := workspace.NewShellCommandRunner()
			workspaces, err := workspace.New(cfg.ProjectPath, cfg.WorkspacesDir, runner, log)
			if err != nil {
				return fmt.Errorf("open workspace manager: %w", err)
			}

			specialties := distinctSpecialties(ep.Plan.Tasks)
			if len(specialties) == 0 {
				log.Infof("plan produced no tasks; nothing to run")
				return nil
			}
			if len(specialties) > cfg.MaxAgents && cfg.MaxAgents > 0 {
				log.Warnf("plan touches %d specialties but max_agents is %d; some specialty queues will have no worker draining them",
					len(specialties), cfg.MaxAgents)
				specialties = specialties[:cfg.MaxAgents]
			}

			workers := make([]*worker.Worker, 0, len(specialties))
			for i, specialty := range specialties {
				wcfg := worker.Config{
					ID:          fmt.Sprintf("%d", i+1),
					Specialty:   specialty,
					BaseBranch:  cfg.TargetBranch,
					TaskTimeout: cfg.TaskTimeout,
				}
				w := worker.New(wcfg, queue, locks, workspaces, inv, nil, log)
				if err := w.Spawn(ctx); err != nil {
					return fmt.Errorf("spawn worker for %s: %w", specialty, err)
				}
				workers = append(workers, w)
			}

			runStart := time.Now()
			runCtx, cancelRun := context.WithCancel(ctx)
			var wg sync.WaitGroup
			for _, w := range workers {
				wg.Add(1)
				go func(w *worker.Worker) {
					defer wg.Done()
					if err := w.RunLoop(runCtx); err != nil {
						log.Errorf("worker %s run loop: %v", w.ID(), err)
					}
				}(w)
			}

			ids := make([]string, len(ep.Plan.Tasks))
			for i, t := range ep.Plan.Tasks {
				ids[i] = t.ID
			}
			waitForTasks(runCtx, queue, ids, progressReporter(cfg, log, len(ids)))

			for _, w := range workers {
				w.Stop()
			}
			wg.Wait()
			cancelRun()

			var pipeline *validation.Pipeline
			if !skipValidation {
				pipeline = validation.NewMergePipeline(runner, cfg.TaskTimeout)
			}
			orchestrator := merge.New(cfg.ProjectPath, cfg.TargetBranch, runner, workspaces, pipeline, !skipValidation, true, log)

			var results []models.TaskResult
			for _, id := range ids {
				if r, resErr := queue.Result(ctx, id); resErr == nil {
					results = append(results, *r)
				}
			}
			execResult := models.NewExecutionResult(results, time.Since(runStart))

			for _, w := range workers {
				mergeResult := orchestrator.MergeAgentWork(ctx, w.Branch(), w.WorkspacePath(), w.ID())
				log.LogMergeResult(mergeResult)
				if mergeResult.Success {
					orchestrator.CleanupAgentBranch(ctx, w.Branch())
				}
				if cleanupErr := w.Cleanup(ctx); cleanupErr != nil {
					log.Errorf("cleanup worker %s: %v", w.ID(), cleanupErr)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "completed=%d failed=%d total_files=%d\n",
				execResult.Completed, execResult.Failed, execResult.TotalFiles)
			if execResult.Failed > 0 {
				return fmt.Errorf("%d task(s) failed", execResult.Failed)
			}
			return nil
		},
	}

	configFlag(cmd)
	cmd.Flags().StringVar(&projectID, "project-id", "", "project identifier stamped onto every generated task")
	cmd.Flags().StringVar(&projectContextPath, "context", "", "optional file of extra project context appended to the decomposition prompt")
	cmd.Flags().StringVar(&planFile, "plan-file", "", "load a hand-authored Markdown or YAML plan instead of decomposing a requirements file via the LLM")
	cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "merge without running the quality-gate pipeline first")
	cmd.Flags().IntVar(&maxAgentsFlag, "max-agents", 0, "override config max_agents for this run")
	cmd.Flags().DurationVar(&taskTimeoutFlag, "task-timeout", 0, "override config task_timeout for this run")
	cmd.Flags().StringVar(&logDirFlag, "log-dir", "", "override config log_dir for this run")
	cmd.Flags().BoolVar(&debugFlag, "debug", false, "override config debug for this run")

	return cmd
}

// distinctSpecialties returns the lexically sorted set of specialty tags
// appearing across tasks -- the specialty queues that need a worker
// draining them for this plan to ever finish.
func distinctSpecialties(tasks []models.Task) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range tasks {
		if !seen[t.Specialty] {
			seen[t.Specialty] = true
			out = append(out, t.Specialty)
		}
	}
	sort.Strings(out)
	return out
}

// waitForTasks polls the queue until every task id reaches a terminal
// state or ctx is canceled. It does not time out on its own: §7 is explicit
// that a failed task blocks its dependents indefinitely rather than being
// retried, so a plan with a permanently-failed upstream task is expected
// to leave some ids pending forever until the caller cancels ctx. report,
// if non-nil, is called with the number of ids that have reached a terminal
// state on every poll.
func waitForTasks(ctx context.Context, queue *taskqueue.Queue, ids []string, report func(finished int)) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		done := true
		finished := 0
		for _, id := range ids {
			status, err := queue.Status(ctx, id)
			if err != nil {
				continue
			}
			if status == models.TaskCompleted || status == models.TaskFailed {
				finished++
			} else {
				done = false
			}
		}
		if report != nil {
			report(finished)
		}
		if done {
			return
		}
	}
}

// progressReporter builds the wave-progress callback waitForTasks drives,
// rendering a ProgressBar to stderr once per poll when the configuration's
// console section asks for one. Returns nil (no reporting) otherwise.
func progressReporter(cfg *config.Config, log logger.Logger, total int) func(int) {
	if !cfg.Console.EnableProgressBar || total == 0 {
		return nil
	}
	bar := logger.NewProgressBar(total, 30, cfg.Console.EnableColor)
	bar.SetPrefix("tasks ")
	return func(finished int) {
		bar.Update(finished)
		fmt.Fprintf(os.Stderr, "\r%s", bar.Render())
		if finished >= total {
			fmt.Fprintln(os.Stderr)
			log.Infof("wave complete: %d/%d tasks reached a terminal state", finished, total)
		}
	}
}
