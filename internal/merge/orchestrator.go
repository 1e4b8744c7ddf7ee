// Package merge implements the integration funnel that folds a worker's
// finished task branch into the project's target branch: a conflict
// pre-check against what the target branch has done since divergence, a
// quality-gate validation pass over the worker's workspace, and finally the
// merge attempt itself, with any tool-level conflict rolled back before
// returning.
package merge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harrison/foreman/internal/logger"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/validation"
	"github.com/harrison/foreman/internal/workspace"
)

// Orchestrator merges completed agent branches into a single target branch,
// one at a time per target (see branchLock), running the project's quality
// gates against the worker's own workspace before ever touching the target.
type Orchestrator struct {
	root         string
	targetBranch string
	runner       workspace.CommandRunner
	workspaces   *workspace.Manager
	pipeline     *validation.Pipeline

	runQualityGates    bool
	stopOnFirstFailure bool

	log logger.Logger

	mu          sync.Mutex
	branchLocks map[string]*sync.Mutex
}

// New constructs an Orchestrator. root is the path to the project's primary
// git working tree (not a worker's worktree) -- this is where target-branch
// checkouts and merges happen. pipeline is typically built with
// validation.NewMergePipeline.
func New(root, targetBranch string, runner workspace.CommandRunner, workspaces *workspace.Manager, pipeline *validation.Pipeline, runQualityGates, stopOnFirstFailure bool, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	return &Orchestrator{
		root:               root,
		targetBranch:       targetBranch,
		runner:             runner,
		workspaces:         workspaces,
		pipeline:           pipeline,
		runQualityGates:    runQualityGates,
		stopOnFirstFailure: stopOnFirstFailure,
		log:                log,
		branchLocks:        make(map[string]*sync.Mutex),
	}
}

// lockFor returns the serialization mutex for a target branch, creating it
// on first use. Merges into different target branches proceed concurrently;
// merges into the same target branch never overlap, since a racing pair
// would both checkout and mutate the same working tree. This is in-process
// only -- it does not coordinate across orchestrator instances or hosts.
func (o *Orchestrator) lockFor(branch string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.branchLocks[branch]
	if !ok {
		l = &sync.Mutex{}
		o.branchLocks[branch] = l
	}
	return l
}

func (o *Orchestrator) run(ctx context.Context, args ...string) (string, error) {
	out, err := o.runner.Run(ctx, o.root, args...)
	if err != nil {
		return out, fmt.Errorf("%s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(out))
	}
	return out, nil
}

// MergeAgentWork runs the full four-step funnel for one finished task:
// conflict pre-check, quality gates, merge attempt, result assembly. It
// never leaves the target branch's working tree in a half-merged state: any
// merge it starts but cannot finish is aborted before returning.
func (o *Orchestrator) MergeAgentWork(ctx context.Context, agentBranch, workspacePath, taskID string) models.MergeResult {
	start := time.Now()
	lock := o.lockFor(o.targetBranch)
	lock.Lock()
	defer lock.Unlock()

	result := models.MergeResult{TaskID: taskID, Branch: agentBranch}

	o.log.LogMergeStep(agentBranch, "conflict-check")
	conflicts, err := o.detectConflicts(ctx, agentBranch)
	if err != nil {
		result.Error = fmt.Sprintf("conflict check: %v", err)
		result.Duration = time.Since(start)
		o.log.LogMergeResult(result)
		return result
	}
	if len(conflicts) > 0 {
		result.ConflictedFiles = conflicts
		result.Duration = time.Since(start)
		o.log.LogMergeResult(result)
		return result
	}

	if o.runQualityGates {
		o.log.LogMergeStep(agentBranch, "quality-gates")
		passed, results := o.pipeline.RunAll(ctx, workspacePath, o.stopOnFirstFailure)
		result.Pipeline = models.PipelineResult{Results: results}
		if !passed {
			result.Error = "quality gates failed: " + o.pipeline.Summary(results)
			result.Duration = time.Since(start)
			o.log.LogMergeResult(result)
			return result
		}
	}

	o.log.LogMergeStep(agentBranch, "merge-attempt")
	commitID, rolledBack, conflictedFiles, err := o.attemptMerge(ctx, agentBranch, taskID)
	result.RolledBack = rolledBack
	if err != nil {
		result.Error = err.Error()
		result.ConflictedFiles = conflictedFiles
		result.Duration = time.Since(start)
		o.log.LogMergeResult(result)
		return result
	}

	result.Success = true
	result.CommitID = commitID
	result.Duration = time.Since(start)
	o.log.LogMergeResult(result)
	return result
}

// detectConflicts computes the merge base of the target and agent branches,
// then diffs each of them against that base. A file touched on both sides
// since divergence is reported as a conflict without attempting any merge.
func (o *Orchestrator) detectConflicts(ctx context.Context, agentBranch string) ([]string, error) {
	base, err := o.run(ctx, "git", "merge-base", o.targetBranch, agentBranch)
	if err != nil {
		return nil, fmt.Errorf("merge-base: %w", err)
	}
	base = strings.TrimSpace(base)

	targetFiles, err := o.diffFiles(ctx, base, o.targetBranch)
	if err != nil {
		return nil, err
	}
	agentFiles, err := o.diffFiles(ctx, base, agentBranch)
	if err != nil {
		return nil, err
	}

	changedByTarget := make(map[string]bool, len(targetFiles))
	for _, f := range targetFiles {
		changedByTarget[f] = true
	}

	var conflicts []string
	for _, f := range agentFiles {
		if changedByTarget[f] {
			conflicts = append(conflicts, f)
		}
	}
	return conflicts, nil
}

func (o *Orchestrator) diffFiles(ctx context.Context, from, to string) ([]string, error) {
	out, err := o.run(ctx, "git", "diff", "--name-only", from, to)
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", from, to, err)
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// attemptMerge checks out the target branch and merges agentBranch into it.
// Any tool-level conflict is rolled back with `git merge --abort` before
// returning, leaving the target branch exactly as it was on entry.
func (o *Orchestrator) attemptMerge(ctx context.Context, agentBranch, taskID string) (commitID string, rolledBack bool, conflicts []string, err error) {
	if _, err = o.run(ctx, "git", "checkout", o.targetBranch); err != nil {
		return "", false, nil, fmt.Errorf("checkout target branch: %w", err)
	}

	message := fmt.Sprintf("Merge %s (task %s)", agentBranch, taskID)
	_, mergeErr := o.run(ctx, "git", "merge", "--no-ff", agentBranch, "-m", message)
	if mergeErr == nil {
		head, err := o.run(ctx, "git", "rev-parse", "HEAD")
		if err != nil {
			return "", false, nil, fmt.Errorf("resolve merged head: %w", err)
		}
		return strings.TrimSpace(head), false, nil, nil
	}

	status, statusErr := o.run(ctx, "git", "status", "--porcelain")
	if statusErr == nil {
		conflicts = parseConflictedFiles(status)
	}

	if _, abortErr := o.run(ctx, "git", "merge", "--abort"); abortErr != nil {
		return "", false, conflicts, fmt.Errorf("merge failed (%v) and abort also failed: %w", mergeErr, abortErr)
	}
	return "", true, conflicts, &models.MergeConflictError{Branch: agentBranch, ConflictedFiles: conflicts}
}

// parseConflictedFiles scans `git status --porcelain` output for the
// unmerged status-code pairs git uses to mark conflicts: UU (both
// modified), AA (both added), DD (both deleted), AU/UA (added by one side)
// and DU/UD (deleted by one side).
func parseConflictedFiles(porcelain string) []string {
	var files []string
	for _, line := range strings.Split(porcelain, "\n") {
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		switch code {
		case "UU", "AA", "DD", "DU", "UD", "AU", "UA":
			files = append(files, strings.TrimSpace(line[3:]))
		}
	}
	return files
}

// CleanupAgentBranch deletes a merged agent branch. Failure is logged and
// swallowed rather than propagated: a leftover branch is untidy, not
// incorrect, and should never fail a merge that already succeeded.
func (o *Orchestrator) CleanupAgentBranch(ctx context.Context, branch string) bool {
	if err := o.workspaces.DeleteBranch(ctx, branch, false); err != nil {
		o.log.Warnf("cleanup agent branch %s: %v", branch, err)
		return false
	}
	return true
}
