// Package reaper implements an optional, disabled-by-default recovery
// scanner for the state a crashed worker leaves behind (§7 of the original
// brief: "a workspace on disk, possibly-held locks that expire via TTL, a
// task stuck in in_progress"; §9 Open Question #3: "a reaper that resets
// stuck in_progress tasks after lock TTL is a reasonable extension"). The
// core never runs this on its own -- a caller that wants crash recovery
// constructs one and calls Sweep on whatever cadence it likes.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/foreman/internal/logger"
	"github.com/harrison/foreman/internal/taskqueue"
	"github.com/harrison/foreman/internal/workspace"
)

// Reaper scavenges orphaned work left by a dead worker. It does not itself
// decide which workers are alive; the caller supplies that via LiveBranches
// on each Sweep, since only the caller (a supervisor, a CLI command) knows
// which worker processes are still running.
type Reaper struct {
	queue      *taskqueue.Queue
	workspaces *workspace.Manager
	log        logger.Logger

	// StuckAfter is how long a task may sit in_progress before it's
	// considered orphaned. Should exceed the longest TaskTimeout in use,
	// since a live worker's in-flight task legitimately holds in_progress
	// for up to that long.
	StuckAfter time.Duration
}

// New constructs a Reaper. log may be nil, in which case it's a no-op.
func New(queue *taskqueue.Queue, workspaces *workspace.Manager, stuckAfter time.Duration, log logger.Logger) *Reaper {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	if stuckAfter <= 0 {
		stuckAfter = 30 * time.Minute
	}
	return &Reaper{queue: queue, workspaces: workspaces, StuckAfter: stuckAfter, log: log}
}

// Report summarizes what one Sweep found and did.
type Report struct {
	// ResetTasks are task ids that were stuck in_progress past StuckAfter
	// and were reset back onto their specialty queue.
	ResetTasks []string
	// OrphanedWorkspaces are workspace paths whose branch is not in the
	// caller-supplied liveness set and were left untouched (reported, not
	// removed -- deleting a workspace is destructive and this package never
	// does it without an explicit caller decision; see Reclaim).
	OrphanedWorkspaces []workspaceRecord
}

type workspaceRecord struct {
	Path   string
	Branch string
}

// Sweep resets every task that's been in_progress for longer than
// StuckAfter back onto its specialty queue, and reports (without deleting)
// every workspace whose branch isn't named in liveBranches. liveBranches
// should list the agent branches of workers the caller knows are still
// running; any workspace not in that set is a candidate for cleanup by the
// caller, via Reclaim.
func (r *Reaper) Sweep(ctx context.Context, liveBranches map[string]bool) (Report, error) {
	var report Report

	stuck, err := r.queue.StuckInProgress(ctx, r.StuckAfter)
	if err != nil {
		return report, fmt.Errorf("find stuck in_progress tasks: %w", err)
	}
	for _, taskID := range stuck {
		if err := r.queue.ResetToPending(ctx, taskID); err != nil {
			r.log.Warnf("reaper: failed to reset stuck task %s: %v", taskID, err)
			continue
		}
		r.log.Warnf("reaper: reset stuck task %s back to pending after %s", taskID, r.StuckAfter)
		report.ResetTasks = append(report.ResetTasks, taskID)
	}

	workspaces, err := r.workspaces.ListWorkspaces(ctx)
	if err != nil {
		return report, fmt.Errorf("list workspaces: %w", err)
	}
	for _, ws := range workspaces {
		if liveBranches[ws.Branch] {
			continue
		}
		report.OrphanedWorkspaces = append(report.OrphanedWorkspaces, workspaceRecord{Path: ws.Path, Branch: ws.Branch})
	}

	return report, nil
}

// Reclaim force-removes an orphaned workspace identified by a prior Sweep.
// Separated from Sweep so a caller can log or prompt before destroying
// anything -- workspace removal is irreversible local-disk work, unlike the
// task reset above which just re-queues.
func (r *Reaper) Reclaim(ctx context.Context, path string) error {
	if err := r.workspaces.RemoveWorkspace(ctx, path, true); err != nil {
		return fmt.Errorf("reclaim orphaned workspace %s: %w", path, err)
	}
	r.log.Warnf("reaper: reclaimed orphaned workspace %s", path)
	return nil
}
