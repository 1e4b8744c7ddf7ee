package models

import "time"

// MergeResult is the outcome of the merge orchestrator attempting to fold a
// task's workspace branch into the target branch.
type MergeResult struct {
	TaskID          string        `json:"task_id"`
	Branch          string        `json:"branch"`
	Success         bool          `json:"success"`
	CommitID        string        `json:"commit_id,omitempty"`
	ConflictedFiles []string      `json:"conflicted_files,omitempty"`
	RolledBack      bool          `json:"rolled_back"`
	Pipeline        PipelineResult `json:"pipeline"`
	Duration        time.Duration `json:"duration"`
	Error           string        `json:"error,omitempty"`
}

// Summary renders a short, single-line human-readable description of the
// merge outcome, for CLI and log output.
func (m MergeResult) Summary() string {
	if m.Success {
		return "merged " + m.Branch + " -> " + m.CommitID
	}
	if len(m.ConflictedFiles) > 0 {
		return "conflict merging " + m.Branch + " on " + joinFiles(m.ConflictedFiles)
	}
	if m.Error != "" {
		return "failed to merge " + m.Branch + ": " + m.Error
	}
	return "failed to merge " + m.Branch
}

func joinFiles(files []string) string {
	out := ""
	for i, f := range files {
		if i > 0 {
			out += ", "
		}
		out += f
	}
	return out
}
