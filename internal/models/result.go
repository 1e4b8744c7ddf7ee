package models

import "time"

// TaskResult is the outcome of a worker executing a single task: whether it
// succeeded, what commit it produced, and which files it touched.
type TaskResult struct {
	Task          Task          `json:"task"`
	Success       bool          `json:"success"`
	CommitID      string        `json:"commit_id,omitempty"`
	ModifiedFiles []string      `json:"modified_files,omitempty"`
	Output        string        `json:"output,omitempty"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration"`
	RetryCount    int           `json:"retry_count"`
	ValidationResults []ValidationResult `json:"validation_results,omitempty"`
}

// ExecutionResult is the aggregate outcome of running an entire plan to
// completion: one wave, one worker pool lifetime, or one full plan run.
type ExecutionResult struct {
	TotalTasks      int            `json:"total_tasks"`
	Completed       int            `json:"completed"`
	Failed          int            `json:"failed"`
	Duration        time.Duration  `json:"duration"`
	FailedTasks     []TaskResult   `json:"failed_tasks"`
	SpecialtyUsage  map[string]int `json:"specialty_usage"`
	TotalFiles      int            `json:"total_files"`
	AvgTaskDuration time.Duration  `json:"avg_task_duration"`
}

// NewExecutionResult builds an ExecutionResult from a completed batch of
// TaskResults, computing the summary metrics in one pass.
func NewExecutionResult(results []TaskResult, totalDuration time.Duration) *ExecutionResult {
	er := &ExecutionResult{
		TotalTasks:     len(results),
		Duration:       totalDuration,
		FailedTasks:    []TaskResult{},
		SpecialtyUsage: make(map[string]int),
	}
	er.CalculateMetrics(results)
	return er
}

// CalculateMetrics recomputes every derived field from results, discarding
// whatever was there before.
func (er *ExecutionResult) CalculateMetrics(results []TaskResult) {
	er.SpecialtyUsage = make(map[string]int)
	er.Completed = 0
	er.Failed = 0
	er.FailedTasks = nil

	uniqueFiles := make(map[string]bool)
	var totalDur time.Duration

	for _, result := range results {
		if result.Task.Specialty != "" {
			er.SpecialtyUsage[result.Task.Specialty]++
		}
		for _, f := range result.ModifiedFiles {
			uniqueFiles[f] = true
		}
		totalDur += result.Duration

		if result.Success {
			er.Completed++
		} else {
			er.Failed++
			er.FailedTasks = append(er.FailedTasks, result)
		}
	}

	er.TotalFiles = len(uniqueFiles)
	if len(results) > 0 {
		er.AvgTaskDuration = totalDur / time.Duration(len(results))
	}
}
