package models

import "time"

// Plan is the planner's output: a decomposition of a requirements blob into
// a set of tasks with dependencies, before any graph analysis has run.
type Plan struct {
	ProjectName         string  `json:"project_name" yaml:"project_name"`
	Description         string  `json:"description" yaml:"description"`
	EstimatedTotalHours float64 `json:"estimated_total_hours" yaml:"estimated_total_hours"`
	Tasks               []Task  `json:"tasks" yaml:"tasks"`
}

// ExecutionPlan is a Plan after it has been run through the dependency
// graph: tasks grouped into levels that can run in parallel, plus the
// critical path and the parallel speedup over sequential execution.
type ExecutionPlan struct {
	Plan                  *Plan
	Levels                [][]string    // task IDs, grouped by earliest-start level
	CriticalPath          []string      // task IDs along the longest dependency chain
	TotalEstimatedHours   float64       // sum of every task's Hours()
	ParallelEstimatedHours float64      // sum over levels of each level's slowest task
	Speedup               float64       // TotalEstimatedHours / ParallelEstimatedHours
	GeneratedAt           time.Time
}
