package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// TaskState is the lifecycle state of a Task: pending -> in_progress ->
// {completed, failed}.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskInProgress TaskState = "in_progress"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
)

// validTaskTransitions enumerates the only state changes callers may make;
// anything else (e.g. completed -> pending) is a caller bug, not a runtime
// state that needs to be representable.
var validTaskTransitions = map[TaskState][]TaskState{
	TaskPending:    {TaskInProgress},
	TaskInProgress: {TaskCompleted, TaskFailed},
}

// CanTransition reports whether moving from cur to next is a legal state
// change.
func (cur TaskState) CanTransition(next TaskState) bool {
	for _, allowed := range validTaskTransitions[cur] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Specialties is the closed vocabulary of specialty tags a task may carry.
// A worker only dequeues from the specialty queue matching its own tag.
var Specialties = []string{"frontend", "backend", "testing", "docs", "infra", "integration"}

// IsKnownSpecialty reports whether s is one of the closed-vocabulary
// specialty tags.
func IsKnownSpecialty(s string) bool {
	for _, known := range Specialties {
		if s == known {
			return true
		}
	}
	return false
}

// Task is a single unit of work emitted by the planner, queued, and
// ultimately executed by a worker in its own workspace. Its definition
// fields do not change once enqueued; progress is carried by the State,
// StartedAt and CompletedAt fields and by TaskResult.
type Task struct {
	ID            string        `json:"id" yaml:"id"`
	Name          string        `json:"name" yaml:"name"`
	Description   string        `json:"description,omitempty" yaml:"description,omitempty"`
	Specialty     string        `json:"specialty" yaml:"specialty"` // selects which worker pool may dequeue this task
	Files         []string      `json:"files,omitempty" yaml:"files,omitempty"`
	FilesToCreate []string      `json:"files_to_create,omitempty" yaml:"files_to_create,omitempty"`
	FilesToModify []string      `json:"files_to_modify,omitempty" yaml:"files_to_modify,omitempty"`
	DependsOn     []string      `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	EstimatedTime time.Duration `json:"estimated_time,omitempty" yaml:"estimated_time,omitempty"`
	EstimatedHours float64      `json:"estimated_hours,omitempty" yaml:"estimated_hours,omitempty"`
	ProjectID     string        `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Prompt        string        `json:"prompt" yaml:"prompt"`
	TestCommands  []string      `json:"test_commands,omitempty" yaml:"test_commands,omitempty"`

	State       TaskState  `json:"state" yaml:"state"`
	StartedAt   *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// AllFiles returns the union of FilesToCreate, FilesToModify, and the
// legacy combined Files field, deduplicated and lexically sorted -- the
// file-scope a worker must lock before executing this task (§4.6 step 2a).
func (t *Task) AllFiles() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(f string) {
		if f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, f := range t.FilesToCreate {
		add(f)
	}
	for _, f := range t.FilesToModify {
		add(f)
	}
	for _, f := range t.Files {
		add(f)
	}
	sort.Strings(out)
	return out
}

// Hours returns the task's estimated duration in hours, preferring the
// explicit EstimatedHours field and falling back to EstimatedTime.
func (t *Task) Hours() float64 {
	if t.EstimatedHours != 0 {
		return t.EstimatedHours
	}
	return t.EstimatedTime.Hours()
}

// Validate checks that the task carries the fields required to enqueue it.
func (t *Task) Validate() error {
	if t.ID == "" {
		return errors.New("task id is required")
	}
	if t.Name == "" {
		return errors.New("task name is required")
	}
	if t.Prompt == "" {
		return errors.New("task prompt is required")
	}
	return nil
}

// IsTerminal reports whether the task has reached a state no further
// transition leaves.
func (t *Task) IsTerminal() bool {
	return t.State == TaskCompleted || t.State == TaskFailed
}

// Duration returns the time between StartedAt and CompletedAt, or 0 if
// either timestamp is missing.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

// NormalizeDependency coerces a YAML/JSON-decoded dependency value (int,
// float64, or string) into the canonical string task ID form.
func NormalizeDependency(dep interface{}) (string, error) {
	switch v := dep.(type) {
	case int:
		return fmt.Sprintf("%d", v), nil
	case float64:
		if v == float64(int(v)) {
			return fmt.Sprintf("%d", int(v)), nil
		}
		return fmt.Sprintf("%v", v), nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("unsupported dependency format: %T", dep)
	}
}

// HasCyclicDependencies detects circular dependencies among a task list
// using DFS with white/gray/black coloring. Kept as a cheap standalone
// check separate from graph.Graph.ValidateAcyclic, which additionally
// reports the offending cycle path.
func HasCyclicDependencies(tasks []Task) bool {
	adjacency := make(map[string][]string)
	known := make(map[string]bool)

	for _, task := range tasks {
		known[task.ID] = true
		adjacency[task.ID] = nil
	}

	for _, task := range tasks {
		for _, dep := range task.DependsOn {
			if dep == task.ID {
				return true
			}
			if known[dep] {
				adjacency[dep] = append(adjacency[dep], task.ID)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)

	colors := make(map[string]int, len(known))

	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray
		for _, neighbor := range adjacency[node] {
			if colors[neighbor] == gray {
				return true
			}
			if colors[neighbor] == white && dfs(neighbor) {
				return true
			}
		}
		colors[node] = black
		return false
	}

	for id := range known {
		if colors[id] == white {
			if dfs(id) {
				return true
			}
		}
	}

	return false
}
