package planner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/harrison/foreman/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLM lets tests supply a canned Plan (marshaled and re-unmarshaled
// through result, the same way claude.Service would after parsing real CLI
// output) without shelling out to a real LLM.
type fakeLLM struct {
	plan models.Plan
	err  error
}

func (f *fakeLLM) InvokeAndParseWithFallback(ctx context.Context, prompt, schema string, result interface{}) error {
	if f.err != nil {
		return f.err
	}
	raw, _ := json.Marshal(f.plan)
	return json.Unmarshal(raw, result)
}

func diamondPlan() models.Plan {
	return models.Plan{
		ProjectName: "widget",
		Tasks: []models.Task{
			{ID: "t1", Name: "scaffold", Prompt: "scaffold the project", Specialty: "infra", EstimatedHours: 2},
			{ID: "t2", Name: "api", Prompt: "build the api", Specialty: "backend", DependsOn: []string{"t1"}, EstimatedHours: 4},
			{ID: "t3", Name: "ui", Prompt: "build the ui", Specialty: "frontend", DependsOn: []string{"t1"}, EstimatedHours: 3},
		},
	}
}

func TestPlanProducesExecutionOrderAndCriticalPath(t *testing.T) {
	p := New(&fakeLLM{plan: diamondPlan()})

	ep, err := p.Plan(context.Background(), "proj-1", "build a widget", "")
	require.NoError(t, err)

	require.Len(t, ep.Levels, 2)
	assert.Equal(t, []string{"t1"}, ep.Levels[0])
	assert.ElementsMatch(t, []string{"t2", "t3"}, ep.Levels[1])

	// critical path runs through the heavier of the two level-2 tasks
	assert.Equal(t, []string{"t1", "t2"}, ep.CriticalPath)
	assert.InDelta(t, 6.0, ep.ParallelEstimatedHours, 0.0001)
	assert.InDelta(t, 9.0, ep.TotalEstimatedHours, 0.0001)
	assert.InDelta(t, 1.5, ep.Speedup, 0.0001)

	for _, task := range ep.Plan.Tasks {
		assert.Equal(t, "proj-1", task.ProjectID)
		assert.Equal(t, models.TaskPending, task.State)
	}
}

func TestPlanRejectsDuplicateTaskID(t *testing.T) {
	plan := diamondPlan()
	plan.Tasks = append(plan.Tasks, models.Task{ID: "t1", Name: "dup", Prompt: "dup"})

	p := New(&fakeLLM{plan: plan})
	_, err := p.Plan(context.Background(), "proj-1", "build a widget", "")

	require.Error(t, err)
	var pve *models.PlanValidationError
	require.ErrorAs(t, err, &pve)
	assert.Contains(t, pve.Reason, "duplicate task id")
}

func TestPlanRejectsUnknownDependency(t *testing.T) {
	plan := models.Plan{Tasks: []models.Task{
		{ID: "t1", Name: "a", Prompt: "a", DependsOn: []string{"ghost"}},
	}}

	p := New(&fakeLLM{plan: plan})
	_, err := p.Plan(context.Background(), "proj-1", "req", "")

	require.Error(t, err)
	var pve *models.PlanValidationError
	require.ErrorAs(t, err, &pve)
	assert.Contains(t, pve.Reason, "unknown task")
}

func TestPlanRejectsCycle(t *testing.T) {
	plan := models.Plan{Tasks: []models.Task{
		{ID: "t1", Name: "a", Prompt: "a", DependsOn: []string{"t2"}},
		{ID: "t2", Name: "b", Prompt: "b", DependsOn: []string{"t1"}},
	}}

	p := New(&fakeLLM{plan: plan})
	_, err := p.Plan(context.Background(), "proj-1", "req", "")

	require.Error(t, err)
	var pve *models.PlanValidationError
	require.ErrorAs(t, err, &pve)
	assert.NotEmpty(t, pve.CyclePath)
}

func TestLoadPlanFileBuildsExecutionPlanFromMarkdown(t *testing.T) {
	content := `# Auth Rework

Add token-based authentication to the API.

## Task t1: Add middleware

- Specialty: backend
- Depends on: none
- Estimated hours: 3
- Files to create: internal/auth/middleware.go

Write a middleware that validates bearer tokens.

## Task t2: Wire into router

- Specialty: backend
- Depends on: t1
- Estimated hours: 1
- Files to modify: internal/server/router.go

Register the middleware on the authenticated routes.
`
	path := filepath.Join(t.TempDir(), "plan.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	ep, err := LoadPlanFile(path)
	require.NoError(t, err)

	assert.Equal(t, "Auth Rework", ep.Plan.ProjectName)
	require.Len(t, ep.Levels, 2)
	assert.Equal(t, []string{"t1"}, ep.Levels[0])
	assert.Equal(t, []string{"t2"}, ep.Levels[1])
	assert.Equal(t, []string{"t1", "t2"}, ep.CriticalPath)
}

func TestLoadPlanFileRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	_, err := LoadPlanFile(path)
	require.Error(t, err)
}

func TestGetInitialTasks(t *testing.T) {
	plan := diamondPlan()
	g, err := Validate(&plan)
	require.NoError(t, err)

	initial := GetInitialTasks(g)
	require.Len(t, initial, 1)
	assert.Equal(t, "t1", initial[0].ID)
}
