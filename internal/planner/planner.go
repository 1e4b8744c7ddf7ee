// Package planner turns a natural-language requirements blob into a
// validated dependency graph of tasks (§4.8). It invokes the LLM once for
// the decomposition step, checks the result for duplicate/unknown task IDs
// and cycles, then builds an execution plan: topological levels, the
// critical path, and the parallel speedup over running everything
// sequentially.
//
// The decomposition/validation split mirrors an orchestrator's
// executor.MergePlans pattern, which also rejects a plan on a conflicting
// task identifier before doing anything else with it; the cycle check and
// execution-plan math are graph.Graph operations (§4.3) run on the planner's
// behalf.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/foreman/internal/graph"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/parser"
)

// LLMClient is the narrow slice of claude.Service a Planner needs: a single
// prompt-in, schema-validated-struct-out call. Accepting an interface here
// (rather than depending on *claude.Service directly) keeps this package
// testable without shelling out to the real CLI.
type LLMClient interface {
	InvokeAndParseWithFallback(ctx context.Context, prompt, schema string, result interface{}) error
}

// Planner decomposes requirements text into a Plan via the LLM, validates
// it, and builds the resulting dependency graph and execution plan.
type Planner struct {
	llm LLMClient
}

// New returns a Planner backed by the given LLM client.
func New(llm LLMClient) *Planner {
	return &Planner{llm: llm}
}

// decompositionPrompt wraps the requirements blob (and optional project
// context) in the instructions the LLM needs to emit a Plan payload shaped
// like models.PlanSchema. Prompt wording is deliberately plain -- §1 treats
// the LLM as an opaque text transducer and leaves prompt text out of this
// core's scope.
func decompositionPrompt(requirements, projectContext string) string {
	if projectContext == "" {
		return fmt.Sprintf(
			"Decompose the following project requirements into a list of discrete, "+
				"dependency-ordered implementation tasks. Each task needs a unique id, "+
				"a specialty from {frontend, backend, testing, docs, infra, integration}, "+
				"the files it creates or modifies, its prerequisite task ids, and an "+
				"estimated_hours.\n\nRequirements:\n%s", requirements)
	}
	return fmt.Sprintf(
		"Decompose the following project requirements into a list of discrete, "+
			"dependency-ordered implementation tasks. Each task needs a unique id, "+
			"a specialty from {frontend, backend, testing, docs, infra, integration}, "+
			"the files it creates or modifies, its prerequisite task ids, and an "+
			"estimated_hours.\n\nProject context:\n%s\n\nRequirements:\n%s",
		projectContext, requirements)
}

// Plan invokes the LLM to decompose requirements into a models.Plan,
// validates it, and returns the resulting ExecutionPlan. The requirements
// blob is the Planner's only mandatory input; projectContext is optional
// extra context (e.g. an existing README) appended to the prompt.
func (p *Planner) Plan(ctx context.Context, projectID, requirements, projectContext string) (*models.ExecutionPlan, error) {
	var raw models.Plan
	if err := p.llm.InvokeAndParseWithFallback(ctx, decompositionPrompt(requirements, projectContext), models.PlanSchema(), &raw); err != nil {
		return nil, fmt.Errorf("llm decomposition: %w", err)
	}

	now := time.Now()
	for i := range raw.Tasks {
		raw.Tasks[i].ProjectID = projectID
		raw.Tasks[i].CreatedAt = now
		raw.Tasks[i].State = models.TaskPending
	}

	g, err := Validate(&raw)
	if err != nil {
		return nil, err
	}

	return BuildExecutionPlan(&raw, g)
}

// Validate checks a decomposed Plan against §4.8 step 1: every task id is
// unique, every dependency id refers to a task present in the plan, and the
// resulting graph is acyclic. It returns the built graph.Graph so callers
// don't have to build it twice.
func Validate(plan *models.Plan) (*graph.Graph, error) {
	seen := make(map[string]bool, len(plan.Tasks))
	for _, t := range plan.Tasks {
		if t.ID == "" {
			return nil, &models.PlanValidationError{Reason: "task with empty id"}
		}
		if seen[t.ID] {
			return nil, &models.PlanValidationError{Reason: fmt.Sprintf("duplicate task id %q", t.ID)}
		}
		seen[t.ID] = true
	}

	for _, t := range plan.Tasks {
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				return nil, &models.PlanValidationError{
					Reason: fmt.Sprintf("task %q depends on unknown task %q", t.ID, dep),
				}
			}
		}
	}

	g := graph.New()
	for _, t := range plan.Tasks {
		g.AddNode(graph.Node{
			ID:             t.ID,
			Dependencies:   append([]string(nil), t.DependsOn...),
			EstimatedHours: t.Hours(),
		})
	}

	if ok, cycle := g.ValidateAcyclic(); !ok {
		return nil, &models.PlanValidationError{Reason: "dependency cycle detected", CyclePath: cycle}
	}

	return g, nil
}

// BuildExecutionPlan runs the already-validated graph through topological
// layering and critical-path analysis and assembles the ExecutionPlan (§4.8
// step 2): levels, critical path, total vs parallel hours (parallel being
// the sum of each level's slowest task), and the resulting speedup factor.
// The per-level maxima are summed into the parallel figure, not stored
// individually.
func BuildExecutionPlan(plan *models.Plan, g *graph.Graph) (*models.ExecutionPlan, error) {
	levels, err := g.ExecutionOrder()
	if err != nil {
		return nil, fmt.Errorf("execution order: %w", err)
	}

	criticalPath, _, err := g.CriticalPath()
	if err != nil {
		return nil, fmt.Errorf("critical path: %w", err)
	}

	parallelHours, err := g.ParallelEstimatedHours()
	if err != nil {
		return nil, fmt.Errorf("parallel hours: %w", err)
	}

	totalHours := g.TotalEstimatedHours()
	speedup := 0.0
	if parallelHours > 0 {
		speedup = totalHours / parallelHours
	}

	return &models.ExecutionPlan{
		Plan:                   plan,
		Levels:                 levels,
		CriticalPath:           criticalPath,
		TotalEstimatedHours:    totalHours,
		ParallelEstimatedHours: parallelHours,
		Speedup:                speedup,
		GeneratedAt:            time.Now(),
	}, nil
}

// GetInitialTasks returns the tasks with no prerequisites -- the set a
// caller should seed into the task queue first (§4.8 step 3).
func GetInitialTasks(g *graph.Graph) []*graph.Node {
	return g.GetReadyTasks()
}

// LoadPlanFile is the non-LLM decomposition path: it reads a hand-authored
// Markdown or YAML plan file via internal/parser, then runs it through the
// same Validate/BuildExecutionPlan steps the LLM path uses, so a caller gets
// an identically-shaped ExecutionPlan regardless of where the Plan came
// from.
func LoadPlanFile(path string) (*models.ExecutionPlan, error) {
	plan, err := parser.ParseFile(path)
	if err != nil {
		return nil, err
	}

	g, err := Validate(plan)
	if err != nil {
		return nil, err
	}

	return BuildExecutionPlan(plan, g)
}
