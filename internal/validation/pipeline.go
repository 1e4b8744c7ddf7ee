package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/workspace"
)

// Pipeline runs an ordered list of validators against a workspace.
type Pipeline struct {
	Validators []Validator
}

// NewDefaultPipeline builds the staging order called for in the original
// brief: syntax, type-check, lint, test, security -- cheap fail-fast checks
// first, expensive suites last. Security stays last but is never gated on
// the earlier stages by the pipeline itself: RunAll only stops early on an
// actual failure or error, never on a skip, so a skipped test stage still
// lets security run.
func NewDefaultPipeline(runner workspace.CommandRunner, timeout time.Duration) *Pipeline {
	return &Pipeline{
		Validators: []Validator{
			&SyntaxValidator{Runner: runner, Timeout: timeout},
			&CommandValidator{
				ValidatorName: "type-check",
				Command:       []string{"go", "build", "./..."},
				FilePattern:   "*.go",
				Runner:        runner,
				Timeout:       timeout,
			},
			&CommandValidator{
				ValidatorName: "lint",
				Command:       []string{"golangci-lint", "run"},
				FilePattern:   "*.go",
				Runner:        runner,
				Timeout:       timeout,
			},
			&CommandValidator{
				ValidatorName: "test",
				Command:       []string{"go", "test", "./..."},
				FilePattern:   "*.go",
				Runner:        runner,
				Timeout:       timeout,
			},
			&SecurityValidator{},
		},
	}
}

// NewMergePipeline builds the staging order the merge orchestrator's
// integration funnel calls for (§4.7 step 2): syntax, security,
// type-check, lint, test -- security runs right after the cheap syntax
// check here, ahead of the expensive type-check/lint/test suites, rather
// than last as in NewDefaultPipeline's general pre-commit ordering. Both
// orders are deliberate, not inconsistent: a merge into the target branch
// treats an insecure change as a fail-fast condition, while a developer's
// local/pre-commit run treats it as a final gate after cheaper checks have
// already had a chance to reject the change.
func NewMergePipeline(runner workspace.CommandRunner, timeout time.Duration) *Pipeline {
	return &Pipeline{
		Validators: []Validator{
			&SyntaxValidator{Runner: runner, Timeout: timeout},
			&SecurityValidator{},
			&CommandValidator{
				ValidatorName: "type-check",
				Command:       []string{"go", "build", "./..."},
				FilePattern:   "*.go",
				Runner:        runner,
				Timeout:       timeout,
			},
			&CommandValidator{
				ValidatorName: "lint",
				Command:       []string{"golangci-lint", "run"},
				FilePattern:   "*.go",
				Runner:        runner,
				Timeout:       timeout,
			},
			&CommandValidator{
				ValidatorName: "test",
				Command:       []string{"go", "test", "./..."},
				FilePattern:   "*.go",
				Runner:        runner,
				Timeout:       timeout,
			},
		},
	}
}

// RunAll executes every validator in order. is_skippable is checked first
// and short-circuits straight to a skipped result without invoking the
// tool. When stopOnFailure is true, the first failed or errored result ends
// the run; regardless of policy, a result is always emitted for every
// validator that actually executed.
func (p *Pipeline) RunAll(ctx context.Context, workspacePath string, stopOnFailure bool) (bool, []models.ValidationResult) {
	var results []models.ValidationResult
	allPassed := true

	for _, v := range p.Validators {
		if v.IsSkippable(ctx, workspacePath) {
			results = append(results, models.ValidationResult{
				ValidatorName: v.Name(),
				Status:        models.ValidationSkipped,
			})
			continue
		}

		result := v.Validate(ctx, workspacePath)
		results = append(results, result)

		if !result.Passed() {
			allPassed = false
			if stopOnFailure {
				break
			}
		}
	}

	return allPassed, results
}

// Summary renders a one-line human-readable report of results.
func (p *Pipeline) Summary(results []models.ValidationResult) string {
	pr := models.PipelineResult{Results: results}
	counts := pr.Summary()
	return fmt.Sprintf(
		"validation: %d passed, %d failed, %d skipped, %d error",
		counts[models.ValidationPassed], counts[models.ValidationFailed],
		counts[models.ValidationSkipped], counts[models.ValidationError],
	)
}
