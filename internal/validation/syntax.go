package validation

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/workspace"
)

// SyntaxValidator runs gofmt -l against the workspace. Unlike most command
// validators, gofmt exits 0 even when it finds formatting problems -- the
// list of offending files is carried in stdout, not the exit code -- so it
// needs its own Validate rather than the generic exit-code mapping.
type SyntaxValidator struct {
	Runner  workspace.CommandRunner
	Timeout time.Duration
}

func (v *SyntaxValidator) Name() string { return "syntax" }

func (v *SyntaxValidator) IsSkippable(ctx context.Context, workspacePath string) bool {
	if _, err := exec.LookPath("gofmt"); err != nil {
		return true
	}
	return !anyFileMatches(workspacePath, "*.go")
}

func (v *SyntaxValidator) Validate(ctx context.Context, workspacePath string) models.ValidationResult {
	start := time.Now()
	runCtx := ctx
	cancel := func() {}
	if v.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, v.Timeout)
	}
	defer cancel()

	output, err := v.Runner.Run(runCtx, workspacePath, "gofmt", "-l", ".")
	duration := time.Since(start)

	if runCtx.Err() != nil {
		return models.ValidationResult{
			ValidatorName: v.Name(),
			Status:        models.ValidationError,
			Duration:      duration,
			Message:       fmt.Sprintf("gofmt timed out after %s", v.Timeout),
		}
	}
	if err != nil {
		return models.ValidationResult{
			ValidatorName: v.Name(),
			Status:        models.ValidationError,
			Duration:      duration,
			Message:       strings.TrimSpace(output),
		}
	}

	files := strings.Fields(output)
	if len(files) == 0 {
		return models.ValidationResult{ValidatorName: v.Name(), Status: models.ValidationPassed, Duration: duration}
	}

	issues := make([]models.ValidationIssue, 0, len(files))
	for _, f := range files {
		issues = append(issues, models.ValidationIssue{
			File:     f,
			Severity: "error",
			Message:  "not gofmt-formatted",
			Rule:     "gofmt",
		})
	}
	return models.ValidationResult{
		ValidatorName: v.Name(),
		Status:        models.ValidationFailed,
		Duration:      duration,
		Issues:        issues,
		Message:       fmt.Sprintf("%d file(s) not gofmt-formatted", len(files)),
	}
}
