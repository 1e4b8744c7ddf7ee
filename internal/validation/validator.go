// Package validation implements the quality-gate pipeline a workspace must
// clear before the merge orchestrator integrates it: an ordered list of
// pluggable validators over the capability set {name, is_skippable?,
// validate}, each free to inspect the workspace's file tree and shell out to
// an external tool. The pipeline itself stays ignorant of which tools any
// given validator wraps.
package validation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/workspace"
)

// Validator is one quality gate in the pipeline.
type Validator interface {
	Name() string
	IsSkippable(ctx context.Context, workspacePath string) bool
	Validate(ctx context.Context, workspacePath string) models.ValidationResult
}

// CommandValidator runs a single external command against a workspace and
// maps its outcome onto a models.ValidationResult. It is skippable either
// because its tool isn't installed or because the workspace carries none of
// the file type it applies to.
type CommandValidator struct {
	ValidatorName string
	Command       []string
	// FilePattern, if set, is a filepath.Match glob against basenames; the
	// validator is skipped when no file in the workspace matches it.
	FilePattern string
	Runner      workspace.CommandRunner
	Timeout     time.Duration
}

// Name returns the validator's identifier, as reported in every
// ValidationResult it produces.
func (c *CommandValidator) Name() string { return c.ValidatorName }

// IsSkippable reports whether the tool isn't on PATH, or whether the
// workspace has no file of the relevant type.
func (c *CommandValidator) IsSkippable(ctx context.Context, workspacePath string) bool {
	if len(c.Command) == 0 {
		return true
	}
	if _, err := exec.LookPath(c.Command[0]); err != nil {
		return true
	}
	if c.FilePattern == "" {
		return false
	}
	return !anyFileMatches(workspacePath, c.FilePattern)
}

func anyFileMatches(root, pattern string) bool {
	found := false
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			found = true
		}
		return nil
	})
	return found
}

// Validate runs the wrapped command. A real (non-timeout) non-zero exit is
// treated as the gate finding issues -- status failed. A context deadline
// or a tool that vanished between IsSkippable and Validate is an
// infrastructure problem -- status error. Either way Validate never panics
// or returns a Go error; everything is folded into the result.
func (c *CommandValidator) Validate(ctx context.Context, workspacePath string) models.ValidationResult {
	start := time.Now()
	runCtx := ctx
	cancel := func() {}
	if c.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
	}
	defer cancel()

	if _, err := exec.LookPath(c.Command[0]); err != nil {
		return models.ValidationResult{
			ValidatorName: c.ValidatorName,
			Status:        models.ValidationError,
			Duration:      time.Since(start),
			Message:       fmt.Sprintf("%s: tool not found on PATH", c.Command[0]),
		}
	}

	output, err := c.Runner.Run(runCtx, workspacePath, c.Command...)
	duration := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return models.ValidationResult{
			ValidatorName: c.ValidatorName,
			Status:        models.ValidationError,
			Duration:      duration,
			Message:       fmt.Sprintf("%s timed out after %s", strings.Join(c.Command, " "), c.Timeout),
		}
	}

	if err != nil {
		return models.ValidationResult{
			ValidatorName: c.ValidatorName,
			Status:        models.ValidationFailed,
			Duration:      duration,
			Message:       strings.TrimSpace(output),
			Issues: []models.ValidationIssue{{
				Severity: "error",
				Message:  strings.TrimSpace(firstLine(output)),
			}},
		}
	}

	return models.ValidationResult{
		ValidatorName: c.ValidatorName,
		Status:        models.ValidationPassed,
		Duration:      duration,
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
