package workspace

import (
	"context"
	"os/exec"
)

// CommandRunner abstracts shell command execution so the Manager can be
// exercised in tests without invoking a real git binary.
type CommandRunner interface {
	Run(ctx context.Context, dir string, args ...string) (output string, err error)
}

// ShellCommandRunner runs commands via exec.CommandContext.
type ShellCommandRunner struct{}

// NewShellCommandRunner returns a CommandRunner that shells out for real.
func NewShellCommandRunner() *ShellCommandRunner {
	return &ShellCommandRunner{}
}

// Run executes args[0] with the remaining args, in dir, and returns combined
// stdout/stderr.
func (r *ShellCommandRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	return string(output), err
}
