package models

import "time"

// TestCommandResult holds the result of running a single test command as
// part of a task's validation pipeline.
type TestCommandResult struct {
	Command  string
	Output   string
	Error    error
	Passed   bool
	Duration time.Duration
}
