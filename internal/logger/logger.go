// Package logger provides the two-sink logging design used across foreman:
// a colorized ConsoleLogger for interactive runs and a FileLogger that
// mirrors the same calls to a timestamped per-run log file under
// Config.LogDir (one file per run; files are not rotated). Every
// component that reports progress (Worker, Merge Orchestrator, Planner)
// takes a Logger by interface, never a concrete type.
//
// The call surface is trimmed to what this domain actually emits: task
// lifecycle, lock contention, queue promotion, and merge funnel steps.
package logger

import (
	"strings"
	"time"

	"github.com/harrison/foreman/internal/models"
)

// Level is a log verbosity level, trace through error.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel converts a config log-level string into a Level, defaulting to
// LevelInfo for anything unrecognized.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger is the logging interface every domain component depends on.
// Components receive this by interface so tests can substitute a recording
// fake without touching a terminal or the filesystem.
type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// LogTaskStarted reports a worker dequeuing and beginning execution of a task.
	LogTaskStarted(task models.Task)
	// LogTaskResult reports a task's execute-task outcome, success or failure.
	LogTaskResult(result models.TaskResult)
	// LogLockWait reports a lock acquisition retry/backoff attempt.
	LogLockWait(resource string, attempt int, delay time.Duration)
	// LogLockOwnershipViolation reports release/extend returning false: the
	// caller no longer holds the lock it thought it did (§7).
	LogLockOwnershipViolation(resource, op string)
	// LogPromotion reports a task queue promoting a pending task into its
	// specialty queue after its last prerequisite completed.
	LogPromotion(taskID, specialty string)
	// LogMergeStep reports one step of the merge orchestrator's funnel
	// (conflict check, validation, merge attempt, rollback).
	LogMergeStep(branch, step string)
	// LogMergeResult reports the final outcome of a merge attempt.
	LogMergeResult(result models.MergeResult)
	// LogPlan reports a freshly built execution plan's summary.
	LogPlan(plan *models.ExecutionPlan)
}

// NoOpLogger discards everything. Useful as a safe default and in tests
// that don't care about log output.
type NoOpLogger struct{}

func (NoOpLogger) Tracef(string, ...interface{}) {}
func (NoOpLogger) Debugf(string, ...interface{}) {}
func (NoOpLogger) Infof(string, ...interface{})  {}
func (NoOpLogger) Warnf(string, ...interface{})  {}
func (NoOpLogger) Errorf(string, ...interface{}) {}

func (NoOpLogger) LogTaskStarted(models.Task)                    {}
func (NoOpLogger) LogTaskResult(models.TaskResult)                {}
func (NoOpLogger) LogLockWait(string, int, time.Duration)         {}
func (NoOpLogger) LogLockOwnershipViolation(string, string)        {}
func (NoOpLogger) LogPromotion(string, string)                    {}
func (NoOpLogger) LogMergeStep(string, string)                    {}
func (NoOpLogger) LogMergeResult(models.MergeResult)               {}
func (NoOpLogger) LogPlan(*models.ExecutionPlan)                  {}
