package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/foreman/internal/models"
)

// ConsoleLogger logs to a writer with timestamps, level filtering, and
// color when the writer is a TTY. Thread-safe.
type ConsoleLogger struct {
	writer io.Writer
	level  Level
	color  bool
	mu     sync.Mutex
}

// NewConsoleLogger returns a ConsoleLogger writing to w at the given level.
// Color is auto-detected via go-isatty when w is *os.File; pass an explicit
// level of "" to default to info.
func NewConsoleLogger(w io.Writer, levelStr string) *ConsoleLogger {
	enableColor := false
	if f, ok := w.(*os.File); ok {
		enableColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &ConsoleLogger{
		writer: w,
		level:  ParseLevel(levelStr),
		color:  enableColor,
	}
}

func (cl *ConsoleLogger) emit(level Level, prefixColor *color.Color, format string, args ...interface{}) {
	if level < cl.level {
		return
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()

	ts := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)
	if cl.color && prefixColor != nil {
		fmt.Fprintf(cl.writer, "[%s] %s %s\n", ts, prefixColor.Sprint(level.String()), msg)
		return
	}
	fmt.Fprintf(cl.writer, "[%s] %s %s\n", ts, level.String(), msg)
}

func (cl *ConsoleLogger) Tracef(format string, args ...interface{}) {
	cl.emit(LevelTrace, color.New(color.FgHiBlack), format, args...)
}

func (cl *ConsoleLogger) Debugf(format string, args ...interface{}) {
	cl.emit(LevelDebug, color.New(color.FgCyan), format, args...)
}

func (cl *ConsoleLogger) Infof(format string, args ...interface{}) {
	cl.emit(LevelInfo, color.New(color.FgGreen), format, args...)
}

func (cl *ConsoleLogger) Warnf(format string, args ...interface{}) {
	cl.emit(LevelWarn, color.New(color.FgYellow), format, args...)
}

func (cl *ConsoleLogger) Errorf(format string, args ...interface{}) {
	cl.emit(LevelError, color.New(color.FgRed), format, args...)
}

func (cl *ConsoleLogger) LogTaskStarted(task models.Task) {
	cl.Infof("task %s [%s] started: %s", task.ID, task.Specialty, task.Name)
}

func (cl *ConsoleLogger) LogTaskResult(result models.TaskResult) {
	if result.Success {
		cl.Infof("task %s completed in %s, commit %s, %d file(s)", result.Task.ID, result.Duration.Round(time.Millisecond), result.CommitID, len(result.ModifiedFiles))
		return
	}
	cl.Errorf("task %s failed after %s: %s", result.Task.ID, result.Duration.Round(time.Millisecond), result.Error)
}

func (cl *ConsoleLogger) LogLockWait(resource string, attempt int, delay time.Duration) {
	cl.Debugf("lock %q contended, retry %d after %s", resource, attempt, delay)
}

func (cl *ConsoleLogger) LogLockOwnershipViolation(resource, op string) {
	cl.Warnf("lock ownership violation on %q during %s -- TTL likely expired under another owner", resource, op)
}

func (cl *ConsoleLogger) LogPromotion(taskID, specialty string) {
	cl.Debugf("task %s promoted into %q queue", taskID, specialty)
}

func (cl *ConsoleLogger) LogMergeStep(branch, step string) {
	cl.Infof("merge %s: %s", branch, step)
}

func (cl *ConsoleLogger) LogMergeResult(result models.MergeResult) {
	if result.Success {
		cl.Infof("merge %s succeeded: %s", result.Branch, result.Summary())
		return
	}
	cl.Warnf("merge %s did not succeed: %s", result.Branch, result.Summary())
}

func (cl *ConsoleLogger) LogPlan(plan *models.ExecutionPlan) {
	cl.Infof("plan %q: %d level(s), %.1fh sequential, %.1fh parallel, %.2fx speedup",
		plan.Plan.ProjectName, len(plan.Levels), plan.TotalEstimatedHours, plan.ParallelEstimatedHours, plan.Speedup)
}
