package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harrison/foreman/internal/models"
)

// FileLogger mirrors Logger calls into a single run log file under a log
// directory, with no color and the same [HH:MM:SS] LEVEL prefix as
// ConsoleLogger, so the two sinks read identically when diffed.
type FileLogger struct {
	f     *os.File
	level Level
	mu    sync.Mutex
}

// NewFileLogger opens (creating if necessary) a timestamped run log file
// under logDir.
func NewFileLogger(logDir, levelStr string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	name := filepath.Join(logDir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &FileLogger{f: f, level: ParseLevel(levelStr)}, nil
}

// Close closes the underlying log file.
func (fl *FileLogger) Close() error {
	return fl.f.Close()
}

func (fl *FileLogger) emit(level Level, format string, args ...interface{}) {
	if level < fl.level {
		return
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	ts := time.Now().Format("15:04:05")
	fmt.Fprintf(fl.f, "[%s] %s %s\n", ts, level.String(), fmt.Sprintf(format, args...))
}

func (fl *FileLogger) Tracef(format string, args ...interface{}) { fl.emit(LevelTrace, format, args...) }
func (fl *FileLogger) Debugf(format string, args ...interface{}) { fl.emit(LevelDebug, format, args...) }
func (fl *FileLogger) Infof(format string, args ...interface{})  { fl.emit(LevelInfo, format, args...) }
func (fl *FileLogger) Warnf(format string, args ...interface{})  { fl.emit(LevelWarn, format, args...) }
func (fl *FileLogger) Errorf(format string, args ...interface{}) { fl.emit(LevelError, format, args...) }

func (fl *FileLogger) LogTaskStarted(task models.Task) {
	fl.Infof("task %s [%s] started: %s", task.ID, task.Specialty, task.Name)
}

func (fl *FileLogger) LogTaskResult(result models.TaskResult) {
	if result.Success {
		fl.Infof("task %s completed in %s, commit %s, %d file(s)", result.Task.ID, result.Duration.Round(time.Millisecond), result.CommitID, len(result.ModifiedFiles))
		return
	}
	fl.Errorf("task %s failed after %s: %s", result.Task.ID, result.Duration.Round(time.Millisecond), result.Error)
}

func (fl *FileLogger) LogLockWait(resource string, attempt int, delay time.Duration) {
	fl.Debugf("lock %q contended, retry %d after %s", resource, attempt, delay)
}

func (fl *FileLogger) LogLockOwnershipViolation(resource, op string) {
	fl.Warnf("lock ownership violation on %q during %s -- TTL likely expired under another owner", resource, op)
}

func (fl *FileLogger) LogPromotion(taskID, specialty string) {
	fl.Debugf("task %s promoted into %q queue", taskID, specialty)
}

func (fl *FileLogger) LogMergeStep(branch, step string) {
	fl.Infof("merge %s: %s", branch, step)
}

func (fl *FileLogger) LogMergeResult(result models.MergeResult) {
	if result.Success {
		fl.Infof("merge %s succeeded: %s", result.Branch, result.Summary())
		return
	}
	fl.Warnf("merge %s did not succeed: %s", result.Branch, result.Summary())
}

func (fl *FileLogger) LogPlan(plan *models.ExecutionPlan) {
	fl.Infof("plan %q: %d level(s), %.1fh sequential, %.1fh parallel, %.2fx speedup",
		plan.Plan.ProjectName, len(plan.Levels), plan.TotalEstimatedHours, plan.ParallelEstimatedHours, plan.Speedup)
}

// MultiLogger fans every call out to more than one Logger -- used to log to
// both console and file simultaneously from a single call site.
type MultiLogger struct {
	Loggers []Logger
}

func (m MultiLogger) Tracef(format string, args ...interface{}) {
	for _, l := range m.Loggers {
		l.Tracef(format, args...)
	}
}
func (m MultiLogger) Debugf(format string, args ...interface{}) {
	for _, l := range m.Loggers {
		l.Debugf(format, args...)
	}
}
func (m MultiLogger) Infof(format string, args ...interface{}) {
	for _, l := range m.Loggers {
		l.Infof(format, args...)
	}
}
func (m MultiLogger) Warnf(format string, args ...interface{}) {
	for _, l := range m.Loggers {
		l.Warnf(format, args...)
	}
}
func (m MultiLogger) Errorf(format string, args ...interface{}) {
	for _, l := range m.Loggers {
		l.Errorf(format, args...)
	}
}
func (m MultiLogger) LogTaskStarted(task models.Task) {
	for _, l := range m.Loggers {
		l.LogTaskStarted(task)
	}
}
func (m MultiLogger) LogTaskResult(result models.TaskResult) {
	for _, l := range m.Loggers {
		l.LogTaskResult(result)
	}
}
func (m MultiLogger) LogLockWait(resource string, attempt int, delay time.Duration) {
	for _, l := range m.Loggers {
		l.LogLockWait(resource, attempt, delay)
	}
}
func (m MultiLogger) LogLockOwnershipViolation(resource, op string) {
	for _, l := range m.Loggers {
		l.LogLockOwnershipViolation(resource, op)
	}
}
func (m MultiLogger) LogPromotion(taskID, specialty string) {
	for _, l := range m.Loggers {
		l.LogPromotion(taskID, specialty)
	}
}
func (m MultiLogger) LogMergeStep(branch, step string) {
	for _, l := range m.Loggers {
		l.LogMergeStep(branch, step)
	}
}
func (m MultiLogger) LogMergeResult(result models.MergeResult) {
	for _, l := range m.Loggers {
		l.LogMergeResult(result)
	}
}
func (m MultiLogger) LogPlan(plan *models.ExecutionPlan) {
	for _, l := range m.Loggers {
		l.LogPlan(plan)
	}
}
