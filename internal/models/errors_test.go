package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaskErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	te := NewTaskError("task-1", PhaseWorker, "failed to execute", inner)
	assert.ErrorIs(t, te, inner)
	assert.Contains(t, te.Error(), "task-1")
	assert.Contains(t, te.Error(), "worker")
}

func TestExecutionErrorAggregatesAndUnwraps(t *testing.T) {
	ee := NewExecutionError(PhaseValidation, 3)
	inner := errors.New("syntax error")
	ee.AddTask(NewTaskError("task-2", PhaseValidation, "gate failed", inner))

	assert.Equal(t, 1, ee.FailedTasks)
	assert.True(t, IsExecutionError(ee))
	assert.ErrorIs(t, ee, inner)
}

func TestIsTimeoutError(t *testing.T) {
	te := &TimeoutError{Op: "acquire lock", Timeout: time.Second}
	assert.True(t, IsTimeoutError(te))
	assert.False(t, IsTimeoutError(errors.New("not a timeout")))
}

func TestIsTransientInfraError(t *testing.T) {
	err := NewTransientInfraError("invoke", errors.New("connection reset"), time.Now())
	assert.True(t, IsTransientInfraError(err))
	assert.False(t, IsTransientInfraError(errors.New("permanent")))
}

func TestLockErrorsMessages(t *testing.T) {
	lte := &LockTimeoutError{Resource: "file:a.go", Waited: 5 * time.Second}
	assert.Contains(t, lte.Error(), "file:a.go")

	love := &LockOwnershipViolationError{Resource: "file:a.go", OwnerToken: "worker-1"}
	assert.Contains(t, love.Error(), "worker-1")
}

func TestMergeConflictError(t *testing.T) {
	mce := &MergeConflictError{Branch: "task/1", ConflictedFiles: []string{"a.go", "b.go"}}
	assert.True(t, IsMergeConflictError(mce))
	assert.Contains(t, mce.Error(), "a.go")
}

func TestPlanValidationErrorWithCycle(t *testing.T) {
	pve := &PlanValidationError{Reason: "circular dependency", CyclePath: []string{"1", "2", "1"}}
	assert.Contains(t, pve.Error(), "1 -> 2 -> 1")
}
