package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/foreman/internal/models"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestEnqueueDequeueNoDependencies(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task := models.Task{ID: "t1", Name: "wire router", Prompt: "do it", Specialty: "backend"}
	require.NoError(t, q.Enqueue(ctx, task))

	status, err := q.Status(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, status)

	depth, err := q.QueueDepth(ctx, "backend")
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	got, err := q.Dequeue(ctx, "backend", 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, models.TaskInProgress, got.State)

	status, err = q.Status(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskInProgress, status)
}

func TestDequeueTimesOutWhenEmpty(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	got, err := q.Dequeue(ctx, "backend", 30*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEnqueueWithUnmetDependencyHoldsInPending(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, models.Task{ID: "base", Name: "base", Prompt: "p", Specialty: "backend"}))
	require.NoError(t, q.Enqueue(ctx, models.Task{ID: "dependent", Name: "dependent", Prompt: "p", Specialty: "frontend", DependsOn: []string{"base"}}))

	pending, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	depth, err := q.QueueDepth(ctx, "frontend")
	require.NoError(t, err)
	assert.Equal(t, 0, depth, "dependent task must not be ready until base completes")
}

func TestEnqueueWithAlreadyCompletedDependencyEnqueuesDirectly(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, models.Task{ID: "base", Name: "base", Prompt: "p", Specialty: "backend"}))
	got, err := q.Dequeue(ctx, "backend", 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NoError(t, q.MarkCompleted(ctx, "base", models.TaskResult{Task: *got, Success: true}))

	require.NoError(t, q.Enqueue(ctx, models.Task{ID: "dependent", Name: "dependent", Prompt: "p", Specialty: "frontend", DependsOn: []string{"base"}}))

	depth, err := q.QueueDepth(ctx, "frontend")
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	pending, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestMarkCompletedPromotesDependents(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, models.Task{ID: "base", Name: "base", Prompt: "p", Specialty: "backend"}))
	require.NoError(t, q.Enqueue(ctx, models.Task{ID: "dependent", Name: "dependent", Prompt: "p", Specialty: "frontend", DependsOn: []string{"base"}}))

	base, err := q.Dequeue(ctx, "backend", 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, base)

	require.NoError(t, q.MarkCompleted(ctx, "base", models.TaskResult{Task: *base, Success: true}))

	depth, err := q.QueueDepth(ctx, "frontend")
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	pending, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)

	dependent, err := q.Dequeue(ctx, "frontend", 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, dependent)
	assert.Equal(t, "dependent", dependent.ID)
}

func TestResultReturnsRecordedOutcome(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, models.Task{ID: "base", Name: "base", Prompt: "p", Specialty: "backend"}))

	_, err := q.Result(ctx, "base")
	require.Error(t, err, "result should be unavailable before the task reaches a terminal state")

	base, err := q.Dequeue(ctx, "backend", 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, q.MarkCompleted(ctx, "base", models.TaskResult{Task: *base, Success: true, CommitID: "abc123"}))

	result, err := q.Result(ctx, "base")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "abc123", result.CommitID)
}

func TestMarkCompletedFailureDoesNotPromote(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, models.Task{ID: "base", Name: "base", Prompt: "p", Specialty: "backend"}))
	require.NoError(t, q.Enqueue(ctx, models.Task{ID: "dependent", Name: "dependent", Prompt: "p", Specialty: "frontend", DependsOn: []string{"base"}}))

	base, err := q.Dequeue(ctx, "backend", 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, q.MarkCompleted(ctx, "base", models.TaskResult{Task: *base, Success: false, Error: "boom"}))

	status, err := q.Status(ctx, "base")
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, status)

	depth, err := q.QueueDepth(ctx, "frontend")
	require.NoError(t, err)
	assert.Equal(t, 0, depth, "a dependent must not be promoted when its prerequisite failed")
}

func TestRetryFailedReenqueuesWithoutDependencyRecheck(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, models.Task{ID: "t1", Name: "t1", Prompt: "p", Specialty: "backend"}))
	got, err := q.Dequeue(ctx, "backend", 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, q.MarkCompleted(ctx, "t1", models.TaskResult{Task: *got, Success: false}))

	require.NoError(t, q.RetryFailed(ctx, "t1"))

	status, err := q.Status(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, status)

	depth, err := q.QueueDepth(ctx, "backend")
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestRetryFailedRejectsNonFailedTask(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, models.Task{ID: "t1", Name: "t1", Prompt: "p", Specialty: "backend"}))

	err := q.RetryFailed(ctx, "t1")
	require.Error(t, err)
}

func TestClearQueueDrainsReadyItemsOnly(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, models.Task{ID: "t1", Name: "t1", Prompt: "p", Specialty: "backend"}))
	require.NoError(t, q.Enqueue(ctx, models.Task{ID: "t2", Name: "t2", Prompt: "p", Specialty: "backend"}))

	require.NoError(t, q.ClearQueue(ctx, "backend"))

	depth, err := q.QueueDepth(ctx, "backend")
	require.NoError(t, err)
	assert.Equal(t, 0, depth)

	status, err := q.Status(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, status, "clearing the queue must not delete the task record itself")
}

func TestFIFOOrderingWithinSpecialty(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, models.Task{ID: "first", Name: "first", Prompt: "p", Specialty: "backend"}))
	require.NoError(t, q.Enqueue(ctx, models.Task{ID: "second", Name: "second", Prompt: "p", Specialty: "backend"}))

	a, err := q.Dequeue(ctx, "backend", 50*time.Millisecond)
	require.NoError(t, err)
	b, err := q.Dequeue(ctx, "backend", 50*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, "first", a.ID)
	assert.Equal(t, "second", b.ID)
}
