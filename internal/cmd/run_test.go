package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/foreman/internal/config"
	"github.com/harrison/foreman/internal/logger"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/taskqueue"
)

func TestDistinctSpecialtiesSortsAndDedupes(t *testing.T) {
	tasks := []models.Task{
		{ID: "t1", Specialty: "backend"},
		{ID: "t2", Specialty: "frontend"},
		{ID: "t3", Specialty: "backend"},
		{ID: "t4", Specialty: "docs"},
	}

	assert.Equal(t, []string{"backend", "docs", "frontend"}, distinctSpecialties(tasks))
}

func TestDistinctSpecialtiesEmptyForNoTasks(t *testing.T) {
	assert.Empty(t, distinctSpecialties(nil))
}

func TestWaitForTasksReturnsOnceAllTerminal(t *testing.T) {
	q, err := taskqueue.New(":memory:")
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	t1 := models.Task{ID: "t1", Specialty: "backend"}
	t2 := models.Task{ID: "t2", Specialty: "backend", DependsOn: []string{"t1"}}
	require.NoError(t, q.Enqueue(ctx, t1))
	require.NoError(t, q.Enqueue(ctx, t2))

	done := make(chan struct{})
	go func() {
		waitForTasks(ctx, q, []string{"t1", "t2"}, nil)
		close(done)
	}()

	// t1 completes, promoting t2 onto the backend queue.
	require.NoError(t, q.MarkCompleted(ctx, "t1", models.TaskResult{Task: t1, Success: true}))
	dequeued, err := q.Dequeue(ctx, "backend", time.Second)
	require.NoError(t, err)
	require.NotNil(t, dequeued)
	require.Equal(t, "t2", dequeued.ID)
	require.NoError(t, q.MarkCompleted(ctx, "t2", models.TaskResult{Task: t2, Success: true}))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("waitForTasks did not return after all tasks reached a terminal state")
	}
}

func TestProgressReporterNilWhenDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Console.EnableProgressBar = false
	assert.Nil(t, progressReporter(cfg, logger.NoOpLogger{}, 3))
}

func TestProgressReporterNilForEmptyPlan(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Console.EnableProgressBar = true
	assert.Nil(t, progressReporter(cfg, logger.NoOpLogger{}, 0))
}

func TestProgressReporterReportsFinishedCount(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Console.EnableProgressBar = true
	report := progressReporter(cfg, logger.NoOpLogger{}, 2)
	require.NotNil(t, report)
	require.NotPanics(t, func() { report(1) })
	require.NotPanics(t, func() { report(2) })
}

func TestWaitForTasksReturnsOnContextCancel(t *testing.T) {
	q, err := taskqueue.New(":memory:")
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Enqueue(context.Background(), models.Task{ID: "stuck", Specialty: "backend"}))

	done := make(chan struct{})
	go func() {
		waitForTasks(ctx, q, []string{"stuck"}, nil)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waitForTasks did not return after context cancellation")
	}
}
