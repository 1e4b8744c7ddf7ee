package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewExecutionResult(t *testing.T) {
	results := []TaskResult{
		{Task: Task{ID: "1", Specialty: "backend"}, Success: true, ModifiedFiles: []string{"a.go"}, Duration: time.Second},
		{Task: Task{ID: "2", Specialty: "backend"}, Success: false, ModifiedFiles: []string{"a.go", "b.go"}, Duration: 3 * time.Second},
	}

	er := NewExecutionResult(results, 4*time.Second)

	assert.Equal(t, 2, er.TotalTasks)
	assert.Equal(t, 1, er.Completed)
	assert.Equal(t, 1, er.Failed)
	assert.Equal(t, 2, er.SpecialtyUsage["backend"])
	assert.Equal(t, 2, er.TotalFiles) // a.go, b.go deduped
	assert.Equal(t, 2*time.Second, er.AvgTaskDuration)
	assert.Len(t, er.FailedTasks, 1)
}

func TestExecutionResultEmpty(t *testing.T) {
	er := NewExecutionResult(nil, 0)
	assert.Equal(t, 0, er.TotalTasks)
	assert.Equal(t, time.Duration(0), er.AvgTaskDuration)
}
