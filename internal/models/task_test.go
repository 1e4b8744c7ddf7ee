package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskValidate(t *testing.T) {
	cases := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{"missing id", Task{Name: "n", Prompt: "p"}, true},
		{"missing name", Task{ID: "1", Prompt: "p"}, true},
		{"missing prompt", Task{ID: "1", Name: "n"}, true},
		{"valid", Task{ID: "1", Name: "n", Prompt: "p"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.task.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTaskStateCanTransition(t *testing.T) {
	assert.True(t, TaskPending.CanTransition(TaskInProgress))
	assert.True(t, TaskInProgress.CanTransition(TaskCompleted))
	assert.True(t, TaskInProgress.CanTransition(TaskFailed))
	assert.False(t, TaskPending.CanTransition(TaskCompleted))
	assert.False(t, TaskCompleted.CanTransition(TaskPending))
}

func TestTaskIsTerminal(t *testing.T) {
	assert.False(t, (&Task{State: TaskPending}).IsTerminal())
	assert.False(t, (&Task{State: TaskInProgress}).IsTerminal())
	assert.True(t, (&Task{State: TaskCompleted}).IsTerminal())
	assert.True(t, (&Task{State: TaskFailed}).IsTerminal())
}

func TestNormalizeDependency(t *testing.T) {
	v, err := NormalizeDependency(3)
	assert.NoError(t, err)
	assert.Equal(t, "3", v)

	v, err = NormalizeDependency(float64(4))
	assert.NoError(t, err)
	assert.Equal(t, "4", v)

	v, err = NormalizeDependency("task-5")
	assert.NoError(t, err)
	assert.Equal(t, "task-5", v)

	_, err = NormalizeDependency(struct{}{})
	assert.Error(t, err)
}

func TestHasCyclicDependencies(t *testing.T) {
	acyclic := []Task{
		{ID: "1"},
		{ID: "2", DependsOn: []string{"1"}},
		{ID: "3", DependsOn: []string{"2"}},
	}
	assert.False(t, HasCyclicDependencies(acyclic))

	cyclic := []Task{
		{ID: "1", DependsOn: []string{"3"}},
		{ID: "2", DependsOn: []string{"1"}},
		{ID: "3", DependsOn: []string{"2"}},
	}
	assert.True(t, HasCyclicDependencies(cyclic))

	selfRef := []Task{{ID: "1", DependsOn: []string{"1"}}}
	assert.True(t, HasCyclicDependencies(selfRef))
}
