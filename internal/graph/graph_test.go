package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDiamond() *Graph {
	g := New()
	g.AddNode(Node{ID: "A", EstimatedHours: 1})
	g.AddNode(Node{ID: "B", Dependencies: []string{"A"}, EstimatedHours: 2})
	g.AddNode(Node{ID: "C", Dependencies: []string{"A"}, EstimatedHours: 3})
	g.AddNode(Node{ID: "D", Dependencies: []string{"B", "C"}, EstimatedHours: 1})
	return g
}

func TestGetReadyTasks(t *testing.T) {
	g := buildDiamond()
	ready := g.GetReadyTasks()
	require.Len(t, ready, 1)
	assert.Equal(t, "A", ready[0].ID)
}

func TestGetDependents(t *testing.T) {
	g := buildDiamond()
	deps := g.GetDependents("A")
	ids := []string{deps[0].ID, deps[1].ID}
	assert.ElementsMatch(t, []string{"B", "C"}, ids)
}

func TestMarkCompleted(t *testing.T) {
	g := buildDiamond()
	newlyReady := g.MarkCompleted("A")
	ids := make([]string, len(newlyReady))
	for i, n := range newlyReady {
		ids[i] = n.ID
	}
	assert.ElementsMatch(t, []string{"B", "C"}, ids)

	// D still depends on B and C.
	assert.Empty(t, g.MarkCompleted("B"))
	ready := g.MarkCompleted("C")
	require.Len(t, ready, 1)
	assert.Equal(t, "D", ready[0].ID)
}

func TestValidateAcyclicDetectsCycle(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "A", Dependencies: []string{"C"}})
	g.AddNode(Node{ID: "B", Dependencies: []string{"A"}})
	g.AddNode(Node{ID: "C", Dependencies: []string{"B"}})

	ok, cycle := g.ValidateAcyclic()
	assert.False(t, ok)
	assert.NotEmpty(t, cycle)
}

func TestValidateAcyclicPassesOnDiamond(t *testing.T) {
	g := buildDiamond()
	ok, cycle := g.ValidateAcyclic()
	assert.True(t, ok)
	assert.Nil(t, cycle)
}

func TestExecutionOrder(t *testing.T) {
	g := buildDiamond()
	levels, err := g.ExecutionOrder()
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"A"}, levels[0])
	assert.ElementsMatch(t, []string{"B", "C"}, levels[1])
	assert.Equal(t, []string{"D"}, levels[2])
}

func TestExecutionOrderErrorsOnCycle(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "A", Dependencies: []string{"B"}})
	g.AddNode(Node{ID: "B", Dependencies: []string{"A"}})

	_, err := g.ExecutionOrder()
	assert.Error(t, err)
}

func TestCriticalPath(t *testing.T) {
	g := buildDiamond()
	path, hours, err := g.CriticalPath()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "D"}, path)
	assert.Equal(t, 5.0, hours) // 1 + 3 + 1
}

func TestTotalAndParallelEstimatedHours(t *testing.T) {
	g := buildDiamond()
	assert.Equal(t, 7.0, g.TotalEstimatedHours()) // 1+2+3+1

	parallel, err := g.ParallelEstimatedHours()
	require.NoError(t, err)
	assert.Equal(t, 5.0, parallel) // level A(1) + level max(B,C)=3 + D(1)
}
