// Package graph implements the dependency graph used to schedule tasks:
// add nodes, ask which are ready to run, mark one done and learn which
// newly became ready, and compute the critical path through the whole set.
//
// The topological layering (Kahn's algorithm) and cycle detection (DFS with
// white/gray/black coloring) are adapted from an orchestrator's wave-
// calculation executor package; the critical-path-by-earliest-start-time
// algorithm and the standalone add_node/get_ready_tasks/mark_completed API
// are adapted from a Python dependency graph implementation in the same
// lineage.
package graph

import (
	"fmt"
	"sort"
)

// Node is a task as the graph sees it: an ID, the set of node IDs it still
// has outstanding dependencies on, and an estimated duration used for
// critical-path math.
type Node struct {
	ID             string
	Dependencies   []string // remaining, unsatisfied dependency IDs
	EstimatedHours float64
}

// Graph is a directed acyclic graph of task nodes.
type Graph struct {
	nodes map[string]*Node
	edges map[string][]string // node ID -> IDs of nodes that depend on it
	order []string            // insertion order, for deterministic output
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string][]string),
	}
}

// AddNode inserts a node into the graph, wiring up the edges implied by its
// Dependencies. Re-adding an existing ID replaces it.
func (g *Graph) AddNode(n Node) {
	if _, exists := g.nodes[n.ID]; !exists {
		g.order = append(g.order, n.ID)
	}
	cp := n
	cp.Dependencies = append([]string(nil), n.Dependencies...)
	g.nodes[n.ID] = &cp

	if _, ok := g.edges[n.ID]; !ok {
		g.edges[n.ID] = nil
	}
	for _, dep := range n.Dependencies {
		g.edges[dep] = append(g.edges[dep], n.ID)
	}
}

// Node returns the node with the given ID, if present.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// GetReadyTasks returns every node with no remaining dependencies, in
// insertion order.
func (g *Graph) GetReadyTasks() []*Node {
	var ready []*Node
	for _, id := range g.order {
		if n := g.nodes[id]; len(n.Dependencies) == 0 {
			ready = append(ready, n)
		}
	}
	return ready
}

// GetDependents returns the nodes that directly depend on id.
func (g *Graph) GetDependents(id string) []*Node {
	var deps []*Node
	for _, depID := range g.edges[id] {
		if n, ok := g.nodes[depID]; ok {
			deps = append(deps, n)
		}
	}
	return deps
}

// MarkCompleted removes id from every dependent's remaining-dependency list
// and returns the nodes that as a result now have zero remaining
// dependencies (i.e. just became ready).
func (g *Graph) MarkCompleted(id string) []*Node {
	if _, ok := g.nodes[id]; !ok {
		return nil
	}

	var newlyReady []*Node
	for _, depID := range g.edges[id] {
		dep, ok := g.nodes[depID]
		if !ok {
			continue
		}
		dep.Dependencies = removeString(dep.Dependencies, id)
		if len(dep.Dependencies) == 0 {
			newlyReady = append(newlyReady, dep)
		}
	}
	return newlyReady
}

func removeString(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// ValidateAcyclic reports whether the graph is acyclic, and if not, returns
// the cycle it found as a path of node IDs.
func (g *Graph) ValidateAcyclic() (bool, []string) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[string]int, len(g.nodes))

	var dfs func(id string, path []string) []string
	dfs = func(id string, path []string) []string {
		colors[id] = gray
		path = append(path, id)

		for _, next := range g.edges[id] {
			if colors[next] == gray {
				return append(path, next)
			}
			if colors[next] == white {
				if cycle := dfs(next, append([]string(nil), path...)); cycle != nil {
					return cycle
				}
			}
		}

		colors[id] = black
		return nil
	}

	for _, id := range g.order {
		if colors[id] == white {
			if cycle := dfs(id, nil); cycle != nil {
				return false, cycle
			}
		}
	}
	return true, nil
}

// ExecutionOrder computes the topological levels of the graph: each level
// is the set of node IDs that became ready simultaneously, sorted for
// determinism. Returns an error if the graph has a cycle.
func (g *Graph) ExecutionOrder() ([][]string, error) {
	if ok, cycle := g.ValidateAcyclic(); !ok {
		return nil, fmt.Errorf("graph has a cycle: %v", cycle)
	}

	inDegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		inDegree[id] = len(n.Dependencies)
	}

	remaining := make(map[string]bool, len(g.nodes))
	for id := range g.nodes {
		remaining[id] = true
	}

	var levels [][]string
	for len(remaining) > 0 {
		var level []string
		for id := range remaining {
			if inDegree[id] == 0 {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			return nil, fmt.Errorf("no zero-dependency tasks remain but %d nodes are unscheduled", len(remaining))
		}
		sort.Strings(level)
		levels = append(levels, level)

		for _, id := range level {
			delete(remaining, id)
			for _, dependent := range g.edges[id] {
				if _, ok := inDegree[dependent]; ok {
					inDegree[dependent]--
				}
			}
		}
	}

	return levels, nil
}

// CriticalPath computes the longest dependency chain through the graph by
// earliest-start time, and its total estimated duration in hours.
func (g *Graph) CriticalPath() ([]string, float64, error) {
	levels, err := g.ExecutionOrder()
	if err != nil {
		return nil, 0, err
	}

	earliestStart := make(map[string]float64, len(g.nodes))
	for _, level := range levels {
		for _, id := range level {
			n := g.nodes[id]
			if len(n.Dependencies) == 0 {
				earliestStart[id] = 0
				continue
			}
			var maxFinish float64
			for _, dep := range n.Dependencies {
				finish := earliestStart[dep] + g.nodes[dep].EstimatedHours
				if finish > maxFinish {
					maxFinish = finish
				}
			}
			earliestStart[id] = maxFinish
		}
	}

	var latestFinishID string
	var latestFinish float64
	for _, id := range g.order {
		finish := earliestStart[id] + g.nodes[id].EstimatedHours
		if latestFinishID == "" || finish > latestFinish {
			latestFinishID = id
			latestFinish = finish
		}
	}

	var path []string
	current := latestFinishID
	var totalHours float64
	for current != "" {
		path = append([]string{current}, path...)
		totalHours += g.nodes[current].EstimatedHours

		next := ""
		// The stored Dependencies list has already been drained by any
		// MarkCompleted calls; fall back to the original edge map is not
		// possible here, so CriticalPath should be called before any
		// MarkCompleted call on the same graph.
		for _, dep := range g.nodes[current].Dependencies {
			if earliestStart[dep]+g.nodes[dep].EstimatedHours == earliestStart[current] {
				next = dep
				break
			}
		}
		current = next
	}

	return path, totalHours, nil
}

// TotalEstimatedHours returns the sum of every node's EstimatedHours, i.e.
// the time a fully sequential execution would take.
func (g *Graph) TotalEstimatedHours() float64 {
	var total float64
	for _, n := range g.nodes {
		total += n.EstimatedHours
	}
	return total
}

// ParallelEstimatedHours returns the time a fully parallel execution would
// take: the sum, across topological levels, of each level's slowest node.
func (g *Graph) ParallelEstimatedHours() (float64, error) {
	levels, err := g.ExecutionOrder()
	if err != nil {
		return 0, err
	}

	var total float64
	for _, level := range levels {
		var levelMax float64
		for _, id := range level {
			if h := g.nodes[id].EstimatedHours; h > levelMax {
				levelMax = h
			}
		}
		total += levelMax
	}
	return total, nil
}
