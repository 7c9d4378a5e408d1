package compiler

import "container/heap"

// StepGraph is a directed graph of steps in declaration order. Dependencies
// point from a step to the steps it depends on.
type StepGraph struct {
	steps []Step
	index map[string]int
}

// NewStepGraph creates an empty StepGraph.
func NewStepGraph() *StepGraph {
	return &StepGraph{
		index: make(map[string]int),
	}
}

// Len returns the number of steps in the graph.
func (g *StepGraph) Len() int {
	return len(g.steps)
}

// Add appends a step. Duplicate IDs and self-dependencies are rejected.
func (g *StepGraph) Add(step Step) error {
	id := step.ID().String()

	if _, exists := g.index[id]; exists {
		return NewStepDuplicateError(id)
	}
	for _, dep := range step.DependsOn() {
		if dep.String() == id {
			return NewDependencySelfError(id)
		}
	}

	g.index[id] = len(g.steps)
	g.steps = append(g.steps, step)
	return nil
}

// Get retrieves a step by ID.
func (g *StepGraph) Get(id StepID) (Step, bool) {
	i, ok := g.index[id.String()]
	if !ok {
		return nil, false
	}
	return g.steps[i], true
}

// Steps returns all steps in declaration order.
func (g *StepGraph) Steps() []Step {
	steps := make([]Step, len(g.steps))
	copy(steps, g.steps)
	return steps
}

// Validate checks that every dependency resolves to a step in the graph.
func (g *StepGraph) Validate() error {
	for _, step := range g.steps {
		for _, dep := range step.DependsOn() {
			if _, exists := g.index[dep.String()]; !exists {
				return NewDependencyMissingError(step.ID().String(), dep.String())
			}
		}
	}
	return nil
}

// TopologicalSort returns steps in dependency order. Among steps that are
// ready at the same time, the one declared first runs first, so the order is
// deterministic. A cycle yields a CYCLIC_DEPENDENCY error naming one cycle.
func (g *StepGraph) TopologicalSort() ([]Step, error) {
	deps := g.edges()

	indeg := make([]int, len(g.steps))
	dependents := make([][]int, len(g.steps))
	for i, ds := range deps {
		indeg[i] = len(ds)
		for _, d := range ds {
			dependents[d] = append(dependents[d], i)
		}
	}

	ready := &intMinHeap{}
	for i, n := range indeg {
		if n == 0 {
			heap.Push(ready, i)
		}
	}

	sorted := make([]Step, 0, len(g.steps))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		sorted = append(sorted, g.steps[n])
		for _, m := range dependents[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}

	if len(sorted) != len(g.steps) {
		return nil, NewCyclicDependencyError(g.findCycle(deps))
	}
	return sorted, nil
}

// edges returns, per step index, the distinct indices of its resolvable
// dependencies in declaration order of the dependency list.
func (g *StepGraph) edges() [][]int {
	out := make([][]int, len(g.steps))
	for i, step := range g.steps {
		seen := make(map[int]bool)
		for _, dep := range step.DependsOn() {
			j, ok := g.index[dep.String()]
			if !ok || seen[j] {
				continue
			}
			seen[j] = true
			out[i] = append(out[i], j)
		}
	}
	return out
}

// findCycle runs a DFS in declaration order and returns the first cycle it
// meets as step IDs, starting and ending with the same step.
func (g *StepGraph) findCycle(deps [][]int) []string {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, len(g.steps))
	parent := make([]int, len(g.steps))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range deps[u] {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				// Back edge u -> v closes v -> ... -> u -> v.
				path := []int{v}
				for cur := u; cur != v && cur != -1; cur = parent[cur] {
					path = append(path, cur)
				}
				path = append(path, v)
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				cycle = path
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := range g.steps {
		if color[i] == white && dfs(i) {
			break
		}
	}

	ids := make([]string, len(cycle))
	for i, n := range cycle {
		ids[i] = g.steps[n].ID().String()
	}
	return ids
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
