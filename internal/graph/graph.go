// Package graph builds the dependency graph over a task set, detects
// cycles, and computes the level-wise topological order the scheduler
// dispatches against.
package graph

import (
	"fmt"
	"sort"

	"github.com/flowkit/agentctl/internal/task"
)

// ValidationError indicates a task set failed structural validation
// (duplicate task ids, or a dependency on an unknown task id) before
// scheduling ever began. It is distinguished from other errors Build
// might wrap so callers can exit 2 (a configuration error) rather than
// 1, per spec.md §6.1.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Graph is the built dependency graph for one session's task set, per
// spec.md §3: adjacency maps each id to the ids it depends on,
// reverseAdjacency maps each id to its dependents.
type Graph struct {
	Adjacency        map[task.TaskId][]task.TaskId
	ReverseAdjacency map[task.TaskId][]task.TaskId
	AllIDs           []task.TaskId // insertion order, for deterministic iteration

	cyclicIDs map[task.TaskId]bool // memoized by Cycles(); nil until first call
}

// Build validates the task set and constructs the graph. It returns an
// error for any task that depends on an unknown TaskId — this is a hard
// configuration error surfaced before scheduling, per spec.md §4.1.
func Build(tasks []task.Task) (*Graph, error) {
	g := &Graph{
		Adjacency:        make(map[task.TaskId][]task.TaskId, len(tasks)),
		ReverseAdjacency: make(map[task.TaskId][]task.TaskId, len(tasks)),
	}

	known := make(map[task.TaskId]bool, len(tasks))
	for _, t := range tasks {
		if known[t.ID] {
			return nil, validationErrorf("graph: duplicate task id %q", t.ID)
		}
		known[t.ID] = true
		g.AllIDs = append(g.AllIDs, t.ID)
		g.Adjacency[t.ID] = nil
		g.ReverseAdjacency[t.ID] = nil
	}

	for _, t := range tasks {
		for _, dep := range t.DependencySet() {
			if !known[dep] {
				return nil, validationErrorf("graph: task %q depends on unknown task %q", t.ID, dep)
			}
			g.Adjacency[t.ID] = append(g.Adjacency[t.ID], dep)
			g.ReverseAdjacency[dep] = append(g.ReverseAdjacency[dep], t.ID)
		}
	}
	return g, nil
}

// Cycles returns the set of task ids that participate in a dependency
// cycle (cyclicIds in spec.md §3). It marks every member of every
// strongly connected component of size > 1 (or a self-loop), not merely
// the edge that closes the cycle — the precise behaviour spec.md's Open
// Question (a) resolves in favor of over the source's partial marking.
func (g *Graph) Cycles() map[task.TaskId]bool {
	if g.cyclicIDs != nil {
		return g.cyclicIDs
	}

	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS stack
		black = 2 // fully explored
	)
	color := make(map[task.TaskId]int, len(g.AllIDs))
	cyclic := make(map[task.TaskId]bool)

	var stack []task.TaskId
	onStack := make(map[task.TaskId]int) // id -> index in stack

	var visit func(id task.TaskId)
	visit = func(id task.TaskId) {
		color[id] = gray
		stack = append(stack, id)
		onStack[id] = len(stack) - 1

		for _, dep := range g.Adjacency[id] {
			switch color[dep] {
			case white:
				visit(dep)
			case gray:
				// Back edge found: mark every node on the stack from
				// dep's position to the top as part of the cycle.
				startIdx := onStack[dep]
				for _, member := range stack[startIdx:] {
					cyclic[member] = true
				}
			case black:
				// already resolved, nothing to do
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, id)
		color[id] = black
	}

	for _, id := range g.AllIDs {
		if color[id] == white {
			visit(id)
		}
	}
	// A back edge only marks the DFS path it closes; an SCC member reached
	// solely through an already-explored node is picked up here by mutual
	// reachability with a marked node.
	for _, v := range g.AllIDs {
		if !cyclic[v] {
			continue
		}
		for _, u := range g.Descendants(v) {
			if !cyclic[u] && contains(g.Descendants(u), v) {
				cyclic[u] = true
			}
		}
	}
	g.cyclicIDs = cyclic
	return cyclic
}

// ExecutionLevels is the level-wise topological order computed by Levels.
type ExecutionLevels struct {
	Levels        [][]task.TaskId
	Unschedulable []task.TaskId
}

// Levels computes the level-wise topological order via Kahn's algorithm,
// per spec.md §4.1: level 0 holds every non-cyclic task with in-degree 0
// (counting only edges to non-cyclic dependencies); level k+1 holds every
// task whose dependencies are entirely within levels 0..k. Within a
// level, task ids are sorted ascending for deterministic scheduling.
// Unschedulable is the superset of cyclicIds plus any node that never
// reaches in-degree 0 (e.g. a transitive dependent of a cyclic node).
func (g *Graph) Levels() ExecutionLevels {
	cyclic := g.Cycles()

	indeg := make(map[task.TaskId]int, len(g.AllIDs))
	for _, id := range g.AllIDs {
		if cyclic[id] {
			continue
		}
		count := 0
		for _, dep := range g.Adjacency[id] {
			if !cyclic[dep] {
				count++
			}
		}
		indeg[id] = count
	}

	placed := make(map[task.TaskId]bool, len(indeg))
	var levels [][]task.TaskId
	remaining := indeg
	for len(remaining) > 0 {
		var frontier []task.TaskId
		for id, d := range remaining {
			if d == 0 {
				frontier = append(frontier, id)
			}
		}
		if len(frontier) == 0 {
			break // remaining nodes can never reach in-degree 0: unschedulable
		}
		sort.Slice(frontier, func(i, j int) bool { return frontier[i] < frontier[j] })
		levels = append(levels, frontier)
		for _, id := range frontier {
			placed[id] = true
			delete(remaining, id)
			for _, dependent := range g.ReverseAdjacency[id] {
				if _, ok := remaining[dependent]; ok {
					remaining[dependent]--
				}
			}
		}
	}

	var unschedulable []task.TaskId
	for _, id := range g.AllIDs {
		if cyclic[id] || !placed[id] {
			unschedulable = append(unschedulable, id)
		}
	}
	sort.Slice(unschedulable, func(i, j int) bool { return unschedulable[i] < unschedulable[j] })

	return ExecutionLevels{Levels: levels, Unschedulable: unschedulable}
}

// Descendants returns every task id transitively reachable from id via
// reverse-adjacency (dependent) edges, used to propagate BLOCKED from a
// failed or cyclic ancestor down through the rest of the graph.
func (g *Graph) Descendants(id task.TaskId) []task.TaskId {
	seen := make(map[task.TaskId]bool)
	var out []task.TaskId
	var walk func(task.TaskId)
	walk = func(cur task.TaskId) {
		for _, dependent := range g.ReverseAdjacency[cur] {
			if !seen[dependent] {
				seen[dependent] = true
				out = append(out, dependent)
				walk(dependent)
			}
		}
	}
	walk(id)
	return out
}

// IsTranspose reports whether Adjacency and ReverseAdjacency are exact
// transposes of each other — property 1 of spec.md §8.
func (g *Graph) IsTranspose() bool {
	for from, deps := range g.Adjacency {
		for _, to := range deps {
			if !contains(g.ReverseAdjacency[to], from) {
				return false
			}
		}
	}
	for to, dependents := range g.ReverseAdjacency {
		for _, from := range dependents {
			if !contains(g.Adjacency[from], to) {
				return false
			}
		}
	}
	return true
}

func contains(ids []task.TaskId, target task.TaskId) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}
