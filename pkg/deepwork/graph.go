package deepwork

import (
	"fmt"
	"sort"
	"strings"
)

// GraphErrorKind classifies a validation finding.
type GraphErrorKind string

const (
	// GraphErrorMissingRef: a blocked_by entry names a task that is not in
	// the working set.
	GraphErrorMissingRef GraphErrorKind = "missing_reference"
	// GraphErrorCycle: the blocked_by relation contains a cycle.
	GraphErrorCycle GraphErrorKind = "cycle"
)

// GraphError is one structured validation finding. Validation reports every
// finding, never just the first.
type GraphError struct {
	Kind   GraphErrorKind
	TaskID string   // the task carrying the bad reference (missing_reference)
	Ref    string   // the missing id (missing_reference)
	Cycle  []string // every task id on the cycle (cycle), smallest id first
}

// Error implements the error interface.
func (e GraphError) Error() string {
	switch e.Kind {
	case GraphErrorMissingRef:
		return fmt.Sprintf("task %q is blocked by non-existent task %q", e.TaskID, e.Ref)
	case GraphErrorCycle:
		return fmt.Sprintf("dependency cycle detected involving: %s", strings.Join(e.Cycle, ", "))
	default:
		return string(e.Kind)
	}
}

// graph node colors for cycle detection.
const (
	colorWhite = iota // unvisited
	colorGray         // on the current DFS path
	colorBlack        // fully explored
)

// ValidateGraph checks the blocked_by relation over a task set and returns
// every missing reference and every cycle found. It never mutates task
// state. A nil or empty result means the graph is a valid DAG.
//
// Cycles are found by depth-first traversal with three-color marking: a
// back-edge onto a gray node closes a cycle, and the error names every
// task id on it. Each distinct cycle is reported once.
func ValidateGraph(tasks []*Task) []GraphError {
	if len(tasks) == 0 {
		return nil
	}

	byID := make(map[string]*Task, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)

	var errs []GraphError

	// Missing references first, in deterministic order. Edges to missing
	// tasks are excluded from cycle detection below.
	for _, id := range ids {
		deps := append([]string(nil), byID[id].BlockedBy...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, ok := byID[dep]; !ok {
				errs = append(errs, GraphError{Kind: GraphErrorMissingRef, TaskID: id, Ref: dep})
			}
		}
	}

	color := make(map[string]int, len(tasks))
	var stack []string
	seenCycles := make(map[string]bool)

	var visit func(id string)
	visit = func(id string) {
		color[id] = colorGray
		stack = append(stack, id)

		deps := append([]string(nil), byID[id].BlockedBy...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, ok := byID[dep]; !ok {
				continue
			}
			switch color[dep] {
			case colorWhite:
				visit(dep)
			case colorGray:
				// Back-edge: the cycle is the stack segment from dep onward.
				start := 0
				for i, node := range stack {
					if node == dep {
						start = i
						break
					}
				}
				cycle := normalizeCycle(stack[start:])
				key := strings.Join(cycle, "->")
				if !seenCycles[key] {
					seenCycles[key] = true
					errs = append(errs, GraphError{Kind: GraphErrorCycle, Cycle: cycle})
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = colorBlack
	}

	for _, id := range ids {
		if color[id] == colorWhite {
			visit(id)
		}
	}

	return errs
}

// normalizeCycle rotates a cycle so its lexicographically smallest id comes
// first, making reporting deterministic regardless of traversal entry.
func normalizeCycle(cycle []string) []string {
	out := append([]string(nil), cycle...)
	smallest := 0
	for i, id := range out {
		if id < out[smallest] {
			smallest = i
		}
	}
	return append(out[smallest:], out[:smallest]...)
}

// ReadyTasks returns every task that is pending, not running, and whose
// blockers are all done. The result is ordered by task id so a given input
// always yields the same output.
func ReadyTasks(tasks []*Task) []*Task {
	done := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.Status == StatusDone {
			done[t.ID] = true
		}
	}

	var ready []*Task
	for _, t := range tasks {
		if t.Status != StatusPending {
			continue
		}
		blocked := false
		for _, dep := range t.BlockedBy {
			if !done[dep] {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, t)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	return ready
}

// ExecutionOrder partitions a validated graph into topological levels:
// level 0 holds tasks with no blockers, level k holds tasks whose blockers
// all lie in earlier levels. Used for planning display, not dispatch.
func ExecutionOrder(tasks []*Task) [][]string {
	if len(tasks) == 0 {
		return nil
	}

	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}

	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		count := 0
		for _, dep := range t.BlockedBy {
			if known[dep] {
				count++
				dependents[dep] = append(dependents[dep], t.ID)
			}
		}
		inDegree[t.ID] = count
	}

	var current []string
	for id, deg := range inDegree {
		if deg == 0 {
			current = append(current, id)
		}
	}

	var levels [][]string
	for len(current) > 0 {
		sort.Strings(current)
		levels = append(levels, current)

		var next []string
		for _, id := range current {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}
	return levels
}
