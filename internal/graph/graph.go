// Package graph provides the dependency graph that drives task scheduling.
package graph

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mseverin/taskwright/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrUnknownTask indicates a task id that is not present in the graph.
var ErrUnknownTask = errors.New("unknown task")

// CycleError carries the full path of a detected dependency cycle.
type CycleError struct {
	// Path is the cycle, first and last element identical.
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// TransitionError indicates a status change that violates the task state
// machine. The engine treats this as an internal defect, not a task failure.
type TransitionError struct {
	TaskID string
	From   models.TaskStatus
	To     models.TaskStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: invalid status transition %s -> %s", e.TaskID, e.From, e.To)
}

// TaskGraph is a directed acyclic graph of tasks. The structure (nodes and
// edges) is fixed after Build; per-task status cells stay mutable and are
// guarded by the graph's lock.
type TaskGraph struct {
	mu sync.RWMutex
	// id identifies this graph across checkpoints.
	id string
	// goal is the high-level request the graph was decomposed from.
	goal string
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// edges maps task ID to the IDs it depends on.
	edges map[string][]string
	// dependents is the reverse adjacency, computed at build time.
	dependents map[string][]string
	// order holds task IDs in decomposition arrival order.
	order []string
	// warnings holds non-fatal issues surfaced at decomposition.
	warnings []string
}

// New creates an empty task graph with the given id and goal.
func New(id, goal string) *TaskGraph {
	return &TaskGraph{
		id:         id,
		goal:       goal,
		nodes:      make(map[string]*models.Task),
		edges:      make(map[string][]string),
		dependents: make(map[string][]string),
	}
}

// Build populates the graph from tasks in arrival order. It fails if a
// dependency references an unknown task, a task depends on itself, or the
// edges form a cycle. A cycle failure carries the full cycle path.
func (g *TaskGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, task := range tasks {
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
		g.order = append(g.order, task.ID)
	}

	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if depID == task.ID {
				return fmt.Errorf("task %s depends on itself", task.ID)
			}
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("task %s depends on %w %s", task.ID, ErrUnknownTask, depID)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
			g.dependents[depID] = append(g.dependents[depID], task.ID)
		}
	}

	if cycle := g.findCycleLocked(); cycle != nil {
		return &CycleError{Path: cycle}
	}
	return nil
}

// FindCycle returns the path of a dependency cycle, or nil if the graph is
// acyclic. The path begins and ends with the same task id.
func (g *TaskGraph) FindCycle() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.findCycleLocked()
}

// findCycleLocked runs depth-first search with three-coloring.
// Caller must hold the lock.
func (g *TaskGraph) findCycleLocked() []string {
	// Color states: 0 = white (unvisited), 1 = gray (on stack), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))

	var cycle []string
	var visit func(id string, path []string) bool
	visit = func(id string, path []string) bool {
		colors[id] = 1
		path = append(path, id)

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge: trim the path down to the cycle itself.
				start := 0
				for i, p := range path {
					if p == depID {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, path[start:]...), depID)
				return true
			case 0:
				if visit(depID, path) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 && visit(id, nil) {
			return cycle
		}
	}
	return nil
}

// ID returns the graph identifier.
func (g *TaskGraph) ID() string { return g.id }

// Goal returns the goal the graph was decomposed from.
func (g *TaskGraph) Goal() string { return g.goal }

// Task returns the task for a given ID, or nil if not found.
func (g *TaskGraph) Task(id string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Tasks returns all tasks in decomposition arrival order.
func (g *TaskGraph) Tasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*models.Task, 0, len(g.order))
	for _, id := range g.order {
		tasks = append(tasks, g.nodes[id])
	}
	return tasks
}

// Size returns the number of tasks in the graph.
func (g *TaskGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs the given task depends on.
func (g *TaskGraph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[id]...)
}

// Dependents returns the IDs of tasks that directly depend on the given task.
func (g *TaskGraph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.dependents[id]...)
}

// TransitiveDependents returns every task downstream of the given task,
// in breadth-first order.
func (g *TaskGraph) TransitiveDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := map[string]bool{id: true}
	var result []string
	queue := append([]string(nil), g.dependents[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		result = append(result, next)
		queue = append(queue, g.dependents[next]...)
	}
	return result
}

// InDegrees returns the number of direct dependencies per task.
func (g *TaskGraph) InDegrees() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	degrees := make(map[string]int, len(g.nodes))
	for id, deps := range g.edges {
		degrees[id] = len(deps)
	}
	return degrees
}

// SetStatus moves a task to a new status, enforcing the state machine.
// The failed -> ready retry path additionally requires remaining attempts.
func (g *TaskGraph) SetStatus(id string, next models.TaskStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("set status: %w %s", ErrUnknownTask, id)
	}
	if !task.Status.CanTransition(next) {
		return &TransitionError{TaskID: id, From: task.Status, To: next}
	}
	if task.Status == models.TaskStatusRunning && next == models.TaskStatusReady && task.AttemptsExhausted() {
		return &TransitionError{TaskID: id, From: task.Status, To: next}
	}
	task.Status = next
	return nil
}

// RestoreStatus forces a task directly into a terminal status without
// walking the state machine. Used when resuming from a checkpoint.
func (g *TaskGraph) RestoreStatus(id string, status models.TaskStatus, attemptCount int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("restore status: %w %s", ErrUnknownTask, id)
	}
	if !status.Terminal() {
		return fmt.Errorf("restore status: %s is not terminal", status)
	}
	task.Status = status
	task.AttemptCount = attemptCount
	return nil
}

// StatusCounts returns the number of tasks per status.
func (g *TaskGraph) StatusCounts() map[models.TaskStatus]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	counts := make(map[models.TaskStatus]int)
	for _, task := range g.nodes {
		counts[task.Status]++
	}
	return counts
}

// AddWarning attaches a non-fatal warning to the graph.
func (g *TaskGraph) AddWarning(warning string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.warnings = append(g.warnings, warning)
}

// Warnings returns the non-fatal warnings attached at decomposition.
func (g *TaskGraph) Warnings() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.warnings...)
}
