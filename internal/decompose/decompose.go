// Package decompose assembles planning-oracle output into a validated task graph.
package decompose

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mseverin/taskwright/internal/graph"
	"github.com/mseverin/taskwright/pkg/models"
)

// Reason classifies why a decomposition was rejected.
type Reason string

const (
	// ReasonEmptyGoal means the goal was empty or whitespace.
	ReasonEmptyGoal Reason = "empty_goal"
	// ReasonEmptyPlan means the oracle proposed no tasks.
	ReasonEmptyPlan Reason = "empty_plan"
	// ReasonUnresolvedDependency means a declared dependency matched no task.
	ReasonUnresolvedDependency Reason = "unresolved_dependency"
	// ReasonCyclicDependency means the declared dependencies form a cycle.
	ReasonCyclicDependency Reason = "cyclic_dependency"
)

// Error is a fatal decomposition failure, surfaced before execution starts.
type Error struct {
	// Reason classifies the failure.
	Reason Reason
	// TaskIndex is the zero-based index of the offending spec, or -1.
	TaskIndex int
	// Cycle holds the full cycle path for cyclic dependency failures.
	Cycle []string
	// Detail is the human-readable failure message.
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("decomposition failed (%s): %s", e.Reason, e.Detail)
}

// Options tune decomposition behavior.
type Options struct {
	// MaxAttempts is the per-task attempt budget. Zero means the default.
	MaxAttempts int
	// DuplicateThreshold is the description similarity above which a
	// non-fatal warning is attached. Zero means the default of 0.8.
	DuplicateThreshold float64
}

// Decompose assigns stable ids to the oracle's raw specs in arrival order,
// resolves declared dependencies, rejects cycles, and returns the built
// graph. Near-duplicate descriptions are surfaced as warnings on the graph,
// never merged. No partially built graph is ever returned.
func Decompose(goal string, specs []models.RawTaskSpec, opts Options) (*graph.TaskGraph, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, &Error{
			Reason:    ReasonEmptyGoal,
			TaskIndex: -1,
			Detail:    "goal is empty",
		}
	}
	if len(specs) == 0 {
		return nil, &Error{
			Reason:    ReasonEmptyPlan,
			TaskIndex: -1,
			Detail:    "planning oracle proposed no tasks",
		}
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultMaxAttempts
	}

	// First pass: assign ids in arrival order and index descriptions.
	now := time.Now()
	tasks := make([]*models.Task, len(specs))
	descToIndex := make(map[string]int, len(specs))
	for i, spec := range specs {
		tasks[i] = &models.Task{
			ID:          uuid.New().String(),
			Description: spec.Description,
			Approach:    spec.Description,
			Status:      models.TaskStatusPending,
			MaxAttempts: maxAttempts,
			CreatedAt:   now,
		}
		if _, dup := descToIndex[spec.Description]; !dup {
			descToIndex[spec.Description] = i
		}
	}

	// Second pass: resolve declared dependencies to ids.
	for i, spec := range specs {
		for _, ref := range spec.DependsOn {
			depIdx, ok := resolveRef(ref, len(specs), descToIndex)
			if !ok || depIdx == i {
				return nil, &Error{
					Reason:    ReasonUnresolvedDependency,
					TaskIndex: i,
					Detail: fmt.Sprintf("task %d (%q) declares unresolved dependency %q",
						i, truncate(spec.Description, 60), ref),
				}
			}
			tasks[i].DependsOn = append(tasks[i].DependsOn, tasks[depIdx].ID)
		}
	}

	g := graph.New(uuid.New().String(), goal)
	if err := g.Build(tasks); err != nil {
		var cycleErr *graph.CycleError
		if errors.As(err, &cycleErr) {
			return nil, &Error{
				Reason:    ReasonCyclicDependency,
				TaskIndex: -1,
				Cycle:     cycleErr.Path,
				Detail:    cycleErr.Error(),
			}
		}
		return nil, fmt.Errorf("build graph: %w", err)
	}

	attachDuplicateWarnings(g, specs, opts.DuplicateThreshold)
	return g, nil
}

// resolveRef resolves a declared dependency reference. A reference is either
// the zero-based index of an earlier spec or an exact description match.
func resolveRef(ref string, count int, descToIndex map[string]int) (int, bool) {
	if idx, err := strconv.Atoi(strings.TrimSpace(ref)); err == nil {
		if idx < 0 || idx >= count {
			return 0, false
		}
		return idx, true
	}
	idx, ok := descToIndex[ref]
	return idx, ok
}

// attachDuplicateWarnings flags spec pairs whose descriptions are nearly
// identical. Ambiguity is surfaced, never silently resolved.
func attachDuplicateWarnings(g *graph.TaskGraph, specs []models.RawTaskSpec, threshold float64) {
	if threshold <= 0 {
		threshold = 0.8
	}
	for i := 0; i < len(specs); i++ {
		for j := i + 1; j < len(specs); j++ {
			score := similarity(specs[i].Description, specs[j].Description)
			if score >= threshold {
				g.AddWarning(fmt.Sprintf(
					"tasks %d and %d have near-duplicate descriptions (%.0f%% similar): %q / %q",
					i, j, score*100,
					truncate(specs[i].Description, 60), truncate(specs[j].Description, 60)))
			}
		}
	}
}

// similarity computes Jaccard similarity over lowercased word sets.
func similarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:!?\"'()")
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
