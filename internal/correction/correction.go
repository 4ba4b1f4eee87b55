// Package correction revises a failed task's approach before the next
// attempt. Revisers are pure: they never touch scheduler state, so they can
// vary independently of the engine and be tested in isolation.
package correction

import "context"

// FailureContext is everything a reviser may consider about a failure.
type FailureContext struct {
	// TaskID identifies the failed task.
	TaskID string
	// Description is the task's original description.
	Description string
	// Approach is the approach that just failed.
	Approach string
	// Error is the failure message from the attempt.
	Error string
	// Attempt is the 1-indexed attempt that failed.
	Attempt int
	// PriorStrategies lists strategies already tried, oldest first.
	PriorStrategies []string
}

// Revision is a revised plan for the next attempt.
type Revision struct {
	// Strategy names the approach taken for the next attempt.
	Strategy string
	// Approach is the revised working approach. Empty means keep the
	// current one.
	Approach string
}

// Reviser produces a revised task approach from a failure.
type Reviser interface {
	Revise(ctx context.Context, fc FailureContext) (Revision, error)
}

// strategies is the heuristic ladder, walked by attempt number.
var strategies = []string{
	"retry_original",     // attempt 1 failed: try again as-is
	"retry_with_context", // attempt 2 failed: restate with the error inline
	"simplify_approach",  // attempt 3+ failed: strip the approach to its core
}

// HeuristicReviser walks a fixed strategy ladder. It needs no external
// service and is the default when no oracle is configured.
type HeuristicReviser struct{}

// NewHeuristicReviser creates the default reviser.
func NewHeuristicReviser() *HeuristicReviser {
	return &HeuristicReviser{}
}

// Revise implements Reviser.
func (r *HeuristicReviser) Revise(ctx context.Context, fc FailureContext) (Revision, error) {
	idx := fc.Attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(strategies) {
		idx = len(strategies) - 1
	}
	strategy := strategies[idx]

	rev := Revision{Strategy: strategy}
	switch strategy {
	case "retry_with_context":
		rev.Approach = fc.Description + "\n\nThe previous attempt failed with: " + fc.Error +
			"\nAvoid repeating that failure."
	case "simplify_approach":
		rev.Approach = "Do only the essential part of: " + fc.Description
	}
	return rev, nil
}
