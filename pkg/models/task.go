package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting on dependencies.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusReady indicates every dependency has succeeded and the task
	// is queued for dispatch.
	TaskStatusReady TaskStatus = "ready"
	// TaskStatusRunning indicates a worker is executing the task.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusSucceeded indicates the task completed successfully.
	TaskStatusSucceeded TaskStatus = "succeeded"
	// TaskStatusFailed indicates the task failed terminally.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusSkipped indicates a transitive dependency failed, so the
	// task was never dispatched.
	TaskStatusSkipped TaskStatus = "skipped"
)

// DefaultMaxAttempts is the number of attempts a task gets before its
// failure becomes terminal.
const DefaultMaxAttempts = 3

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusReady, TaskStatusRunning,
		TaskStatusSucceeded, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transition is possible from s.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a task may move from s to next.
// Transitions only move forward, with one exception: a retryable failure
// moves back to ready while attempts remain.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusReady || next == TaskStatusSkipped
	case TaskStatusReady:
		return next == TaskStatusRunning || next == TaskStatusSkipped
	case TaskStatusRunning:
		return next == TaskStatusSucceeded || next == TaskStatusFailed || next == TaskStatusReady
	default:
		return false
	}
}

// RawTaskSpec is a single task proposal as produced by a planning oracle,
// before id assignment and dependency resolution.
type RawTaskSpec struct {
	// Description is the natural-language statement of the work.
	Description string `json:"description" yaml:"description"`
	// DependsOn lists declared dependencies. Each entry is either the
	// zero-based index of an earlier spec or the exact description of
	// another spec in the same proposal.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// Attempt records one execution attempt of a task.
type Attempt struct {
	// Number is the 1-indexed attempt number.
	Number int `json:"number"`
	// Strategy names the approach used for this attempt.
	Strategy string `json:"strategy,omitempty"`
	// Error is the failure message, empty on success.
	Error string `json:"error,omitempty"`
	// StartedAt is when the attempt began.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the attempt ended.
	FinishedAt time.Time `json:"finished_at"`
}

// Task represents a unit of work in the system.
type Task struct {
	// ID is the stable identifier assigned at decomposition.
	ID string `json:"id"`
	// Description is the natural-language statement of the work.
	Description string `json:"description"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// DependsOn lists task IDs that must succeed before this task runs.
	DependsOn []string `json:"depends_on,omitempty"`
	// Handler is the capability assigned by the handler selector.
	// Empty until selection happens at dispatch.
	Handler string `json:"handler,omitempty"`
	// Approach is the current working approach, revised between attempts
	// by auto-correction. Starts equal to Description.
	Approach string `json:"approach,omitempty"`
	// AttemptCount is the number of attempts consumed so far.
	AttemptCount int `json:"attempt_count"`
	// MaxAttempts is the attempt budget before failure becomes terminal.
	MaxAttempts int `json:"max_attempts"`
	// Result is the handler output for a succeeded task.
	Result string `json:"result,omitempty"`
	// LastError is the most recent failure message.
	LastError string `json:"last_error,omitempty"`
	// Attempts is the full attempt history.
	Attempts []Attempt `json:"attempts,omitempty"`
	// CreatedAt is when the task was created by decomposition.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the task was first dispatched, if ever.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal status, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AttemptsExhausted returns true once the task has consumed its budget.
func (t *Task) AttemptsExhausted() bool {
	max := t.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	return t.AttemptCount >= max
}
