package engine

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/mseverin/taskwright/pkg/models"
)

// EventType represents the type of engine event.
type EventType string

const (
	// EventRunStarted fires once when the dispatch loop starts.
	EventRunStarted EventType = "run_started"
	// EventTaskReady fires when a task's dependencies are all satisfied.
	EventTaskReady EventType = "task_ready"
	// EventTaskStarted fires when a worker picks up a task.
	EventTaskStarted EventType = "task_started"
	// EventTaskSucceeded fires when a task completes successfully.
	EventTaskSucceeded EventType = "task_succeeded"
	// EventTaskRetrying fires when a failed attempt is requeued with a
	// revised approach.
	EventTaskRetrying EventType = "task_retrying"
	// EventTaskFailed fires when a task exhausts its attempts.
	EventTaskFailed EventType = "task_failed"
	// EventTaskSkipped fires when a task is skipped because a dependency
	// failed.
	EventTaskSkipped EventType = "task_skipped"
	// EventRunCanceled fires when the run is canceled before completion.
	EventRunCanceled EventType = "run_canceled"
	// EventRunDone fires once after the last task reaches a terminal status.
	EventRunDone EventType = "run_done"
)

// Event represents a status change emitted by the engine. Subscribers (the
// TUI, the plain renderer) receive these on the emitter channel.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// Description is the task's description, if applicable.
	Description string
	// OldStatus and NewStatus capture the transition for task events.
	OldStatus models.TaskStatus
	NewStatus models.TaskStatus
	// Attempt is the attempt number for started/retrying/failed events.
	Attempt int
	// Strategy names the correction strategy on retrying events.
	Strategy string
	// Message provides additional context about the event.
	Message string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Emitter provides thread-safe, non-blocking event emission. A full channel
// never stalls the dispatch loop: after a short grace period the event is
// dropped and counted.
type Emitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEmitter creates an Emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	return &Emitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event to the events channel. If the channel is full it tries
// with a timeout before dropping the event.
func (e *Emitter) Emit(event Event) {
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // log every 10th drop to avoid spam
			log.Printf("[engine] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *Emitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events for subscribers.
func (e *Emitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. Call only after the run has finished.
func (e *Emitter) Close() {
	close(e.events)
}
