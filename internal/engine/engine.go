// Package engine executes a task graph with a bounded worker pool. A single
// dispatch goroutine owns all graph mutations; workers only run handlers and
// report back on a completion channel, so no status transition ever races.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mseverin/taskwright/internal/correction"
	"github.com/mseverin/taskwright/internal/graph"
	"github.com/mseverin/taskwright/internal/registry"
	"github.com/mseverin/taskwright/internal/state"
	"github.com/mseverin/taskwright/pkg/models"
)

// DefaultMaxConcurrency bounds the worker pool when no override is given.
const DefaultMaxConcurrency = 4

// Config contains tunables for the execution engine.
type Config struct {
	// MaxConcurrency is the worker pool size; 0 selects the default.
	MaxConcurrency int
	// TaskTimeout bounds a single attempt; 0 means no per-task deadline.
	TaskTimeout time.Duration
	// EventBuffer is the emitter channel capacity; 0 selects a default.
	EventBuffer int
}

// Engine runs a task graph to completion.
type Engine struct {
	graph    *graph.TaskGraph
	registry *registry.Registry
	selector registry.Selector
	reviser  correction.Reviser
	store    *state.DB
	emitter  *Emitter

	maxConcurrency int
	taskTimeout    time.Duration
	resume         bool

	now  func() time.Time
	logf func(format string, args ...interface{})
}

// Option customizes an Engine.
type Option func(*Engine)

// WithSelector overrides the handler selector.
func WithSelector(s registry.Selector) Option {
	return func(e *Engine) { e.selector = s }
}

// WithReviser overrides the correction reviser used between attempts.
func WithReviser(r correction.Reviser) Option {
	return func(e *Engine) { e.reviser = r }
}

// WithStore enables checkpointing to the given database. The engine records
// the run and every terminal status change.
func WithStore(db *state.DB) Option {
	return func(e *Engine) { e.store = db }
}

// WithResume marks the run as resumed: the run row already exists, so the
// engine updates it instead of creating it.
func WithResume() Option {
	return func(e *Engine) { e.resume = true }
}

// WithLogf overrides the engine's log function.
func WithLogf(fn func(format string, args ...interface{})) Option {
	return func(e *Engine) { e.logf = fn }
}

// WithNow overrides the clock, for tests.
func WithNow(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// New creates an engine over the given graph and handler registry.
func New(g *graph.TaskGraph, reg *registry.Registry, cfg Config, opts ...Option) *Engine {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	eventBuffer := cfg.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = 64
	}

	e := &Engine{
		graph:          g,
		registry:       reg,
		emitter:        NewEmitter(eventBuffer),
		maxConcurrency: maxConcurrency,
		taskTimeout:    cfg.TaskTimeout,
		now:            time.Now,
		logf:           log.Printf,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.selector == nil {
		e.selector = registry.NewKeywordSelector(reg)
	}
	if e.reviser == nil {
		e.reviser = correction.NewHeuristicReviser()
	}
	return e
}

// Events returns the engine's event stream. Subscribe before calling Run.
func (e *Engine) Events() <-chan Event {
	return e.emitter.Events()
}

// completion is a worker's report back to the dispatch loop.
type completion struct {
	taskID  string
	handler string
	result  *registry.Result
	err     error
}

// Run executes the graph until every task is terminal or the context is
// canceled. On cancellation in-flight attempts finish; queued work is left
// pending. The report is returned in both cases.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	start := e.now()
	defer e.emitter.Close()

	if e.store != nil && !e.resume {
		if err := e.createRun(start); err != nil {
			return nil, err
		}
	}

	e.emitter.Emit(Event{Type: EventRunStarted, Message: e.graph.Goal(), Timestamp: e.now()})

	// Seed the ready queue. On resume, succeeded dependencies count as
	// satisfied and failed ones cascade skips immediately.
	waiting := make(map[string]int)
	var queue []string
	for _, t := range e.graph.Tasks() {
		if t.Status.Terminal() {
			continue
		}
		remaining := 0
		blocked := false
		for _, depID := range e.graph.Dependencies(t.ID) {
			switch e.graph.Task(depID).Status {
			case models.TaskStatusSucceeded:
			case models.TaskStatusFailed, models.TaskStatusSkipped:
				blocked = true
			default:
				remaining++
			}
		}
		if blocked {
			if err := e.markSkipped(t.ID, "dependency failed before run"); err != nil {
				return nil, err
			}
			continue
		}
		if remaining == 0 {
			if err := e.markReady(t.ID, &queue); err != nil {
				return nil, err
			}
		} else {
			waiting[t.ID] = remaining
		}
	}

	completionCh := make(chan completion, e.maxConcurrency)
	running := 0
	canceled := false
	cancelCh := ctx.Done()

	for {
		// Dispatch while workers and ready tasks are available.
		for !canceled && running < e.maxConcurrency && len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			task := e.graph.Task(id)
			if task.Status != models.TaskStatusReady {
				continue // skipped while queued
			}
			if err := e.startTask(ctx, task, completionCh); err != nil {
				return nil, err
			}
			running++
		}

		if running == 0 && (canceled || len(queue) == 0) {
			break
		}

		select {
		case c := <-completionCh:
			running--
			if err := e.handleCompletion(ctx, c, waiting, &queue); err != nil {
				return nil, err
			}
		case <-cancelCh:
			cancelCh = nil
			canceled = true
			e.emitter.Emit(Event{Type: EventRunCanceled, Message: "run canceled, waiting for in-flight tasks", Timestamp: e.now()})
		}
	}

	report := e.buildReport(start, canceled)

	if e.store != nil {
		status := state.RunCompleted
		if canceled {
			status = state.RunCanceled
		} else if report.Failed > 0 {
			status = state.RunFailed
		}
		if err := e.store.UpdateRunStatus(e.graph.ID(), status); err != nil {
			e.logf("[engine] update run status: %v", err)
		}
	}

	e.emitter.Emit(Event{Type: EventRunDone, Message: report.Summary(), Timestamp: e.now()})

	if canceled {
		return report, ctx.Err()
	}
	return report, nil
}

// createRun records the run and its initial task rows.
func (e *Engine) createRun(start time.Time) error {
	tasks := e.graph.Tasks()
	checkpoints := make([]state.TaskCheckpoint, len(tasks))
	for i, t := range tasks {
		checkpoints[i] = state.TaskCheckpoint{
			ID:          t.ID,
			Position:    i,
			Description: t.Description,
			DependsOn:   t.DependsOn,
			Handler:     t.Handler,
			Status:      t.Status,
			MaxAttempts: t.MaxAttempts,
			UpdatedAt:   start,
		}
	}
	err := e.store.CreateRun(state.Run{
		ID:        e.graph.ID(),
		Goal:      e.graph.Goal(),
		Status:    state.RunActive,
		StartedAt: start,
		UpdatedAt: start,
	}, checkpoints)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// markReady transitions a task to ready and enqueues it FIFO.
func (e *Engine) markReady(id string, queue *[]string) error {
	if err := e.graph.SetStatus(id, models.TaskStatusReady); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	t := e.graph.Task(id)
	e.emitter.Emit(Event{
		Type:        EventTaskReady,
		TaskID:      id,
		Description: t.Description,
		NewStatus:   models.TaskStatusReady,
		Timestamp:   e.now(),
	})
	*queue = append(*queue, id)
	return nil
}

// startTask transitions a task to running and launches a worker. The worker
// context is detached from run cancellation so in-flight attempts finish.
func (e *Engine) startTask(ctx context.Context, task *models.Task, ch chan<- completion) error {
	if err := e.graph.SetStatus(task.ID, models.TaskStatusRunning); err != nil {
		return fmt.Errorf("start task: %w", err)
	}
	task.AttemptCount++
	now := e.now()
	if task.StartedAt == nil {
		task.StartedAt = &now
	}
	task.Attempts = append(task.Attempts, models.Attempt{
		Number:    task.AttemptCount,
		StartedAt: now,
	})

	e.emitter.Emit(Event{
		Type:        EventTaskStarted,
		TaskID:      task.ID,
		Description: task.Description,
		OldStatus:   models.TaskStatusReady,
		NewStatus:   models.TaskStatusRunning,
		Attempt:     task.AttemptCount,
		Timestamp:   now,
	})

	workerCtx := context.WithoutCancel(ctx)
	handler := task.Handler
	payload := registry.Payload{
		TaskID:      task.ID,
		Description: task.Description,
		Approach:    task.Approach,
		Attempt:     task.AttemptCount,
	}
	go e.execute(workerCtx, task.ID, handler, payload, ch)
	return nil
}

// execute runs one attempt in a worker goroutine.
func (e *Engine) execute(ctx context.Context, taskID, handler string, payload registry.Payload, ch chan<- completion) {
	if e.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.taskTimeout)
		defer cancel()
	}

	name := handler
	if name == "" {
		selected, err := e.selector.Select(payload.Description, e.registry.Available())
		if err != nil {
			ch <- completion{taskID: taskID, err: err}
			return
		}
		name = selected
	}

	result, err := e.registry.Invoke(ctx, name, payload)
	ch <- completion{taskID: taskID, handler: name, result: result, err: err}
}

// handleCompletion applies a worker's outcome to the graph.
func (e *Engine) handleCompletion(ctx context.Context, c completion, waiting map[string]int, queue *[]string) error {
	task := e.graph.Task(c.taskID)
	now := e.now()
	if n := len(task.Attempts); n > 0 {
		task.Attempts[n-1].FinishedAt = now
		if c.err != nil {
			task.Attempts[n-1].Error = c.err.Error()
		}
	}
	// Record the selector's choice so later attempts reuse it and the
	// assignment survives in checkpoints and the report.
	if c.handler != "" {
		task.Handler = c.handler
	}

	if c.err == nil {
		return e.finishSucceeded(task, c.result, waiting, queue)
	}

	task.LastError = c.err.Error()

	// No handler means no amount of retrying will help.
	if errors.Is(c.err, registry.ErrNoHandlerFound) {
		return e.finishFailed(task, waiting)
	}
	if task.AttemptsExhausted() {
		return e.finishFailed(task, waiting)
	}
	return e.requeueWithRevision(ctx, task, c.err, queue)
}

func (e *Engine) finishSucceeded(task *models.Task, result *registry.Result, waiting map[string]int, queue *[]string) error {
	if err := e.graph.SetStatus(task.ID, models.TaskStatusSucceeded); err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	now := e.now()
	task.CompletedAt = &now
	if result != nil {
		task.Result = result.Output
	}
	e.checkpoint(task)
	e.emitter.Emit(Event{
		Type:        EventTaskSucceeded,
		TaskID:      task.ID,
		Description: task.Description,
		OldStatus:   models.TaskStatusRunning,
		NewStatus:   models.TaskStatusSucceeded,
		Attempt:     task.AttemptCount,
		Timestamp:   now,
	})

	// Release dependents whose last dependency just satisfied.
	for _, depID := range e.graph.Dependents(task.ID) {
		if remaining, ok := waiting[depID]; ok {
			if remaining <= 1 {
				delete(waiting, depID)
				if err := e.markReady(depID, queue); err != nil {
					return err
				}
			} else {
				waiting[depID] = remaining - 1
			}
		}
	}
	return nil
}

func (e *Engine) finishFailed(task *models.Task, waiting map[string]int) error {
	if err := e.graph.SetStatus(task.ID, models.TaskStatusFailed); err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	now := e.now()
	task.CompletedAt = &now
	e.checkpoint(task)
	e.emitter.Emit(Event{
		Type:        EventTaskFailed,
		TaskID:      task.ID,
		Description: task.Description,
		OldStatus:   models.TaskStatusRunning,
		NewStatus:   models.TaskStatusFailed,
		Attempt:     task.AttemptCount,
		Message:     task.LastError,
		Timestamp:   now,
	})

	// Everything downstream can never run. Skipped tasks still in the
	// ready queue are filtered out at dispatch.
	for _, depID := range e.graph.TransitiveDependents(task.ID) {
		dep := e.graph.Task(depID)
		if dep.Status.Terminal() {
			continue
		}
		delete(waiting, depID)
		if err := e.markSkipped(depID, fmt.Sprintf("dependency %s failed", task.ID)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) markSkipped(id, reason string) error {
	if err := e.graph.SetStatus(id, models.TaskStatusSkipped); err != nil {
		return fmt.Errorf("skip task: %w", err)
	}
	task := e.graph.Task(id)
	now := e.now()
	task.CompletedAt = &now
	task.LastError = reason
	e.checkpoint(task)
	e.emitter.Emit(Event{
		Type:        EventTaskSkipped,
		TaskID:      id,
		Description: task.Description,
		NewStatus:   models.TaskStatusSkipped,
		Message:     reason,
		Timestamp:   now,
	})
	return nil
}

// requeueWithRevision asks the reviser for a corrected approach and puts the
// task at the back of the ready queue. The run context flows into the
// reviser so a canceled run never sits in a revision call.
func (e *Engine) requeueWithRevision(ctx context.Context, task *models.Task, attemptErr error, queue *[]string) error {
	var priorStrategies []string
	for _, a := range task.Attempts {
		if a.Strategy != "" {
			priorStrategies = append(priorStrategies, a.Strategy)
		}
	}
	rev, err := e.reviser.Revise(ctx, correction.FailureContext{
		TaskID:          task.ID,
		Description:     task.Description,
		Approach:        task.Approach,
		Error:           attemptErr.Error(),
		Attempt:         task.AttemptCount,
		PriorStrategies: priorStrategies,
	})
	if err != nil {
		e.logf("[engine] revise %s: %v, retrying unchanged", task.ID, err)
		rev = correction.Revision{Strategy: "retry_original"}
	}
	if rev.Approach != "" {
		task.Approach = rev.Approach
	}
	if n := len(task.Attempts); n > 0 {
		task.Attempts[n-1].Strategy = rev.Strategy
	}

	if err := e.graph.SetStatus(task.ID, models.TaskStatusReady); err != nil {
		return fmt.Errorf("requeue task: %w", err)
	}
	e.emitter.Emit(Event{
		Type:        EventTaskRetrying,
		TaskID:      task.ID,
		Description: task.Description,
		OldStatus:   models.TaskStatusRunning,
		NewStatus:   models.TaskStatusReady,
		Attempt:     task.AttemptCount,
		Strategy:    rev.Strategy,
		Message:     attemptErr.Error(),
		Timestamp:   e.now(),
	})
	*queue = append(*queue, task.ID)
	return nil
}

// checkpoint persists a terminal status change. Checkpoint failures are
// logged, not fatal: losing a checkpoint costs a re-run of that task, while
// halting loses the whole run.
func (e *Engine) checkpoint(t *models.Task) {
	if e.store == nil {
		return
	}
	err := e.store.SaveTaskStatus(e.graph.ID(), state.TaskCheckpoint{
		ID:           t.ID,
		Handler:      t.Handler,
		Status:       t.Status,
		AttemptCount: t.AttemptCount,
		Result:       t.Result,
		LastError:    t.LastError,
	})
	if err != nil {
		e.logf("[engine] checkpoint %s: %v", t.ID, err)
	}
}

// RestoreGraph rebuilds a task graph from a checkpoint. Terminal statuses
// and attempt counts carry over; anything that was in flight restarts from
// pending.
func RestoreGraph(cp *state.Checkpoint) (*graph.TaskGraph, error) {
	tasks := make([]*models.Task, len(cp.Tasks))
	for i, t := range cp.Tasks {
		maxAttempts := t.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = models.DefaultMaxAttempts
		}
		tasks[i] = &models.Task{
			ID:          t.ID,
			Description: t.Description,
			Status:      models.TaskStatusPending,
			DependsOn:   t.DependsOn,
			Handler:     t.Handler,
			MaxAttempts: maxAttempts,
			CreatedAt:   cp.Run.StartedAt,
		}
	}

	g := graph.New(cp.Run.ID, cp.Run.Goal)
	if err := g.Build(tasks); err != nil {
		return nil, fmt.Errorf("rebuild graph: %w", err)
	}
	for _, t := range cp.Tasks {
		if !t.Status.Terminal() {
			continue
		}
		if err := g.RestoreStatus(t.ID, t.Status, t.AttemptCount); err != nil {
			return nil, fmt.Errorf("restore %s: %w", t.ID, err)
		}
		if t.Result != "" {
			g.Task(t.ID).Result = t.Result
		}
		if t.LastError != "" {
			g.Task(t.ID).LastError = t.LastError
		}
	}
	return g, nil
}
