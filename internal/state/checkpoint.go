package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mseverin/taskwright/pkg/models"
)

// RunStatus is the lifecycle status of a recorded run.
type RunStatus string

const (
	RunActive    RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCanceled  RunStatus = "canceled"
	RunFailed    RunStatus = "failed"
)

// Run is a persisted execution of a goal.
type Run struct {
	ID        string    `json:"id"`
	Goal      string    `json:"goal"`
	Status    RunStatus `json:"status"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskCheckpoint is the persisted state of one task within a run.
type TaskCheckpoint struct {
	ID           string            `json:"id"`
	Position     int               `json:"position"`
	Description  string            `json:"description"`
	DependsOn    []string          `json:"depends_on,omitempty"`
	Handler      string            `json:"handler,omitempty"`
	Status       models.TaskStatus `json:"status"`
	AttemptCount int               `json:"attempt_count"`
	MaxAttempts  int               `json:"max_attempts,omitempty"`
	Result       string            `json:"result,omitempty"`
	LastError    string            `json:"last_error,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Checkpoint is the full persisted state of a run, sufficient to resume it.
type Checkpoint struct {
	Run   Run              `json:"run"`
	Tasks []TaskCheckpoint `json:"tasks"`
}

// ErrRunNotFound indicates no run exists for the requested ID.
var ErrRunNotFound = fmt.Errorf("run not found")

// CreateRun records a new run and its initial task rows in one transaction.
func (db *DB) CreateRun(run Run, tasks []TaskCheckpoint) error {
	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO runs (id, goal, status, started_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, run.ID, run.Goal, string(run.Status), formatTime(run.StartedAt), formatTime(run.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for _, t := range tasks {
			deps, err := json.Marshal(t.DependsOn)
			if err != nil {
				return fmt.Errorf("marshal depends_on: %w", err)
			}
			_, err = tx.Exec(`
				INSERT INTO run_tasks (run_id, task_id, position, description, depends_on,
					handler, status, attempt_count, max_attempts, result, last_error, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, run.ID, t.ID, t.Position, t.Description, string(deps), t.Handler,
				string(t.Status), t.AttemptCount, t.MaxAttempts, t.Result, t.LastError, formatTime(t.UpdatedAt))
			if err != nil {
				return fmt.Errorf("insert task %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// UpdateRunStatus sets the run's lifecycle status.
func (db *DB) UpdateRunStatus(runID string, status RunStatus) error {
	result, err := db.Exec(`
		UPDATE runs SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), formatTime(time.Now()), runID)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// SaveTaskStatus persists one task's current state. The engine calls this
// after every terminal status change so a crash loses at most in-flight work.
func (db *DB) SaveTaskStatus(runID string, t TaskCheckpoint) error {
	result, err := db.Exec(`
		UPDATE run_tasks
		SET handler = ?, status = ?, attempt_count = ?, result = ?, last_error = ?, updated_at = ?
		WHERE run_id = ? AND task_id = ?
	`, t.Handler, string(t.Status), t.AttemptCount, t.Result, t.LastError, formatTime(time.Now()), runID, t.ID)
	if err != nil {
		return fmt.Errorf("save task status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s not found in run %s", t.ID, runID)
	}
	return nil
}

// LoadCheckpoint returns the full persisted state of a run.
func (db *DB) LoadCheckpoint(runID string) (*Checkpoint, error) {
	var cp Checkpoint
	var started, updated string
	var status string

	row := db.QueryRow(`
		SELECT id, goal, status, started_at, updated_at FROM runs WHERE id = ?
	`, runID)
	if err := row.Scan(&cp.Run.ID, &cp.Run.Goal, &status, &started, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("load run: %w", err)
	}
	cp.Run.Status = RunStatus(status)
	cp.Run.StartedAt, _ = parseTime(started)
	cp.Run.UpdatedAt, _ = parseTime(updated)

	rows, err := db.Query(`
		SELECT task_id, position, description, depends_on, handler, status,
			attempt_count, max_attempts, result, last_error, updated_at
		FROM run_tasks WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t TaskCheckpoint
		var deps sql.NullString
		var handler, result, lastError sql.NullString
		var taskStatus, taskUpdated string
		if err := rows.Scan(&t.ID, &t.Position, &t.Description, &deps, &handler, &taskStatus,
			&t.AttemptCount, &t.MaxAttempts, &result, &lastError, &taskUpdated); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if deps.Valid && deps.String != "" {
			if err := json.Unmarshal([]byte(deps.String), &t.DependsOn); err != nil {
				return nil, fmt.Errorf("unmarshal depends_on for %s: %w", t.ID, err)
			}
		}
		t.Handler = handler.String
		t.Status = models.TaskStatus(taskStatus)
		t.Result = result.String
		t.LastError = lastError.String
		t.UpdatedAt, _ = parseTime(taskUpdated)
		cp.Tasks = append(cp.Tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	return &cp, nil
}

// LatestRun returns the most recently started run, or ErrRunNotFound when the
// database has none.
func (db *DB) LatestRun() (*Run, error) {
	var run Run
	var status, started, updated string

	row := db.QueryRow(`
		SELECT id, goal, status, started_at, updated_at
		FROM runs ORDER BY started_at DESC, id DESC LIMIT 1
	`)
	if err := row.Scan(&run.ID, &run.Goal, &status, &started, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("load latest run: %w", err)
	}
	run.Status = RunStatus(status)
	run.StartedAt, _ = parseTime(started)
	run.UpdatedAt, _ = parseTime(updated)
	return &run, nil
}

// ListRuns returns all runs, newest first.
func (db *DB) ListRuns() ([]Run, error) {
	rows, err := db.Query(`
		SELECT id, goal, status, started_at, updated_at
		FROM runs ORDER BY started_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var status, started, updated string
		if err := rows.Scan(&run.ID, &run.Goal, &status, &started, &updated); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = RunStatus(status)
		run.StartedAt, _ = parseTime(started)
		run.UpdatedAt, _ = parseTime(updated)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ExportJSON renders a run's checkpoint as indented JSON for inspection and
// the status command's --json flag.
func (db *DB) ExportJSON(runID string) ([]byte, error) {
	cp, err := db.LoadCheckpoint(runID)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(cp, "", "  ")
}
