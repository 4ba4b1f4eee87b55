package engine

import (
	"fmt"
	"time"

	"github.com/mseverin/taskwright/pkg/models"
)

// TaskReport is the final record of one task.
type TaskReport struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Handler     string            `json:"handler,omitempty"`
	Status      models.TaskStatus `json:"status"`
	Attempts    []models.Attempt  `json:"attempts,omitempty"`
	Result      string            `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Report summarizes a finished run, including the full attempt history of
// every task.
type Report struct {
	RunID     string        `json:"run_id"`
	Goal      string        `json:"goal"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Pending   int           `json:"pending,omitempty"`
	Canceled  bool          `json:"canceled,omitempty"`
	Duration  time.Duration `json:"duration"`
	Warnings  []string      `json:"warnings,omitempty"`
	Tasks     []TaskReport  `json:"tasks"`
}

// buildReport snapshots the graph into a report.
func (e *Engine) buildReport(start time.Time, canceled bool) *Report {
	r := &Report{
		RunID:    e.graph.ID(),
		Goal:     e.graph.Goal(),
		Canceled: canceled,
		Duration: e.now().Sub(start),
		Warnings: e.graph.Warnings(),
	}

	for _, t := range e.graph.Tasks() {
		switch t.Status {
		case models.TaskStatusSucceeded:
			r.Succeeded++
		case models.TaskStatusFailed:
			r.Failed++
		case models.TaskStatusSkipped:
			r.Skipped++
		default:
			r.Pending++
		}
		r.Tasks = append(r.Tasks, TaskReport{
			ID:          t.ID,
			Description: t.Description,
			Handler:     t.Handler,
			Status:      t.Status,
			Attempts:    t.Attempts,
			Result:      t.Result,
			Error:       t.LastError,
		})
	}
	return r
}

// Summary returns a one-line description of the run outcome.
func (r *Report) Summary() string {
	s := fmt.Sprintf("%d succeeded, %d failed, %d skipped", r.Succeeded, r.Failed, r.Skipped)
	if r.Pending > 0 {
		s += fmt.Sprintf(", %d not run", r.Pending)
	}
	if r.Canceled {
		s += " (canceled)"
	}
	return s
}
