package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mseverin/taskwright/internal/engine"
	"github.com/mseverin/taskwright/pkg/models"
)

func TestPlainRendererConsume(t *testing.T) {
	events := make(chan engine.Event, 8)
	events <- engine.Event{Type: engine.EventRunStarted, Message: "ship it"}
	events <- engine.Event{Type: engine.EventTaskStarted, Description: "build", Attempt: 1}
	events <- engine.Event{Type: engine.EventTaskSucceeded, Description: "build"}
	events <- engine.Event{Type: engine.EventTaskRetrying, Description: "test", Message: "exit 1", Strategy: "retry_with_context"}
	events <- engine.Event{Type: engine.EventTaskFailed, Description: "test", Message: "exit 1"}
	events <- engine.Event{Type: engine.EventTaskSkipped, Description: "deploy", Message: "dependency failed"}
	events <- engine.Event{Type: engine.EventRunDone, Message: "1 succeeded, 1 failed, 1 skipped"}
	close(events)

	var buf bytes.Buffer
	NewPlainRenderer(&buf).Consume(events)

	out := buf.String()
	for _, want := range []string{
		"ship it",
		"ok    build",
		"retry test",
		"retry_with_context",
		"fail  test",
		"skip  deploy",
		"1 succeeded, 1 failed, 1 skipped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderReport(t *testing.T) {
	r := &engine.Report{
		Goal:      "ship it",
		Succeeded: 1,
		Failed:    1,
		Skipped:   1,
		Tasks: []engine.TaskReport{
			{ID: "a", Description: "build", Status: models.TaskStatusSucceeded},
			{ID: "b", Description: "test", Status: models.TaskStatusFailed, Error: "exit 1",
				Attempts: []models.Attempt{{Number: 1}, {Number: 2, Strategy: "retry_with_context"}}},
			{ID: "c", Description: "deploy", Status: models.TaskStatusSkipped},
		},
	}

	out := RenderReport(r)
	for _, want := range []string{"ship it", "build", "exit 1", "retry_with_context", "1 succeeded, 1 failed, 1 skipped"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
}
