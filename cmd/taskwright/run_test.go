package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mseverin/taskwright/internal/config"
	"github.com/mseverin/taskwright/internal/graph"
	"github.com/mseverin/taskwright/pkg/models"
)

func singleTaskGraph(t *testing.T, handler, approach string) *graph.TaskGraph {
	t.Helper()
	g := graph.New("run-"+t.Name(), "test goal")
	err := g.Build([]*models.Task{{
		ID:          "t1",
		Description: "test task",
		Approach:    approach,
		Handler:     handler,
		Status:      models.TaskStatusPending,
		MaxAttempts: 1,
		CreatedAt:   time.Now(),
	}})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return g
}

// A failed run surfaces as the sentinel error rather than exiting the
// process, so deferred cleanup in executeGraph still runs.
func TestExecuteGraphSignalsFailure(t *testing.T) {
	prev := runNoCheckpoint
	runNoCheckpoint = true
	t.Cleanup(func() { runNoCheckpoint = prev })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := config.Default()

	g := singleTaskGraph(t, "shell", "exit 7")
	if err := executeGraph(ctx, cancel, cfg, g, nil, false); !errors.Is(err, errRunFailed) {
		t.Errorf("expected errRunFailed, got %v", err)
	}
}

func TestExecuteGraphSucceeds(t *testing.T) {
	prev := runNoCheckpoint
	runNoCheckpoint = true
	t.Cleanup(func() { runNoCheckpoint = prev })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := config.Default()

	g := singleTaskGraph(t, "echo", "hello")
	if err := executeGraph(ctx, cancel, cfg, g, nil, false); err != nil {
		t.Errorf("expected clean exit, got %v", err)
	}
}
