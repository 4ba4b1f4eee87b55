package state

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mseverin/taskwright/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedRun(t *testing.T, db *DB) Run {
	t.Helper()
	now := time.Now()
	run := Run{ID: "run-1", Goal: "ship it", Status: RunActive, StartedAt: now, UpdatedAt: now}
	tasks := []TaskCheckpoint{
		{ID: "t1", Position: 0, Description: "build", Handler: "shell", Status: models.TaskStatusPending, MaxAttempts: 5, UpdatedAt: now},
		{ID: "t2", Position: 1, Description: "test", DependsOn: []string{"t1"}, Status: models.TaskStatusPending, UpdatedAt: now},
		{ID: "t3", Position: 2, Description: "release", DependsOn: []string{"t1", "t2"}, Status: models.TaskStatusPending, UpdatedAt: now},
	}
	if err := db.CreateRun(run, tasks); err != nil {
		t.Fatalf("create run: %v", err)
	}
	return run
}

func TestCheckpointRoundTrip(t *testing.T) {
	db := openTestDB(t)
	run := seedRun(t, db)

	cp, err := db.LoadCheckpoint(run.ID)
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	if cp.Run.Goal != "ship it" {
		t.Errorf("unexpected goal %q", cp.Run.Goal)
	}
	if len(cp.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(cp.Tasks))
	}
	// Position order is load order.
	if cp.Tasks[0].ID != "t1" || cp.Tasks[2].ID != "t3" {
		t.Errorf("tasks out of order: %v, %v", cp.Tasks[0].ID, cp.Tasks[2].ID)
	}
	if len(cp.Tasks[2].DependsOn) != 2 {
		t.Errorf("expected 2 deps on t3, got %v", cp.Tasks[2].DependsOn)
	}
	// Handler assignment and attempt budget survive the round trip.
	if cp.Tasks[0].Handler != "shell" || cp.Tasks[0].MaxAttempts != 5 {
		t.Errorf("t1 lost execution fields: %+v", cp.Tasks[0])
	}
}

func TestSaveTaskStatus(t *testing.T) {
	db := openTestDB(t)
	run := seedRun(t, db)

	err := db.SaveTaskStatus(run.ID, TaskCheckpoint{
		ID:           "t1",
		Handler:      "shell",
		Status:       models.TaskStatusSucceeded,
		AttemptCount: 2,
		Result:       "built ok",
	})
	if err != nil {
		t.Fatalf("save task status: %v", err)
	}

	cp, err := db.LoadCheckpoint(run.ID)
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	got := cp.Tasks[0]
	if got.Status != models.TaskStatusSucceeded || got.AttemptCount != 2 || got.Result != "built ok" {
		t.Errorf("unexpected task state: %+v", got)
	}
	if got.Handler != "shell" {
		t.Errorf("handler not persisted, got %q", got.Handler)
	}
	// Untouched tasks keep their state.
	if cp.Tasks[1].Status != models.TaskStatusPending {
		t.Errorf("t2 should still be pending, got %s", cp.Tasks[1].Status)
	}
}

func TestSaveTaskStatusUnknownTask(t *testing.T) {
	db := openTestDB(t)
	run := seedRun(t, db)

	err := db.SaveTaskStatus(run.ID, TaskCheckpoint{ID: "ghost", Status: models.TaskStatusFailed})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestUpdateRunStatus(t *testing.T) {
	db := openTestDB(t)
	run := seedRun(t, db)

	if err := db.UpdateRunStatus(run.ID, RunCompleted); err != nil {
		t.Fatalf("update run status: %v", err)
	}
	cp, err := db.LoadCheckpoint(run.ID)
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	if cp.Run.Status != RunCompleted {
		t.Errorf("expected completed, got %s", cp.Run.Status)
	}

	if err := db.UpdateRunStatus("ghost", RunFailed); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestLoadCheckpointUnknownRun(t *testing.T) {
	db := openTestDB(t)
	_, err := db.LoadCheckpoint("ghost")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestLatestRun(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.LatestRun(); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound on empty db, got %v", err)
	}

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	if err := db.CreateRun(Run{ID: "old", Goal: "g1", Status: RunCompleted, StartedAt: older, UpdatedAt: older}, nil); err != nil {
		t.Fatalf("create old run: %v", err)
	}
	if err := db.CreateRun(Run{ID: "new", Goal: "g2", Status: RunActive, StartedAt: newer, UpdatedAt: newer}, nil); err != nil {
		t.Fatalf("create new run: %v", err)
	}

	latest, err := db.LatestRun()
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	if latest.ID != "new" {
		t.Errorf("expected newest run, got %s", latest.ID)
	}
}

func TestExportJSON(t *testing.T) {
	db := openTestDB(t)
	run := seedRun(t, db)

	data, err := db.ExportJSON(run.ID)
	if err != nil {
		t.Fatalf("export json: %v", err)
	}
	for _, want := range []string{`"goal": "ship it"`, `"id": "t2"`, `"depends_on"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("export missing %q", want)
		}
	}
}

func TestPurgeOldRuns(t *testing.T) {
	db := openTestDB(t)

	old := time.Now().Add(-48 * time.Hour)
	if err := db.CreateRun(Run{ID: "stale", Goal: "g", Status: RunCompleted, StartedAt: old, UpdatedAt: old}, nil); err != nil {
		t.Fatalf("create stale run: %v", err)
	}
	seedRun(t, db)

	n, err := db.PurgeOldRuns(24 * time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged, got %d", n)
	}
	if _, err := db.LoadCheckpoint("run-1"); err != nil {
		t.Errorf("recent run should survive purge: %v", err)
	}
}
