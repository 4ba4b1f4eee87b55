package decompose

import (
	"errors"
	"strings"
	"testing"

	"github.com/mseverin/taskwright/pkg/models"
)

func TestDecomposeEmptyGoal(t *testing.T) {
	specs := []models.RawTaskSpec{{Description: "do something"}}

	for _, goal := range []string{"", "   ", "\t\n"} {
		g, err := Decompose(goal, specs, Options{})
		if g != nil {
			t.Errorf("goal %q: expected no graph", goal)
		}
		var decompErr *Error
		if !errors.As(err, &decompErr) {
			t.Fatalf("goal %q: expected *Error, got %v", goal, err)
		}
		if decompErr.Reason != ReasonEmptyGoal {
			t.Errorf("goal %q: expected ReasonEmptyGoal, got %s", goal, decompErr.Reason)
		}
	}
}

func TestDecomposeEmptyPlan(t *testing.T) {
	_, err := Decompose("build the thing", nil, Options{})
	var decompErr *Error
	if !errors.As(err, &decompErr) || decompErr.Reason != ReasonEmptyPlan {
		t.Fatalf("expected ReasonEmptyPlan, got %v", err)
	}
}

func TestDecomposeSingleTask(t *testing.T) {
	g, err := Decompose("one thing", []models.RawTaskSpec{{Description: "do it"}}, Options{})
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if g.Size() != 1 {
		t.Errorf("expected 1 task, got %d", g.Size())
	}
	task := g.Tasks()[0]
	if task.ID == "" {
		t.Error("expected assigned id")
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("expected pending, got %s", task.Status)
	}
	if task.MaxAttempts != models.DefaultMaxAttempts {
		t.Errorf("expected default max attempts, got %d", task.MaxAttempts)
	}
}

func TestDecomposeResolvesIndexReferences(t *testing.T) {
	specs := []models.RawTaskSpec{
		{Description: "set up schema"},
		{Description: "write queries", DependsOn: []string{"0"}},
		{Description: "wire endpoints", DependsOn: []string{"1"}},
	}
	g, err := Decompose("build api", specs, Options{})
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	tasks := g.Tasks()
	if len(tasks[1].DependsOn) != 1 || tasks[1].DependsOn[0] != tasks[0].ID {
		t.Errorf("expected task 1 to depend on task 0's id, got %v", tasks[1].DependsOn)
	}
	if len(tasks[2].DependsOn) != 1 || tasks[2].DependsOn[0] != tasks[1].ID {
		t.Errorf("expected task 2 to depend on task 1's id, got %v", tasks[2].DependsOn)
	}
}

func TestDecomposeResolvesDescriptionReferences(t *testing.T) {
	specs := []models.RawTaskSpec{
		{Description: "set up schema"},
		{Description: "write queries", DependsOn: []string{"set up schema"}},
	}
	g, err := Decompose("build api", specs, Options{})
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	tasks := g.Tasks()
	if len(tasks[1].DependsOn) != 1 || tasks[1].DependsOn[0] != tasks[0].ID {
		t.Errorf("expected description reference to resolve, got %v", tasks[1].DependsOn)
	}
}

func TestDecomposeUnresolvedDependencyNamesTask(t *testing.T) {
	specs := []models.RawTaskSpec{
		{Description: "a"},
		{Description: "b"},
		{Description: "c", DependsOn: []string{"5"}},
	}
	g, err := Decompose("goal", specs, Options{})
	if g != nil {
		t.Error("expected no graph on unresolved dependency")
	}

	var decompErr *Error
	if !errors.As(err, &decompErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if decompErr.Reason != ReasonUnresolvedDependency {
		t.Errorf("expected ReasonUnresolvedDependency, got %s", decompErr.Reason)
	}
	if decompErr.TaskIndex != 2 {
		t.Errorf("expected offending task index 2, got %d", decompErr.TaskIndex)
	}
}

func TestDecomposeSelfReferenceIsUnresolved(t *testing.T) {
	specs := []models.RawTaskSpec{{Description: "a", DependsOn: []string{"0"}}}
	_, err := Decompose("goal", specs, Options{})
	var decompErr *Error
	if !errors.As(err, &decompErr) || decompErr.Reason != ReasonUnresolvedDependency {
		t.Fatalf("expected unresolved dependency for self reference, got %v", err)
	}
}

func TestDecomposeCycleIncludesPath(t *testing.T) {
	specs := []models.RawTaskSpec{
		{Description: "a", DependsOn: []string{"2"}},
		{Description: "b", DependsOn: []string{"0"}},
		{Description: "c", DependsOn: []string{"1"}},
	}
	g, err := Decompose("goal", specs, Options{})
	if g != nil {
		t.Error("expected no graph on cyclic dependencies")
	}

	var decompErr *Error
	if !errors.As(err, &decompErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if decompErr.Reason != ReasonCyclicDependency {
		t.Errorf("expected ReasonCyclicDependency, got %s", decompErr.Reason)
	}
	if len(decompErr.Cycle) == 0 {
		t.Error("expected full cycle path in error")
	}
}

func TestDecomposeNearDuplicateWarning(t *testing.T) {
	specs := []models.RawTaskSpec{
		{Description: "write unit tests for the parser module"},
		{Description: "write unit tests for the parser"},
		{Description: "deploy the service to staging"},
	}
	g, err := Decompose("goal", specs, Options{})
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	warnings := g.Warnings()
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
	if !strings.Contains(warnings[0], "near-duplicate") {
		t.Errorf("unexpected warning text: %s", warnings[0])
	}
	// Duplicates are never merged.
	if g.Size() != 3 {
		t.Errorf("expected all 3 tasks kept, got %d", g.Size())
	}
}

func TestDecomposeStableIDsUnique(t *testing.T) {
	specs := []models.RawTaskSpec{
		{Description: "same"},
		{Description: "same"},
	}
	g, err := Decompose("goal", specs, Options{DuplicateThreshold: 1.1})
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	tasks := g.Tasks()
	if tasks[0].ID == tasks[1].ID {
		t.Error("expected unique ids for identical descriptions")
	}
}
