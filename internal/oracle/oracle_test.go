package oracle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseProposal(t *testing.T) {
	response := `Here is the breakdown you asked for:

[
  {"description": "set up the database", "depends_on": []},
  {"description": "write the migration", "depends_on": ["0"]},
  {"description": "run the migration", "depends_on": ["write the migration"]}
]

Let me know if you need anything else.`

	specs, err := ParseProposal(response)
	if err != nil {
		t.Fatalf("ParseProposal failed: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("expected 3 specs, got %d", len(specs))
	}
	if specs[1].DependsOn[0] != "0" {
		t.Errorf("expected index ref preserved, got %q", specs[1].DependsOn[0])
	}
	if specs[2].DependsOn[0] != "write the migration" {
		t.Errorf("expected description ref preserved, got %q", specs[2].DependsOn[0])
	}
}

func TestParseProposalNoArray(t *testing.T) {
	_, err := ParseProposal("I could not produce a plan for that goal.")
	if err == nil {
		t.Fatal("expected error for response without JSON array")
	}
	if !strings.Contains(err.Error(), "no JSON array") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseProposalEmptyList(t *testing.T) {
	_, err := ParseProposal("[]")
	if err == nil || !strings.Contains(err.Error(), "empty task list") {
		t.Errorf("expected empty-list error, got %v", err)
	}
}

func TestPlanFileOracle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	plan := `goal: ship the release
tasks:
  - description: tag the commit
  - description: build artifacts
    depends_on: ["0"]
  - description: publish artifacts
    depends_on: ["build artifacts"]
`
	if err := os.WriteFile(path, []byte(plan), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	specs, err := NewPlanFileOracle(path).Propose(context.Background(), "ship the release")
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("expected 3 specs, got %d", len(specs))
	}
	if specs[0].Description != "tag the commit" {
		t.Errorf("unexpected first task: %q", specs[0].Description)
	}
	if len(specs[2].DependsOn) != 1 || specs[2].DependsOn[0] != "build artifacts" {
		t.Errorf("unexpected deps on third task: %v", specs[2].DependsOn)
	}
}

func TestPlanFileOracleGoalMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	plan := "goal: old goal\ntasks:\n  - description: a\n"
	if err := os.WriteFile(path, []byte(plan), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	_, err := NewPlanFileOracle(path).Propose(context.Background(), "new goal")
	if err == nil || !strings.Contains(err.Error(), "is for goal") {
		t.Errorf("expected goal mismatch error, got %v", err)
	}
}

func TestPlanFileOracleMissingFile(t *testing.T) {
	_, err := NewPlanFileOracle("/nonexistent/plan.yaml").Propose(context.Background(), "g")
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Errorf("expected ErrOracleUnavailable, got %v", err)
	}
}
