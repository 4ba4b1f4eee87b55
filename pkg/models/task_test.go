package models

import "testing"

func TestTaskStatusValid(t *testing.T) {
	valid := []TaskStatus{
		TaskStatusPending, TaskStatusReady, TaskStatusRunning,
		TaskStatusSucceeded, TaskStatusFailed, TaskStatusSkipped,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}

	if TaskStatus("done").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	cases := map[TaskStatus]bool{
		TaskStatusPending:   false,
		TaskStatusReady:     false,
		TaskStatusRunning:   false,
		TaskStatusSucceeded: true,
		TaskStatusFailed:    true,
		TaskStatusSkipped:   true,
	}
	for s, want := range cases {
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}

func TestTaskStatusCanTransition(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskStatusPending, TaskStatusReady, true},
		{TaskStatusPending, TaskStatusSkipped, true},
		{TaskStatusPending, TaskStatusRunning, false},
		{TaskStatusReady, TaskStatusRunning, true},
		{TaskStatusReady, TaskStatusSkipped, true},
		{TaskStatusReady, TaskStatusSucceeded, false},
		{TaskStatusRunning, TaskStatusSucceeded, true},
		{TaskStatusRunning, TaskStatusFailed, true},
		// Retryable failure goes back through ready.
		{TaskStatusRunning, TaskStatusReady, true},
		{TaskStatusSucceeded, TaskStatusRunning, false},
		{TaskStatusFailed, TaskStatusReady, false},
		{TaskStatusSkipped, TaskStatusReady, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestAttemptsExhausted(t *testing.T) {
	task := &Task{MaxAttempts: 3}
	for i := 0; i < 2; i++ {
		task.AttemptCount++
		if task.AttemptsExhausted() {
			t.Fatalf("attempts exhausted after %d of 3", task.AttemptCount)
		}
	}
	task.AttemptCount++
	if !task.AttemptsExhausted() {
		t.Error("expected attempts exhausted at 3 of 3")
	}
}

func TestAttemptsExhaustedDefaultBudget(t *testing.T) {
	task := &Task{AttemptCount: DefaultMaxAttempts}
	if !task.AttemptsExhausted() {
		t.Errorf("expected default budget of %d to be exhausted", DefaultMaxAttempts)
	}
}
