package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/openfleet/openfleet/pkg/faults"
)

func TestStoreReturnsCopies(t *testing.T) {
	s := NewWorkflowStore()
	wf := &Workflow{ID: "WF-1", Type: "T", Status: StatusStarted, Steps: []Step{}, Input: map[string]any{"k": "v"}}
	if err := s.Create(wf); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// The caller's value must not alias the stored record.
	wf.Input["k"] = "changed"

	got, _ := s.Get("WF-1")
	got.Steps = append(got.Steps, Step{Stage: StageAnalysis})
	got.Input["k"] = "mutated"

	again, _ := s.Get("WF-1")
	if len(again.Steps) != 0 {
		t.Errorf("Expected stored steps untouched, got %d", len(again.Steps))
	}
	if again.Input["k"] != "v" {
		t.Errorf("Expected stored input untouched, got %v", again.Input["k"])
	}

	if err := s.Create(&Workflow{ID: "WF-1"}); !faults.IsInvalidInput(err) {
		t.Errorf("Expected duplicate id to be rejected, got %v", err)
	}
}

func TestStoreUpdateRejectsTerminal(t *testing.T) {
	s := NewWorkflowStore()
	_ = s.Create(&Workflow{ID: "WF-1", Status: StatusStarted})

	if _, err := s.Update("WF-1", "complete", func(wf *Workflow) { wf.Status = StatusCompleted }); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	called := false
	_, err := s.Update("WF-1", "append", func(*Workflow) { called = true })
	if !faults.IsAlreadyTerminal(err) {
		t.Errorf("Expected AlreadyTerminal, got %v", err)
	}
	if called {
		t.Error("Update must not run on terminal workflows")
	}

	if _, err := s.Update("WF-x", "append", func(*Workflow) {}); !faults.IsNotFound(err) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestStoreConcurrentAppends(t *testing.T) {
	s := NewWorkflowStore()
	const workflows, steps = 8, 50
	for i := 0; i < workflows; i++ {
		_ = s.Create(&Workflow{ID: fmt.Sprintf("WF-%d", i), Status: StatusStarted})
	}

	var wg sync.WaitGroup
	for i := 0; i < workflows; i++ {
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				for k := 0; k < steps; k++ {
					_, _ = s.Update(id, "append", func(wf *Workflow) {
						wf.Steps = append(wf.Steps, Step{Stage: StageAnalysis})
					})
				}
			}(fmt.Sprintf("WF-%d", i))
		}
	}
	wg.Wait()

	for _, wf := range s.List() {
		if len(wf.Steps) != 4*steps {
			t.Errorf("Workflow %s: expected %d steps, got %d", wf.ID, 4*steps, len(wf.Steps))
		}
	}
}

func TestStoreListOrder(t *testing.T) {
	s := NewWorkflowStore()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = s.Create(&Workflow{ID: "WF-b", Status: StatusStarted, StartedAt: base})
	_ = s.Create(&Workflow{ID: "WF-a", Status: StatusFailed, StartedAt: base})
	_ = s.Create(&Workflow{ID: "WF-c", Status: StatusStarted, StartedAt: base.Add(-time.Minute)})

	list := s.List()
	if len(list) != 3 || list[0].ID != "WF-c" || list[1].ID != "WF-a" || list[2].ID != "WF-b" {
		t.Errorf("Unexpected order: %v, %v, %v", list[0].ID, list[1].ID, list[2].ID)
	}

	active := s.ListByStatus(StatusStarted)
	if len(active) != 2 {
		t.Errorf("Expected 2 started workflows, got %d", len(active))
	}
}

func TestWorkflowStatus(t *testing.T) {
	tests := []struct {
		status   WorkflowStatus
		terminal bool
		valid    bool
	}{
		{StatusStarted, false, true},
		{StatusCompleted, true, true},
		{StatusFailed, true, true},
		{WorkflowStatus("paused"), false, false},
	}

	for _, tt := range tests {
		if tt.status.IsTerminal() != tt.terminal {
			t.Errorf("%s: expected terminal=%t", tt.status, tt.terminal)
		}
		if err := tt.status.Validate(); (err == nil) != tt.valid {
			t.Errorf("%s: expected valid=%t, got %v", tt.status, tt.valid, err)
		}
	}

	var s WorkflowStatus
	if err := s.UnmarshalJSON([]byte(`"completed"`)); err != nil || s != StatusCompleted {
		t.Errorf("Expected completed, got %s (%v)", s, err)
	}
	if err := s.UnmarshalJSON([]byte(`"paused"`)); err == nil {
		t.Error("Expected error for unknown status")
	}
}

func TestStagePosition(t *testing.T) {
	if StageAnalysis.Position() != 1 || StageManufacturingInsights.Position() != 6 {
		t.Error("Unexpected stage positions")
	}
	if Stage("OTHER").Validate() == nil {
		t.Error("Expected unknown stage to be invalid")
	}
	if StageFeedback.Title() != "Feedback Collection" {
		t.Errorf("Unexpected title %s", StageFeedback.Title())
	}
}
