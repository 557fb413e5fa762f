package engine_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/engine"
	"github.com/openfleet/openfleet/pkg/faults"
)

// Example_workflowLifecycle drives a workflow by hand through the orchestrator's
// lifecycle operations.
func Example_workflowLifecycle() {
	ctx := context.Background()
	orch := engine.NewOrchestrator(nil, nil, zerolog.Nop())

	id, _ := orch.StartWorkflow(ctx, "INSPECTION", map[string]any{"vehicle_id": "VH-001"})
	_ = orch.RecordStep(ctx, id, engine.StageAnalysis, "sensors nominal")
	_ = orch.RecordSkipped(ctx, id, engine.StageDiagnosis, engine.ReasonGoodCondition)

	wf, _ := orch.CompleteWorkflow(ctx, id, "healthy")
	fmt.Println(wf.Status, len(wf.Steps))

	for _, step := range wf.Steps {
		if step.Skipped {
			fmt.Printf("%s skipped: %s\n", step.Stage, step.Reason)
		}
	}

	err := orch.RecordStep(ctx, id, engine.StageScheduling, nil)
	fmt.Println(faults.IsAlreadyTerminal(err))

	// Output:
	// completed 2
	// DIAGNOSIS skipped: Vehicle in good condition
	// true
}

// Example_failedWorkflow shows how a failure is recorded.
func Example_failedWorkflow() {
	ctx := context.Background()
	orch := engine.NewOrchestrator(nil, nil, zerolog.Nop())

	id, _ := orch.StartWorkflow(ctx, "INSPECTION", nil)
	wf, _ := orch.FailWorkflow(ctx, id, errors.New("sensor feed unavailable"))

	fmt.Println(wf.Status)
	fmt.Println(wf.Result)
	fmt.Println(len(orch.ListActiveWorkflows()))

	// Output:
	// failed
	// sensor feed unavailable
	// 0
}

// Example_summary renders the outcome text of a run that stopped after analysis.
func Example_summary() {
	res := &engine.StageResults{
		Analysis: &engine.AnalysisResult{VehicleID: "VH-001"},
	}
	fmt.Println(engine.Summarize(res))

	// Output:
	// WORKFLOW COMPLETED SUCCESSFULLY
	//
	// Vehicle Health: GOOD - No maintenance required
}
