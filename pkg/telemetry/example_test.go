package telemetry_test

import (
	"context"
	"fmt"

	"github.com/openfleet/openfleet/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = false

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	logger := telemetry.FromContext(ctx).Component("cli")
	logger.Info().Str("version", cfg.ServiceVersion).Msg("Application started")

	// Output varies, no output specified
}

// Example_eventSubscription demonstrates filtering workflow events.
func Example_eventSubscription() {
	tel := telemetry.NewNop()

	tel.Events.Subscribe(func(e telemetry.Event) {
		fmt.Println(e.Type, e.WorkflowID)
	}, telemetry.FilterByType(telemetry.EventTypeWorkflowStarted, telemetry.EventTypeWorkflowFailed))

	_ = tel.Events.PublishWorkflowStarted("WF-1", "predictive_maintenance", "VEH001")
	_ = tel.Events.PublishStageSkipped("WF-1", "scheduling", "Customer declined")
	_ = tel.Events.PublishWorkflowFailed("WF-1", "scheduling worker unavailable")

	// Output:
	// workflow.started WF-1
	// workflow.failed WF-1
}

// Example_workflowContext demonstrates propagating a workflow id into a stage span.
func Example_workflowContext() {
	tel := telemetry.NewNop()
	ctx := telemetry.WithWorkflowID(context.Background(), "WF-42")

	ctx, span := tel.Tracer.StartStageSpan(ctx, "WF-42", "analysis")
	defer span.End()

	fmt.Println(telemetry.WorkflowIDFromContext(ctx))
	// Output: WF-42
}
