// Package telemetry provides observability instrumentation for OpenFleet.
//
// It combines structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and an in-process event publisher
// into one Telemetry value that the orchestrator, the behavior monitor and
// the CLI share.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// Tests and library callers that do not care about observability use
// NewNop, which discards logs and metrics and delivers events synchronously.
//
// # Logging
//
//	logger := telemetry.ForWorkflow(tel.Logger.Component("orchestrator"), id, vehicleID)
//	logger.Info().Str("stage", "diagnosis").Msg("Stage completed")
//
// # Tracing
//
// Each workflow gets a root span (StartWorkflowSpan) with one child span per
// pipeline stage (StartStageSpan). Exporters: otlp (gRPC), stdout, none.
//
// # Metrics
//
// Metrics are registered on a private registry and exposed with Handler or
// StartMetricsServer. All recording methods are safe on a disabled or nil
// Metrics value.
//
//   - openfleet_workflows_started_total{type}
//   - openfleet_workflows_finished_total{status}
//   - openfleet_workflow_duration_seconds{status}
//   - openfleet_stage_executions_total{stage,outcome}
//   - openfleet_stage_duration_seconds{stage}
//   - openfleet_worker_errors_total{worker}
//   - openfleet_component_predictions_total{component,severity}
//   - openfleet_activity_events_total{actor}
//   - openfleet_anomalies_total{type,severity}
//   - openfleet_active_workflows
//
// # Events
//
// The EventPublisher carries workflow lifecycle, stage, anomaly and critical
// alert events to subscribers, which may filter by type, level or workflow.
package telemetry
