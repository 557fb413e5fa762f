package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/activity"
	"github.com/openfleet/openfleet/pkg/faults"
	"github.com/openfleet/openfleet/pkg/monitor"
	"github.com/openfleet/openfleet/pkg/policy"
	"github.com/openfleet/openfleet/pkg/telemetry"
)

// Orchestrator sequences the maintenance pipeline and owns the workflow records.
// Every state change is recorded as an activity event under the orchestrator identity.
type Orchestrator struct {
	workers  *WorkerRegistry
	store    *WorkflowStore
	recorder ActivityRecorder
	archiver Archiver
	tel      *telemetry.Telemetry
	identity string
	clock    func() time.Time
	logger   zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithArchiver writes terminal workflows to a. Archive errors are logged, not returned.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithTelemetry enables tracing, metrics and lifecycle events.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tel = t
		}
	}
}

// WithIdentity sets the actor name the orchestrator records its activity under.
func WithIdentity(actor string) Option {
	return func(o *Orchestrator) {
		if actor != "" {
			o.identity = actor
		}
	}
}

// WithStore shares an existing workflow store.
func WithStore(s *WorkflowStore) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.store = s
		}
	}
}

// WithClock overrides the timestamp source for workflows and steps.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// NewOrchestrator creates an orchestrator dispatching to the workers in registry.
// A nil recorder keeps an unaudited activity log.
func NewOrchestrator(workers *WorkerRegistry, recorder ActivityRecorder, logger zerolog.Logger, opts ...Option) *Orchestrator {
	if workers == nil {
		workers = NewWorkerRegistry()
	}
	if recorder == nil {
		recorder = activity.NewRecorder(activity.DefaultCapacity, nil, logger)
	}

	o := &Orchestrator{
		workers:  workers,
		store:    NewWorkflowStore(),
		recorder: recorder,
		tel:      telemetry.NewNop(),
		identity: policy.ActorOrchestrator,
		clock:    time.Now,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Workers returns the worker registry.
func (o *Orchestrator) Workers() *WorkerRegistry {
	return o.workers
}

// Identity returns the actor name of the orchestrator.
func (o *Orchestrator) Identity() string {
	return o.identity
}

// StartWorkflow creates a workflow in status started and returns its id.
func (o *Orchestrator) StartWorkflow(ctx context.Context, workflowType string, input map[string]any) (string, error) {
	if workflowType == "" {
		return "", faults.NewInvalidInputError("workflow type is required", nil).WithOperation("start_workflow")
	}

	wf := &Workflow{
		ID:        "WF-" + uuid.New().String(),
		Type:      workflowType,
		Status:    StatusStarted,
		StartedAt: o.clock().UTC(),
		Steps:     []Step{},
		Input:     input,
	}
	if err := o.store.Create(wf); err != nil {
		return "", err
	}

	vehicleID, _ := input["vehicle_id"].(string)
	o.tel.Metrics.RecordWorkflowStarted(workflowType)
	_ = o.tel.Events.PublishWorkflowStarted(wf.ID, workflowType, vehicleID)

	md := map[string]string{"workflowType": workflowType}
	if vehicleID != "" {
		md[monitor.MetaVehicleID] = vehicleID
	}
	o.record(ctx, wf.ID, policy.ActionWorkflowStarted, md)

	o.logger.Info().
		Str("workflow_id", wf.ID).
		Str("type", workflowType).
		Str("vehicle_id", vehicleID).
		Msg("Workflow started")

	return wf.ID, nil
}

// RecordStep appends a completed step. Unknown workflows are NotFound; workflows
// that are no longer started are AlreadyTerminal.
func (o *Orchestrator) RecordStep(ctx context.Context, workflowID string, stage Stage, result any) error {
	if stage == "" {
		return faults.NewInvalidInputError("stage is required", nil).
			WithResource(workflowID).
			WithOperation("record_step")
	}

	step := Step{Stage: stage, Timestamp: o.clock().UTC(), Result: result}
	if _, err := o.store.Update(workflowID, "record_step", func(wf *Workflow) {
		wf.Steps = append(wf.Steps, step)
	}); err != nil {
		return err
	}

	o.record(ctx, workflowID, policy.ActionWorkflowStepCompleted, map[string]string{"stage": string(stage)})
	return nil
}

// RecordSkipped appends a skipped step with the reason its gate did not hold.
func (o *Orchestrator) RecordSkipped(ctx context.Context, workflowID string, stage Stage, reason string) error {
	if stage == "" {
		return faults.NewInvalidInputError("stage is required", nil).
			WithResource(workflowID).
			WithOperation("record_skipped")
	}

	step := Step{Stage: stage, Timestamp: o.clock().UTC(), Skipped: true, Reason: reason}
	if _, err := o.store.Update(workflowID, "record_skipped", func(wf *Workflow) {
		wf.Steps = append(wf.Steps, step)
	}); err != nil {
		return err
	}

	o.record(ctx, workflowID, policy.ActionWorkflowStepSkipped, map[string]string{
		"stage":  string(stage),
		"reason": reason,
	})
	return nil
}

// CompleteWorkflow marks the workflow completed with result and returns the final snapshot.
func (o *Orchestrator) CompleteWorkflow(ctx context.Context, workflowID string, result any) (*Workflow, error) {
	now := o.clock().UTC()
	wf, err := o.store.Update(workflowID, "complete_workflow", func(wf *Workflow) {
		wf.Status = StatusCompleted
		wf.CompletedAt = &now
		wf.Result = result
	})
	if err != nil {
		return nil, err
	}

	o.tel.Metrics.RecordWorkflowFinished(string(StatusCompleted), wf.Duration())
	_ = o.tel.Events.PublishWorkflowCompleted(wf.ID, len(wf.Steps), wf.Duration())
	o.record(ctx, workflowID, policy.ActionWorkflowCompleted, map[string]string{
		"workflowType": wf.Type,
		"durationMs":   strconv.FormatInt(wf.Duration().Milliseconds(), 10),
	})

	o.logger.Info().
		Str("workflow_id", wf.ID).
		Int("steps", len(wf.Steps)).
		Dur("duration", wf.Duration()).
		Msg("Workflow completed")

	o.archive(ctx, wf)
	return wf, nil
}

// FailWorkflow marks the workflow failed with the cause's text as its result.
func (o *Orchestrator) FailWorkflow(ctx context.Context, workflowID string, cause error) (*Workflow, error) {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}

	now := o.clock().UTC()
	wf, err := o.store.Update(workflowID, "fail_workflow", func(wf *Workflow) {
		wf.Status = StatusFailed
		wf.CompletedAt = &now
		wf.Result = reason
	})
	if err != nil {
		return nil, err
	}

	o.tel.Metrics.RecordWorkflowFinished(string(StatusFailed), wf.Duration())
	_ = o.tel.Events.PublishWorkflowFailed(wf.ID, reason)
	o.record(ctx, workflowID, policy.ActionWorkflowFailed, map[string]string{"error": reason})

	o.logger.Error().
		Str("workflow_id", wf.ID).
		Str("error", reason).
		Msg("Workflow failed")

	o.archive(ctx, wf)
	return wf, nil
}

// GetWorkflow returns a snapshot of the workflow.
func (o *Orchestrator) GetWorkflow(workflowID string) (*Workflow, error) {
	return o.store.Get(workflowID)
}

// ListWorkflows returns snapshots of every workflow, oldest first.
func (o *Orchestrator) ListWorkflows() []*Workflow {
	return o.store.List()
}

// ListActiveWorkflows returns snapshots of the workflows still in status started.
func (o *Orchestrator) ListActiveWorkflows() []*Workflow {
	return o.store.ListByStatus(StatusStarted)
}

// ActivityLog returns up to limit most recent activity events, oldest first.
func (o *Orchestrator) ActivityLog(limit int) []activity.Event {
	return o.recorder.Log(limit)
}

// record logs an orchestrator action against workflowID. Orchestrator actions
// touch workflow state unless the caller names another data domain.
func (o *Orchestrator) record(ctx context.Context, workflowID, action string, md map[string]string) {
	if md == nil {
		md = make(map[string]string)
	}
	md[monitor.MetaWorkflowID] = workflowID
	if _, ok := md[monitor.MetaDataAccess]; !ok {
		md[monitor.MetaDataAccess] = policy.DataWorkflows
	}
	o.recorder.Record(ctx, o.identity, action, md)
}

func (o *Orchestrator) archive(ctx context.Context, wf *Workflow) {
	if o.archiver == nil {
		return
	}
	if err := o.archiver.ArchiveWorkflow(ctx, wf.clone()); err != nil {
		o.logger.Error().Err(err).Str("workflow_id", wf.ID).Msg("Failed to archive workflow")
	}
}
