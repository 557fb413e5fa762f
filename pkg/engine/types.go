package engine

import (
	"maps"
	"time"
)

// WorkflowTypeMaintenance is the type of workflows created by Orchestrate.
const WorkflowTypeMaintenance = "COMPLETE_MAINTENANCE_FLOW"

// Workflow is one multi-stage run and its recorded history.
type Workflow struct {
	// ID is the unique workflow identifier ("WF-" followed by a UUID).
	ID string `json:"id"`

	// Type names the kind of workflow.
	Type string `json:"type"`

	// Status is the lifecycle state. Only started workflows accept new steps.
	Status WorkflowStatus `json:"status"`

	// StartedAt is when the workflow was created.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is set once the workflow reaches a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Steps is the append-only stage history in execution order.
	Steps []Step `json:"steps"`

	// Input is the payload the workflow was started with.
	Input map[string]any `json:"input,omitempty"`

	// Result is the final payload. For failed workflows it is the error text.
	Result any `json:"result,omitempty"`
}

// Duration returns the elapsed time between start and completion, or zero while running.
func (w *Workflow) Duration() time.Duration {
	if w.CompletedAt == nil {
		return 0
	}
	return w.CompletedAt.Sub(w.StartedAt)
}

// Step returns the first recorded step for stage.
func (w *Workflow) Step(stage Stage) (Step, bool) {
	for _, s := range w.Steps {
		if s.Stage == stage {
			return s, true
		}
	}
	return Step{}, false
}

// clone copies the workflow so callers can't mutate stored state. Step and
// result payloads are shared; workers hand them over as values and never
// touch them again.
func (w *Workflow) clone() *Workflow {
	c := *w
	c.Steps = append([]Step(nil), w.Steps...)
	c.Input = maps.Clone(w.Input)
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Step records the outcome of one stage.
type Step struct {
	Stage     Stage     `json:"stage"`
	Timestamp time.Time `json:"timestamp"`

	// Result is the stage payload; nil for skipped steps.
	Result any `json:"result,omitempty"`

	// Skipped marks a stage whose gate did not hold.
	Skipped bool `json:"skipped,omitempty"`

	// Reason explains why the stage was skipped.
	Reason string `json:"reason,omitempty"`
}

// PipelineReport is the final result of a completed maintenance workflow.
type PipelineReport struct {
	WorkflowID string `json:"workflow_id"`
	VehicleID  string `json:"vehicle_id"`

	Vehicle *VehicleInfo `json:"vehicle,omitempty"`

	// StepsCompleted lists every stage in order, e.g. "2. Diagnosis (Skipped)".
	StepsCompleted []string `json:"steps_completed"`

	Results StageResults `json:"results"`

	// Summary is a multi-line, human-readable outcome.
	Summary string `json:"summary"`

	CompletedAt time.Time `json:"completed_at"`
}

// VehicleInfo identifies the vehicle a report is about.
type VehicleInfo struct {
	ID    string `json:"id"`
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Owner string `json:"owner,omitempty"`
}

// StageResults holds the typed output of each stage that ran.
type StageResults struct {
	Analysis   *AnalysisResult   `json:"analysis,omitempty"`
	Diagnosis  *DiagnosisReport  `json:"diagnosis,omitempty"`
	Engagement *EngagementResult `json:"engagement,omitempty"`
	Scheduling *SchedulingResult `json:"scheduling,omitempty"`
	Feedback   *FeedbackResult   `json:"feedback,omitempty"`
	Insights   *InsightReport    `json:"insights,omitempty"`
}
