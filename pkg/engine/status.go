package engine

import (
	"encoding/json"
	"fmt"
)

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	// StatusStarted indicates the workflow is in progress and accepts new steps.
	StatusStarted WorkflowStatus = "started"

	// StatusCompleted indicates the pipeline ran to the end.
	StatusCompleted WorkflowStatus = "completed"

	// StatusFailed indicates a worker failed and the pipeline was abandoned.
	StatusFailed WorkflowStatus = "failed"
)

// IsTerminal returns true if the status is final.
func (s WorkflowStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Validate checks if the workflow status is valid.
func (s WorkflowStatus) Validate() error {
	switch s {
	case StatusStarted, StatusCompleted, StatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid workflow status: %s", s)
	}
}

// UnmarshalJSON implements json.Unmarshaler with validation.
func (s *WorkflowStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	status := WorkflowStatus(str)
	if err := status.Validate(); err != nil {
		return err
	}
	*s = status
	return nil
}

// Stage names one step of the maintenance pipeline.
type Stage string

const (
	StageAnalysis              Stage = "DATA_ANALYSIS"
	StageDiagnosis             Stage = "DIAGNOSIS"
	StageCustomerEngagement    Stage = "CUSTOMER_ENGAGEMENT"
	StageScheduling            Stage = "SCHEDULING"
	StageFeedback              Stage = "FEEDBACK"
	StageManufacturingInsights Stage = "MANUFACTURING_INSIGHTS"
)

// Pipeline is the fixed stage order of a maintenance workflow.
var Pipeline = []Stage{
	StageAnalysis,
	StageDiagnosis,
	StageCustomerEngagement,
	StageScheduling,
	StageFeedback,
	StageManufacturingInsights,
}

var stageTitles = map[Stage]string{
	StageAnalysis:              "Data Analysis",
	StageDiagnosis:             "Diagnosis",
	StageCustomerEngagement:    "Customer Engagement",
	StageScheduling:            "Scheduling",
	StageFeedback:              "Feedback Collection",
	StageManufacturingInsights: "Manufacturing Insights",
}

// Title returns the human-readable stage name.
func (s Stage) Title() string {
	if t, ok := stageTitles[s]; ok {
		return t
	}
	return string(s)
}

// Position returns the 1-based position of the stage in Pipeline, or 0 if it is not part of it.
func (s Stage) Position() int {
	for i, st := range Pipeline {
		if st == s {
			return i + 1
		}
	}
	return 0
}

// Validate checks if the stage is part of the pipeline.
func (s Stage) Validate() error {
	if s.Position() == 0 {
		return fmt.Errorf("invalid stage: %s", s)
	}
	return nil
}

// Stage outcomes reported to metrics and traces.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)
