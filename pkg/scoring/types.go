// Package scoring converts vehicle telemetry and maintenance history into prioritized
// component-failure predictions using deterministic rule-weighted arithmetic.
package scoring

import (
	"encoding/json"
	"fmt"
)

// Component identifies a scored vehicle subsystem.
type Component string

const (
	ComponentEngine  Component = "Engine"
	ComponentBrakes  Component = "Brake System"
	ComponentBattery Component = "Battery"
	ComponentOil     Component = "Oil System"
)

// Severity is a risk bucket. Component predictions only ever carry medium, high, or
// critical; low is used for the overall risk when nothing crossed the inclusion threshold.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (0) to critical (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Validate checks if the severity is valid.
func (s Severity) Validate() error {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return nil
	default:
		return fmt.Errorf("invalid severity: %s", s)
	}
}

// UnmarshalJSON implements json.Unmarshaler with validation.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	sev := Severity(str)
	if err := sev.Validate(); err != nil {
		return err
	}
	*s = sev
	return nil
}

// Confidence qualifies a remaining-useful-life estimate.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Term is one contribution to a component probability.
type Term struct {
	Name         string  `json:"name"`
	Contribution float64 `json:"contribution"`
}

// Factors records the inputs that drove a component score.
type Factors struct {
	// Sensor is the reading the threshold term was computed from.
	Sensor string `json:"sensor"`

	// Reading is the sensor value.
	Reading float64 `json:"reading"`

	// Mileage is the vehicle mileage used for the mileage term.
	Mileage float64 `json:"mileage"`

	// HistoricalIssues counts prior maintenance records mentioning the component.
	HistoricalIssues int `json:"historical_issues"`

	// DTCDetected is set when a current trouble code matched the component's code set.
	DTCDetected bool `json:"dtc_detected,omitempty"`

	// MileageSinceService is the distance since the last relevant service, when tracked.
	MileageSinceService *float64 `json:"mileage_since_service,omitempty"`

	// Terms lists each non-zero contribution before clamping.
	Terms []Term `json:"terms,omitempty"`
}

// ComponentRisk is the assessment for a single component.
type ComponentRisk struct {
	Component              Component `json:"component"`
	Probability            float64   `json:"probability"`
	Severity               Severity  `json:"severity"`
	EstimatedDaysToFailure int       `json:"estimated_days_to_failure"`
	Factors                Factors   `json:"factors"`
}

// RemainingUsefulLife estimates the distance and time before the earliest predicted failure.
type RemainingUsefulLife struct {
	EstimatedDistance float64    `json:"estimated_distance"`
	EstimatedDays     int        `json:"estimated_days"`
	Confidence        Confidence `json:"confidence"`
}

// DiagnosisResult is the output of Engine.Predict.
type DiagnosisResult struct {
	VehicleID string `json:"vehicle_id"`

	// Predictions are sorted by probability, highest first, with no duplicate components.
	Predictions []ComponentRisk `json:"predictions"`

	OverallRisk         Severity            `json:"overall_risk"`
	RemainingUsefulLife RemainingUsefulLife `json:"remaining_useful_life"`
	RecommendedAction   string              `json:"recommended_action"`
}

// HasSeverity reports whether any prediction carries the given severity.
func (r *DiagnosisResult) HasSeverity(s Severity) bool {
	for i := range r.Predictions {
		if r.Predictions[i].Severity == s {
			return true
		}
	}
	return false
}

// Components returns the predicted component names in prediction order.
func (r *DiagnosisResult) Components() []Component {
	out := make([]Component, len(r.Predictions))
	for i := range r.Predictions {
		out[i] = r.Predictions[i].Component
	}
	return out
}
