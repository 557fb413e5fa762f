package engine

import (
	"time"

	"github.com/openfleet/openfleet/pkg/fleet"
	"github.com/openfleet/openfleet/pkg/scoring"
)

// SensorAnomaly is a reading outside its healthy range.
type SensorAnomaly struct {
	Type      string  `json:"type"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Severity  string  `json:"severity"`
}

// RecurringIssue is an issue reported more than once for the same vehicle.
type RecurringIssue struct {
	Issue string `json:"issue"`
	Count int    `json:"count"`
}

// MaintenanceAnalysis summarizes a vehicle's service history.
type MaintenanceAnalysis struct {
	TotalServices        int              `json:"total_services"`
	LastServiceDate      *time.Time       `json:"last_service_date,omitempty"`
	DaysSinceLastService *int             `json:"days_since_last_service,omitempty"`
	MileageSinceService  *float64         `json:"mileage_since_service,omitempty"`
	IsServiceDue         bool             `json:"is_service_due"`
	RecurringIssues      []RecurringIssue `json:"recurring_issues"`
	AverageServiceCost   float64          `json:"average_service_cost,omitempty"`
}

// AnalysisResult is the output of the analysis stage.
type AnalysisResult struct {
	VehicleID       string              `json:"vehicle_id"`
	Vehicle         *fleet.Vehicle      `json:"vehicle,omitempty"`
	Anomalies       []SensorAnomaly     `json:"anomalies"`
	DiagnosticCodes []string            `json:"diagnostic_codes"`
	Maintenance     MaintenanceAnalysis `json:"maintenance"`

	// RequiresDiagnosis gates the diagnosis stage.
	RequiresDiagnosis bool `json:"requires_diagnosis"`

	AnalyzedAt time.Time `json:"analyzed_at"`
}

// DiagnosisReport is the output of the diagnosis stage.
type DiagnosisReport struct {
	Diagnosis scoring.DiagnosisResult `json:"diagnosis"`

	// MaintenanceRequired gates the customer engagement stage.
	MaintenanceRequired bool `json:"maintenance_required"`

	Urgency           scoring.Urgency          `json:"urgency"`
	EstimatedCost     scoring.CostEstimate     `json:"estimated_cost"`
	EstimatedDuration scoring.DurationEstimate `json:"estimated_duration"`
	Summary           string                   `json:"summary"`
	DiagnosedAt       time.Time                `json:"diagnosed_at"`
}

// EngagementResult is the output of the customer engagement stage.
type EngagementResult struct {
	ConversationID   string `json:"conversation_id"`
	CustomerName     string `json:"customer_name,omitempty"`
	CustomerPhone    string `json:"customer_phone,omitempty"`
	OpeningMessage   string `json:"opening_message"`
	CustomerResponse string `json:"customer_response"`
	Intent           string `json:"intent"`
	AgentReply       string `json:"agent_reply,omitempty"`

	// CustomerAccepted gates the scheduling stage.
	CustomerAccepted bool `json:"customer_accepted"`
}

// Appointment is a booked service visit.
type Appointment struct {
	ID                string                   `json:"id"`
	VehicleID         string                   `json:"vehicle_id"`
	CustomerID        string                   `json:"customer_id,omitempty"`
	CustomerName      string                   `json:"customer_name,omitempty"`
	ServiceCenterID   string                   `json:"service_center_id"`
	ServiceCenterName string                   `json:"service_center_name"`
	Date              string                   `json:"date"`
	Time              string                   `json:"time"`
	EndTime           string                   `json:"end_time"`
	ServiceType       string                   `json:"service_type"`
	Urgency           scoring.UrgencyLevel     `json:"urgency"`
	EstimatedDuration scoring.DurationEstimate `json:"estimated_duration"`
	EstimatedCost     scoring.CostEstimate     `json:"estimated_cost"`
	Status            string                   `json:"status"`
	CreatedAt         time.Time                `json:"created_at"`
}

// SchedulingResult is the output of the scheduling stage.
type SchedulingResult struct {
	ServiceCenterID string       `json:"service_center_id"`
	ProposedDays    int          `json:"proposed_days"`
	Appointment     *Appointment `json:"appointment,omitempty"`

	// AppointmentBooked gates the feedback stage.
	AppointmentBooked bool `json:"appointment_booked"`
}

// FeedbackResult is the output of the feedback stage.
type FeedbackResult struct {
	ID            string             `json:"id"`
	AppointmentID string             `json:"appointment_id"`
	Ratings       map[string]float64 `json:"ratings"`
	AverageRating float64            `json:"average_rating"`
	Sentiment     string             `json:"sentiment"`
	NPSScore      int                `json:"nps_score"`
	NPSCategory   string             `json:"nps_category"`
	Comments      []string           `json:"comments,omitempty"`
	CollectedAt   time.Time          `json:"collected_at"`
}

// IssuePattern aggregates root-cause data for one recurring issue across the fleet.
type IssuePattern struct {
	Issue                 string   `json:"issue"`
	Occurrences           int      `json:"occurrences"`
	VehicleCount          int      `json:"vehicle_count"`
	AffectedVehicles      []string `json:"affected_vehicles"`
	DTCCodes              []string `json:"dtc_codes"`
	RootCause             string   `json:"root_cause,omitempty"`
	CorrectiveAction      string   `json:"corrective_action,omitempty"`
	PreventiveAction      string   `json:"preventive_action,omitempty"`
	Severity              string   `json:"severity,omitempty"`
	ManufacturingFeedback string   `json:"manufacturing_feedback,omitempty"`
	TotalCost             float64  `json:"total_cost"`
	AvgCost               float64  `json:"avg_cost"`
	AvgMileage            float64  `json:"avg_mileage"`
	Impact                float64  `json:"impact"`
}

// InsightReport is the output of the manufacturing insights stage.
type InsightReport struct {
	TotalRCARecords int            `json:"total_rca_records"`
	UniqueIssues    int            `json:"unique_issues"`
	Patterns        []IssuePattern `json:"patterns"`
	AnalyzedAt      time.Time      `json:"analyzed_at"`
}
