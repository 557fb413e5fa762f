// Package fleet defines the vehicle, sensor, and maintenance-history records consumed by the
// OpenFleet core, plus the read-only Provider used to look them up by vehicle id.
package fleet

import (
	"strings"
	"time"
)

// Vehicle is the profile of a single fleet vehicle.
type Vehicle struct {
	ID              string    `json:"id" yaml:"id" validate:"required"`
	VIN             string    `json:"vin,omitempty" yaml:"vin,omitempty"`
	Make            string    `json:"make,omitempty" yaml:"make,omitempty"`
	Model           string    `json:"model,omitempty" yaml:"model,omitempty"`
	Year            int       `json:"year,omitempty" yaml:"year,omitempty"`
	OwnerID         string    `json:"owner_id,omitempty" yaml:"owner_id,omitempty"`
	OwnerName       string    `json:"owner_name,omitempty" yaml:"owner_name,omitempty"`
	OwnerPhone      string    `json:"owner_phone,omitempty" yaml:"owner_phone,omitempty"`
	City            string    `json:"city,omitempty" yaml:"city,omitempty"`
	CurrentMileage  float64   `json:"current_mileage" yaml:"current_mileage" validate:"gte=0"`
	LastServiceDate time.Time `json:"last_service_date,omitempty" yaml:"last_service_date,omitempty"`
}

// SensorReadings holds the latest sensor values. Fields are pointers so that a reading
// absent from the source data can be told apart from a zero reading.
type SensorReadings struct {
	EngineTemp     *float64 `json:"engine_temp" yaml:"engine_temp" validate:"required"`
	OilPressure    *float64 `json:"oil_pressure" yaml:"oil_pressure" validate:"required,gte=0"`
	BrakeHealth    *float64 `json:"brake_health" yaml:"brake_health" validate:"required,gte=0,lte=100"`
	BatteryVoltage *float64 `json:"battery_voltage" yaml:"battery_voltage" validate:"required,gte=0"`
	TirePressure   *float64 `json:"tire_pressure" yaml:"tire_pressure" validate:"required,gte=0"`
	FuelLevel      *float64 `json:"fuel_level,omitempty" yaml:"fuel_level,omitempty" validate:"omitempty,gte=0,lte=100"`
	RPM            *float64 `json:"rpm,omitempty" yaml:"rpm,omitempty" validate:"omitempty,gte=0"`
	Speed          *float64 `json:"speed,omitempty" yaml:"speed,omitempty" validate:"omitempty,gte=0"`
}

// SensorSnapshot is a point-in-time telemetry reading for a vehicle.
type SensorSnapshot struct {
	VehicleID       string         `json:"vehicle_id" yaml:"vehicle_id"`
	Timestamp       time.Time      `json:"timestamp" yaml:"timestamp"`
	Mileage         float64        `json:"mileage" yaml:"mileage" validate:"gte=0"`
	Readings        SensorReadings `json:"sensors" yaml:"sensors"`
	DiagnosticCodes []string       `json:"diagnostic_codes,omitempty" yaml:"diagnostic_codes,omitempty"`
}

// RootCause carries the RCA/CAPA data attached to a maintenance record that reported an issue.
type RootCause struct {
	Cause                 string `json:"root_cause" yaml:"root_cause"`
	CorrectiveAction      string `json:"corrective_action" yaml:"corrective_action"`
	PreventiveAction      string `json:"preventive_action" yaml:"preventive_action"`
	Severity              string `json:"severity" yaml:"severity"`
	ManufacturingFeedback string `json:"manufacturing_feedback,omitempty" yaml:"manufacturing_feedback,omitempty"`
}

// MaintenanceRecord is one completed service visit.
type MaintenanceRecord struct {
	RecordID             string     `json:"record_id" yaml:"record_id"`
	VehicleID            string     `json:"vehicle_id" yaml:"vehicle_id"`
	ServiceDate          time.Time  `json:"service_date" yaml:"service_date"`
	MileageAtService     float64    `json:"mileage_at_service" yaml:"mileage_at_service"`
	ServiceType          string     `json:"service_type" yaml:"service_type"`
	IssueReported        string     `json:"issue_reported,omitempty" yaml:"issue_reported,omitempty"`
	DiagnosticCodes      []string   `json:"diagnostic_codes,omitempty" yaml:"diagnostic_codes,omitempty"`
	Cost                 float64    `json:"cost,omitempty" yaml:"cost,omitempty"`
	RCA                  *RootCause `json:"rca,omitempty" yaml:"rca,omitempty"`
	CustomerSatisfaction int        `json:"customer_satisfaction,omitempty" yaml:"customer_satisfaction,omitempty"`
}

// HasIssue reports whether the record describes a reported issue.
func (r *MaintenanceRecord) HasIssue() bool {
	return r.IssueReported != "" && !strings.EqualFold(r.IssueReported, "none")
}

// IssueMentions reports whether the reported issue mentions keyword, case-insensitively.
func (r *MaintenanceRecord) IssueMentions(keyword string) bool {
	return r.HasIssue() && strings.Contains(strings.ToLower(r.IssueReported), strings.ToLower(keyword))
}

// ServiceMentions reports whether the service type mentions keyword, case-insensitively.
func (r *MaintenanceRecord) ServiceMentions(keyword string) bool {
	return strings.Contains(strings.ToLower(r.ServiceType), strings.ToLower(keyword))
}

// Float returns a pointer to v, for building SensorReadings literals.
func Float(v float64) *float64 {
	return &v
}
