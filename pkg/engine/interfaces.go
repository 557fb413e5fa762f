package engine

import (
	"context"

	"github.com/openfleet/openfleet/pkg/activity"
	"github.com/openfleet/openfleet/pkg/fleet"
)

// Worker is the common contract of every pipeline worker.
type Worker interface {
	// Name returns the actor identity the worker records its activity under.
	Name() string

	// DataDomains lists the data-access tags the worker reads.
	DataDomains() []string
}

// AnalysisWorker inspects telemetry and service history.
// This is stage 1: always runs.
type AnalysisWorker interface {
	Worker

	// Analyze loads the vehicle data and decides whether diagnosis is needed.
	Analyze(ctx context.Context, vehicleID string) (*AnalysisResult, error)
}

// DiagnosisWorker runs the risk scoring engine.
// This is stage 2: gated on AnalysisResult.RequiresDiagnosis.
type DiagnosisWorker interface {
	Worker

	// Diagnose predicts component failures for the analyzed vehicle.
	Diagnose(ctx context.Context, vehicleID string, analysis *AnalysisResult) (*DiagnosisReport, error)
}

// EngagementWorker contacts the vehicle owner.
// This is stage 3: gated on DiagnosisReport.MaintenanceRequired.
type EngagementWorker interface {
	Worker

	// Engage informs the customer of the diagnosis and records their decision.
	Engage(ctx context.Context, vehicle *fleet.Vehicle, diagnosis *DiagnosisReport) (*EngagementResult, error)
}

// SchedulingWorker books service appointments.
// This is stage 4: gated on EngagementResult.CustomerAccepted.
type SchedulingWorker interface {
	Worker

	// Schedule proposes slots at the nearest service center and books the first one.
	Schedule(ctx context.Context, vehicle *fleet.Vehicle, diagnosis *DiagnosisReport) (*SchedulingResult, error)
}

// FeedbackWorker collects post-service feedback.
// This is stage 5: gated on SchedulingResult.AppointmentBooked.
type FeedbackWorker interface {
	Worker

	// CollectFeedback gathers and analyzes the customer's ratings for an appointment.
	CollectFeedback(ctx context.Context, appointment *Appointment) (*FeedbackResult, error)
}

// InsightWorker aggregates fleet-wide root-cause data.
// This is stage 6: always runs.
type InsightWorker interface {
	Worker

	// RefreshInsights recomputes the manufacturing insight report.
	RefreshInsights(ctx context.Context) (*InsightReport, error)
}

// ActivityRecorder records actor actions. *activity.Recorder satisfies it.
type ActivityRecorder interface {
	Record(ctx context.Context, actor, action string, metadata map[string]string) activity.Event
	Log(limit int) []activity.Event
}

// Archiver receives workflows once they reach a terminal status.
type Archiver interface {
	ArchiveWorkflow(ctx context.Context, wf *Workflow) error
}
