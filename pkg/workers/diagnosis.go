package workers

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/engine"
	"github.com/openfleet/openfleet/pkg/faults"
	"github.com/openfleet/openfleet/pkg/fleet"
	"github.com/openfleet/openfleet/pkg/policy"
	"github.com/openfleet/openfleet/pkg/scoring"
	"github.com/openfleet/openfleet/pkg/telemetry"
)

// Diagnosis runs the risk scoring engine on the latest telemetry.
type Diagnosis struct {
	actor
	provider fleet.Provider
	scorer   *scoring.Engine
}

var _ engine.DiagnosisWorker = (*Diagnosis)(nil)

// NewDiagnosis creates the diagnosis worker.
func NewDiagnosis(provider fleet.Provider, scorer *scoring.Engine, recorder Recorder, logger zerolog.Logger, opts ...Option) *Diagnosis {
	return &Diagnosis{
		actor:    newActor(policy.ActorDiagnosis, recorder, logger, opts),
		provider: provider,
		scorer:   scorer,
	}
}

// DataDomains implements engine.Worker.
func (w *Diagnosis) DataDomains() []string {
	return []string{policy.DataVehicles, policy.DataSensors, policy.DataMaintenanceHistory, policy.DataRiskModel}
}

// Diagnose implements engine.DiagnosisWorker. Maintenance is required when any
// component crossed the inclusion threshold or the overall risk is above low.
func (w *Diagnosis) Diagnose(ctx context.Context, vehicleID string, analysis *engine.AnalysisResult) (*engine.DiagnosisReport, error) {
	if w.provider == nil || w.scorer == nil {
		return nil, faults.NewInvalidInputError("diagnosis worker is not configured", nil).WithResource(w.name)
	}

	ctx, span := w.tel.Tracer.StartPredictSpan(ctx, vehicleID)
	defer span.End()

	w.record(ctx, policy.ActionDiagnosisRun, policy.DataSensors, nil)

	var vehicle *fleet.Vehicle
	if analysis != nil {
		vehicle = analysis.Vehicle
	}
	if vehicle == nil {
		v, err := w.provider.Vehicle(ctx, vehicleID)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		vehicle = v
	}
	sensors, err := w.provider.LatestSensors(ctx, vehicleID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	w.record(ctx, policy.ActionDiagnosisRun, policy.DataMaintenanceHistory, nil)
	history, err := w.provider.History(ctx, vehicleID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result, err := w.scorer.Predict(vehicle, sensors, history)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	for _, p := range result.Predictions {
		w.tel.Metrics.RecordPrediction(string(p.Component), string(p.Severity))
	}
	span.SetAttributes(
		telemetry.AttrOverallRisk.String(string(result.OverallRisk)),
		telemetry.AttrPredictions.Int(len(result.Predictions)),
	)

	report := &engine.DiagnosisReport{
		Diagnosis:           *result,
		MaintenanceRequired: result.OverallRisk != scoring.SeverityLow || len(result.Predictions) > 0,
		Urgency:             scoring.UrgencyOf(result),
		EstimatedCost:       scoring.EstimateCost(result.Predictions),
		EstimatedDuration:   scoring.EstimateDuration(result.Predictions),
		Summary:             scoring.Summary(result),
		DiagnosedAt:         w.clock().UTC(),
	}

	w.record(ctx, policy.ActionDiagnosisCompleted, policy.DataRiskModel, map[string]string{
		"overallRisk": string(result.OverallRisk),
	})
	telemetry.RecordSuccess(span)

	w.logger.Debug().
		Str("vehicle_id", vehicleID).
		Str("overall_risk", string(result.OverallRisk)).
		Int("predictions", len(result.Predictions)).
		Bool("maintenance_required", report.MaintenanceRequired).
		Msg("Diagnosis completed")
	return report, nil
}
