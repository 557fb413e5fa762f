package workers

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/engine"
	"github.com/openfleet/openfleet/pkg/faults"
	"github.com/openfleet/openfleet/pkg/fleet"
	"github.com/openfleet/openfleet/pkg/policy"
)

// Sensor limits used by the analysis stage.
const (
	maxEngineTemp     = 100.0
	minOilPressure    = 70.0
	minBrakeHealth    = 70.0
	minBatteryVoltage = 12.0
	minTirePressure   = 28.0

	serviceIntervalDays    = 90
	serviceIntervalMileage = 5000.0
)

// DataAnalysis inspects sensor readings and service history.
type DataAnalysis struct {
	actor
	provider fleet.Provider
}

var _ engine.AnalysisWorker = (*DataAnalysis)(nil)

// NewDataAnalysis creates the analysis worker.
func NewDataAnalysis(provider fleet.Provider, recorder Recorder, logger zerolog.Logger, opts ...Option) *DataAnalysis {
	return &DataAnalysis{
		actor:    newActor(policy.ActorDataAnalysis, recorder, logger, opts),
		provider: provider,
	}
}

// DataDomains implements engine.Worker.
func (w *DataAnalysis) DataDomains() []string {
	return []string{policy.DataVehicles, policy.DataSensors, policy.DataMaintenanceHistory}
}

// Analyze implements engine.AnalysisWorker. Diagnosis is required when any
// sensor is out of range, a trouble code is active, or service is due.
func (w *DataAnalysis) Analyze(ctx context.Context, vehicleID string) (*engine.AnalysisResult, error) {
	if w.provider == nil {
		return nil, faults.NewInvalidInputError("no fleet provider configured", nil).WithResource(w.name)
	}

	w.record(ctx, policy.ActionVehicleAnalyze, policy.DataVehicles, nil)
	vehicle, err := w.provider.Vehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	w.record(ctx, policy.ActionVehicleAnalyze, policy.DataSensors, nil)
	sensors, err := w.provider.LatestSensors(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	w.record(ctx, policy.ActionVehicleAnalyze, policy.DataMaintenanceHistory, nil)
	history, err := w.provider.History(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	now := w.clock()
	anomalies := SensorAnomalies(&sensors.Readings)
	maintenance := AnalyzeMaintenance(history, vehicle, now)
	codes := append([]string{}, sensors.DiagnosticCodes...)

	res := &engine.AnalysisResult{
		VehicleID:         vehicleID,
		Vehicle:           vehicle,
		Anomalies:         anomalies,
		DiagnosticCodes:   codes,
		Maintenance:       maintenance,
		RequiresDiagnosis: len(anomalies) > 0 || len(codes) > 0 || maintenance.IsServiceDue,
		AnalyzedAt:        now.UTC(),
	}

	w.logger.Debug().
		Str("vehicle_id", vehicleID).
		Int("anomalies", len(anomalies)).
		Int("dtcs", len(codes)).
		Bool("service_due", maintenance.IsServiceDue).
		Msg("Vehicle analyzed")
	return res, nil
}

// SensorAnomalies lists the readings outside their healthy range. Missing
// readings are not reported.
func SensorAnomalies(r *fleet.SensorReadings) []engine.SensorAnomaly {
	out := []engine.SensorAnomaly{}
	check := func(v *float64, high bool, limit float64, typ, severity string) {
		if v == nil {
			return
		}
		if (high && *v > limit) || (!high && *v < limit) {
			out = append(out, engine.SensorAnomaly{Type: typ, Value: *v, Threshold: limit, Severity: severity})
		}
	}

	check(r.EngineTemp, true, maxEngineTemp, "HIGH_ENGINE_TEMP", "high")
	check(r.OilPressure, false, minOilPressure, "LOW_OIL_PRESSURE", "high")
	check(r.BrakeHealth, false, minBrakeHealth, "LOW_BRAKE_HEALTH", "medium")
	check(r.BatteryVoltage, false, minBatteryVoltage, "LOW_BATTERY_VOLTAGE", "medium")
	check(r.TirePressure, false, minTirePressure, "LOW_TIRE_PRESSURE", "low")
	return out
}

// AnalyzeMaintenance summarizes a vehicle's service history as of now. A vehicle
// with no history is always due for service.
func AnalyzeMaintenance(history []fleet.MaintenanceRecord, vehicle *fleet.Vehicle, now time.Time) engine.MaintenanceAnalysis {
	if len(history) == 0 {
		return engine.MaintenanceAnalysis{IsServiceDue: true, RecurringIssues: []engine.RecurringIssue{}}
	}

	last := history[0]
	total := 0.0
	issues := make(map[string]int)
	for _, r := range history {
		if r.ServiceDate.After(last.ServiceDate) {
			last = r
		}
		total += r.Cost
		if r.HasIssue() {
			issues[r.IssueReported]++
		}
	}

	days := int(now.Sub(last.ServiceDate).Hours() / 24)
	mileage := vehicle.CurrentMileage - last.MileageAtService
	lastDate := last.ServiceDate

	recurring := []engine.RecurringIssue{}
	for issue, n := range issues {
		if n > 1 {
			recurring = append(recurring, engine.RecurringIssue{Issue: issue, Count: n})
		}
	}
	sort.Slice(recurring, func(i, j int) bool {
		if recurring[i].Count != recurring[j].Count {
			return recurring[i].Count > recurring[j].Count
		}
		return recurring[i].Issue < recurring[j].Issue
	})

	return engine.MaintenanceAnalysis{
		TotalServices:        len(history),
		LastServiceDate:      &lastDate,
		DaysSinceLastService: &days,
		MileageSinceService:  &mileage,
		IsServiceDue:         days > serviceIntervalDays || mileage > serviceIntervalMileage,
		RecurringIssues:      recurring,
		AverageServiceCost:   float64(int(total / float64(len(history)))),
	}
}
