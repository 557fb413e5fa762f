package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/openfleet/openfleet/pkg/faults"
	"github.com/openfleet/openfleet/pkg/fleet"
)

// Engine scores vehicles. It holds only immutable configuration and is safe for
// concurrent use.
type Engine struct {
	cfg       Config
	dtcCodes  map[string]struct{}
	validator *validator.Validate
}

// NewEngine creates a scoring engine after validating cfg.
func NewEngine(cfg Config) (*Engine, error) {
	v := validator.New()
	if err := validateConfig(v, &cfg); err != nil {
		return nil, err
	}

	codes := make(map[string]struct{}, len(cfg.EngineDTCCodes))
	for _, c := range cfg.EngineDTCCodes {
		codes[strings.ToUpper(c)] = struct{}{}
	}

	return &Engine{cfg: cfg, dtcCodes: codes, validator: v}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Predict scores every component and assembles a diagnosis. It performs no I/O.
// A nil vehicle or sensor snapshot, or a snapshot with missing or non-finite readings,
// is a faults.KindInvalidInput error. A nil or empty history is valid.
func (e *Engine) Predict(vehicle *fleet.Vehicle, sensors *fleet.SensorSnapshot, history []fleet.MaintenanceRecord) (*DiagnosisResult, error) {
	if err := e.checkInput(vehicle, sensors); err != nil {
		return nil, err
	}

	mileage := math.Max(vehicle.CurrentMileage, sensors.Mileage)
	r := sensors.Readings

	candidates := []ComponentRisk{
		e.engineRisk(*r.EngineTemp, mileage, sensors.DiagnosticCodes, history),
		e.brakeRisk(*r.BrakeHealth, mileage, history),
		e.batteryRisk(*r.BatteryVoltage, mileage, history),
		e.oilRisk(*r.OilPressure, mileage, history),
	}

	predictions := make([]ComponentRisk, 0, len(candidates))
	for _, c := range candidates {
		if c.Probability > e.cfg.IncludeThreshold {
			predictions = append(predictions, c)
		}
	}
	sort.SliceStable(predictions, func(i, j int) bool {
		if predictions[i].Probability != predictions[j].Probability {
			return predictions[i].Probability > predictions[j].Probability
		}
		return predictions[i].Component < predictions[j].Component
	})

	return &DiagnosisResult{
		VehicleID:           vehicle.ID,
		Predictions:         predictions,
		OverallRisk:         e.overallRisk(predictions),
		RemainingUsefulLife: e.remainingUsefulLife(predictions, mileage),
		RecommendedAction:   recommendedAction(predictions),
	}, nil
}

func (e *Engine) checkInput(vehicle *fleet.Vehicle, sensors *fleet.SensorSnapshot) error {
	if vehicle == nil {
		return faults.NewInvalidInputError("vehicle profile is required", nil).WithOperation("predict")
	}
	if sensors == nil {
		return faults.NewInvalidInputError("sensor snapshot is required", nil).
			WithResource(vehicle.ID).WithOperation("predict")
	}
	if sensors.VehicleID != "" && vehicle.ID != "" && sensors.VehicleID != vehicle.ID {
		return faults.NewInvalidInputError(
			fmt.Sprintf("sensor snapshot belongs to vehicle %s", sensors.VehicleID), nil).
			WithResource(vehicle.ID).WithOperation("predict")
	}

	if err := e.validator.Struct(vehicle); err != nil {
		return faults.NewInvalidInputError("malformed vehicle profile", err).
			WithResource(vehicle.ID).WithOperation("predict")
	}
	if err := e.validator.Struct(sensors); err != nil {
		return faults.NewInvalidInputError("malformed sensor snapshot", err).
			WithResource(vehicle.ID).WithOperation("predict")
	}

	r := sensors.Readings
	readings := map[string]*float64{
		"engine_temp":     r.EngineTemp,
		"oil_pressure":    r.OilPressure,
		"brake_health":    r.BrakeHealth,
		"battery_voltage": r.BatteryVoltage,
		"tire_pressure":   r.TirePressure,
	}
	for name, v := range readings {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return faults.NewInvalidInputError("non-finite sensor reading", nil).
				WithResource(vehicle.ID).WithOperation("predict").WithDetail("field", name)
		}
	}
	if math.IsInf(vehicle.CurrentMileage, 0) || math.IsInf(sensors.Mileage, 0) {
		return faults.NewInvalidInputError("non-finite mileage", nil).
			WithResource(vehicle.ID).WithOperation("predict")
	}

	return nil
}

// scorer accumulates unclamped probability terms for one component.
type scorer struct {
	sum   float64
	terms []Term
}

func (s *scorer) add(name string, v float64) {
	if v <= 0 {
		return
	}
	s.sum += v
	s.terms = append(s.terms, Term{Name: name, Contribution: round2(v)})
}

func (e *Engine) engineRisk(temp, mileage float64, dtcs []string, history []fleet.MaintenanceRecord) ComponentRisk {
	cc := e.cfg.Engine
	var s scorer

	if temp > cc.Limit {
		s.add("temperature", (temp-cc.Limit)/cc.Divisor)
	}
	if mileage > cc.MileageCutoff {
		s.add("mileage", cc.MileageBonus)
	}
	issues := countIssues(history, cc.Keyword)
	s.add("recurrence", float64(issues)*cc.RecurrenceIncrement)

	dtc := false
	for _, code := range dtcs {
		if _, ok := e.dtcCodes[strings.ToUpper(code)]; ok {
			dtc = true
			break
		}
	}
	if dtc {
		s.add("dtc", e.cfg.EngineDTCBonus)
	}

	return e.assess(ComponentEngine, cc, s, Factors{
		Sensor:           "engine_temp",
		Reading:          temp,
		Mileage:          mileage,
		HistoricalIssues: issues,
		DTCDetected:      dtc,
	})
}

func (e *Engine) brakeRisk(health, mileage float64, history []fleet.MaintenanceRecord) ComponentRisk {
	cc := e.cfg.Brakes
	var s scorer

	if health < cc.Limit {
		s.add("brake_health", (cc.Limit-health)/cc.Divisor)
	}
	if mileage > cc.MileageCutoff {
		s.add("mileage", cc.MileageBonus)
	}
	issues := countIssues(history, cc.Keyword)
	s.add("recurrence", float64(issues)*cc.RecurrenceIncrement)

	return e.assess(ComponentBrakes, cc, s, Factors{
		Sensor:           "brake_health",
		Reading:          health,
		Mileage:          mileage,
		HistoricalIssues: issues,
	})
}

func (e *Engine) batteryRisk(voltage, mileage float64, history []fleet.MaintenanceRecord) ComponentRisk {
	cc := e.cfg.Battery
	var s scorer

	if voltage < cc.Limit {
		s.add("voltage", (cc.Limit-voltage)/cc.Divisor)
	}
	if mileage > cc.MileageCutoff {
		s.add("mileage", cc.MileageBonus)
	}
	issues := countIssues(history, cc.Keyword)
	s.add("recurrence", float64(issues)*cc.RecurrenceIncrement)

	return e.assess(ComponentBattery, cc, s, Factors{
		Sensor:           "battery_voltage",
		Reading:          voltage,
		Mileage:          mileage,
		HistoricalIssues: issues,
	})
}

// oilRisk applies the mileage term to the distance since the last oil change, or to the
// full mileage when no oil change is on record.
func (e *Engine) oilRisk(pressure, mileage float64, history []fleet.MaintenanceRecord) ComponentRisk {
	cc := e.cfg.Oil
	var s scorer

	if pressure < cc.Limit {
		s.add("oil_pressure", (cc.Limit-pressure)/cc.Divisor)
	}

	since := mileage
	if last := lastService(history, cc.Keyword); last != nil {
		since = math.Max(0, mileage-last.MileageAtService)
	}
	if since > cc.MileageCutoff {
		s.add("service_interval", cc.MileageBonus)
	}
	issues := countIssues(history, cc.Keyword)
	s.add("recurrence", float64(issues)*cc.RecurrenceIncrement)

	return e.assess(ComponentOil, cc, s, Factors{
		Sensor:              "oil_pressure",
		Reading:             pressure,
		Mileage:             mileage,
		HistoricalIssues:    issues,
		MileageSinceService: &since,
	})
}

func (e *Engine) assess(c Component, cc ComponentConfig, s scorer, f Factors) ComponentRisk {
	// Severity and days are derived from the clamped sum; only the reported
	// probability (and so the inclusion cutoff) is rounded.
	raw := math.Min(math.Max(s.sum, 0), 1)
	f.Terms = s.terms

	return ComponentRisk{
		Component:              c,
		Probability:            round2(raw),
		Severity:               e.bucket(raw, SeverityMedium),
		EstimatedDaysToFailure: daysToFailure(raw, cc.WindowDays),
		Factors:                f,
	}
}

// bucket maps a probability to a severity, returning floor when no threshold is exceeded.
func (e *Engine) bucket(p float64, floor Severity) Severity {
	switch {
	case p > e.cfg.CriticalThreshold:
		return SeverityCritical
	case p > e.cfg.HighThreshold:
		return SeverityHigh
	case p > e.cfg.IncludeThreshold:
		return SeverityMedium
	default:
		return floor
	}
}

func (e *Engine) overallRisk(predictions []ComponentRisk) Severity {
	if len(predictions) == 0 {
		return SeverityLow
	}
	return e.bucket(meanProbability(predictions), SeverityLow)
}

func (e *Engine) remainingUsefulLife(predictions []ComponentRisk, mileage float64) RemainingUsefulLife {
	if len(predictions) == 0 {
		return RemainingUsefulLife{
			EstimatedDistance: mileage + e.cfg.DefaultDistance,
			EstimatedDays:     e.cfg.DefaultDays,
			Confidence:        ConfidenceLow,
		}
	}

	minDays := predictions[0].EstimatedDaysToFailure
	for _, p := range predictions[1:] {
		if p.EstimatedDaysToFailure < minDays {
			minDays = p.EstimatedDaysToFailure
		}
	}

	conf := ConfidenceMedium
	if meanProbability(predictions) > e.cfg.HighConfidenceThreshold {
		conf = ConfidenceHigh
	}

	return RemainingUsefulLife{
		EstimatedDistance: mileage + float64(minDays)*e.cfg.DailyUsage,
		EstimatedDays:     minDays,
		Confidence:        conf,
	}
}

func recommendedAction(predictions []ComponentRisk) string {
	if len(predictions) == 0 {
		return "Continue regular maintenance schedule"
	}

	var critical, high []string
	for _, p := range predictions {
		switch p.Severity {
		case SeverityCritical:
			critical = append(critical, string(p.Component))
		case SeverityHigh:
			high = append(high, string(p.Component))
		}
	}

	if len(critical) > 0 {
		return "URGENT: Schedule immediate service for " + strings.Join(critical, ", ")
	}
	if len(high) > 0 {
		return "Schedule service within 7 days for " + strings.Join(high, ", ")
	}
	top := predictions[0]
	return fmt.Sprintf("Schedule maintenance for %s within %d days", top.Component, top.EstimatedDaysToFailure)
}

func countIssues(history []fleet.MaintenanceRecord, keyword string) int {
	n := 0
	for i := range history {
		if history[i].IssueMentions(keyword) {
			n++
		}
	}
	return n
}

// lastService returns the most recent record whose service type mentions keyword.
func lastService(history []fleet.MaintenanceRecord, keyword string) *fleet.MaintenanceRecord {
	var last *fleet.MaintenanceRecord
	for i := range history {
		r := &history[i]
		if !r.ServiceMentions(keyword) {
			continue
		}
		if last == nil || r.ServiceDate.After(last.ServiceDate) {
			last = r
		}
	}
	return last
}

func meanProbability(predictions []ComponentRisk) float64 {
	sum := 0.0
	for _, p := range predictions {
		sum += p.Probability
	}
	return sum / float64(len(predictions))
}

// daysToFailure is floor((1-p) * window). The epsilon absorbs binary rounding so that
// p=0.8 over 60 days yields 12, not 11.
func daysToFailure(p float64, window int) int {
	return int(math.Floor((1-p)*float64(window) + 1e-9))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
