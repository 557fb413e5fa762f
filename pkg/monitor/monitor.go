package monitor

import (
	"context"
	"fmt"
	"maps"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/policy"
	"github.com/openfleet/openfleet/pkg/ring"
)

// DefaultAnomalyCapacity is the default size of the anomaly log.
const DefaultAnomalyCapacity = 500

// rateWindow is the trailing window the rate check counts over.
const rateWindow = time.Minute

// Config tunes a Monitor.
type Config struct {
	// AnomalyCapacity bounds the anomaly log. Defaults to DefaultAnomalyCapacity.
	AnomalyCapacity int `yaml:"anomaly_capacity" validate:"gte=0"`

	// Location is the time zone used by the timing check. Defaults to time.Local.
	Location *time.Location `yaml:"-"`

	// Clock stamps events recorded through RecordEvent. Defaults to time.Now.
	Clock func() time.Time `yaml:"-"`
}

// AnomalyFunc receives every logged anomaly.
type AnomalyFunc func(AnomalyRecord)

// Monitor audits actor activity against declared policies. It is advisory:
// it never blocks an actor and never returns an error.
type Monitor struct {
	policies atomic.Pointer[policy.Set]
	rules    atomic.Pointer[policy.RuleEngine]

	mu     sync.RWMutex
	actors map[string]*actorState

	anomalies *ring.Buffer[AnomalyRecord]

	hookMu     sync.RWMutex
	onAnomaly  []AnomalyFunc
	onCritical []AnomalyFunc

	location *time.Location
	clock    func() time.Time
	logger   zerolog.Logger
}

type actorState struct {
	mu       sync.Mutex
	baseline Baseline
	window   []time.Time
}

// New creates a monitor governed by policies. A nil set means the built-in policies.
func New(cfg Config, policies *policy.Set, logger zerolog.Logger) *Monitor {
	if policies == nil {
		policies = policy.DefaultSet("")
	}
	capacity := cfg.AnomalyCapacity
	if capacity <= 0 {
		capacity = DefaultAnomalyCapacity
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	m := &Monitor{
		actors:    make(map[string]*actorState),
		anomalies: ring.New[AnomalyRecord](capacity),
		location:  loc,
		clock:     clock,
		logger:    logger.With().Str("component", "behavior-monitor").Logger(),
	}
	m.policies.Store(policies)
	return m
}

// SetPolicies swaps the policy set. In-flight checks keep the set they started with.
func (m *Monitor) SetPolicies(s *policy.Set) {
	if s == nil {
		return
	}
	m.policies.Store(s)
	m.logger.Info().Int("actors", s.Len()).Str("orchestrator", s.Orchestrator()).Msg("Policies updated")
}

// Policies returns the active policy set.
func (m *Monitor) Policies() *policy.Set {
	return m.policies.Load()
}

// SetRuleEngine attaches advisory Rego rules. Nil detaches them.
func (m *Monitor) SetRuleEngine(e *policy.RuleEngine) {
	m.rules.Store(e)
}

// OnAnomaly registers a callback for every logged anomaly.
func (m *Monitor) OnAnomaly(fn AnomalyFunc) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.onAnomaly = append(m.onAnomaly, fn)
}

// OnCritical registers an alert callback for anomalies with a critical finding.
func (m *Monitor) OnCritical(fn AnomalyFunc) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.onCritical = append(m.onCritical, fn)
}

// RecordEvent checks an action stamped with the monitor's clock.
func (m *Monitor) RecordEvent(actor, action string, metadata map[string]string) Result {
	return m.Observe(Event{
		ID:        uuid.New().String(),
		Timestamp: m.clock(),
		Actor:     actor,
		Action:    action,
		Metadata:  maps.Clone(metadata),
	})
}

// Observe checks an event carrying its own id and timestamp.
func (m *Monitor) Observe(ev Event) Result {
	ev = ev.Clone()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = m.clock()
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]string{}
	}

	set := m.policies.Load()
	pol, governed := set.Lookup(ev.Actor)

	state := m.state(ev.Actor)
	state.mu.Lock()
	state.baseline.TotalActions++
	state.baseline.ActionFrequency[ev.Action]++
	if ev.Timestamp.After(state.baseline.LastActionAt) {
		state.baseline.LastActionAt = ev.Timestamp
	}
	rate := state.observe(ev.Timestamp)
	state.mu.Unlock()

	var findings []Finding
	add := func(t AnomalyType, sev Severity, detail string) {
		findings = append(findings, Finding{Type: t, Severity: sev, Detail: detail, EventID: ev.ID})
	}

	if governed && !pol.AllowsAction(ev.Action) {
		add(AnomalyUnauthorizedAction, SeverityHigh,
			fmt.Sprintf("Actor %s performed unauthorized action: %s", ev.Actor, ev.Action))
	}

	if data := ev.Metadata[MetaDataAccess]; governed && data != "" && !pol.AllowsData(data) {
		add(AnomalyUnauthorizedDataAccess, SeverityCritical,
			fmt.Sprintf("Actor %s accessed unauthorized data: %s", ev.Actor, data))
	}

	if governed && pol.MaxActionsPerMinute > 0 && rate > pol.MaxActionsPerMinute {
		add(AnomalyRateLimitExceeded, SeverityMedium,
			fmt.Sprintf("Actor %s exceeded rate limit: %d actions/min (limit: %d)", ev.Actor, rate, pol.MaxActionsPerMinute))
	}

	hour := ev.Timestamp.In(m.location).Hour()
	if hour < 6 || hour >= 23 {
		add(AnomalyUnusualTiming, SeverityLow,
			fmt.Sprintf("Actor %s active at unusual hour: %d:00", ev.Actor, hour))
	}

	if strings.Contains(strings.ToLower(ev.Action), "workflow") && ev.Actor != set.Orchestrator() {
		add(AnomalyWorkflowManipulation, SeverityCritical,
			fmt.Sprintf("Non-orchestrator actor %s attempted workflow manipulation: %s", ev.Actor, ev.Action))
	}

	if engine := m.rules.Load(); engine != nil {
		input := &policy.Input{
			Actor:        ev.Actor,
			Action:       ev.Action,
			Metadata:     ev.Metadata,
			Timestamp:    ev.Timestamp,
			Hour:         hour,
			Orchestrator: set.Orchestrator(),
		}
		if governed {
			input.Policy = pol
		}
		for _, v := range engine.Evaluate(context.Background(), input) {
			findings = append(findings, Finding{
				Type:     AnomalyPolicyRule,
				Severity: ParseSeverity(v.Severity),
				Detail:   v.Message,
				EventID:  ev.ID,
				Rule:     v.Rule,
			})
		}
	}

	res := Result{
		IsNormal:  len(findings) == 0,
		Findings:  findings,
		RiskScore: RiskScore(findings),
	}
	if res.IsNormal {
		res.Findings = []Finding{}
		return res
	}

	state.mu.Lock()
	state.baseline.AnomalyCount++
	state.mu.Unlock()

	rec := AnomalyRecord{
		ID:        "ANOM-" + uuid.New().String(),
		Timestamp: m.clock().UTC(),
		Actor:     ev.Actor,
		Event:     ev,
		Findings:  findings,
		RiskScore: res.RiskScore,
		Status:    StatusDetected,
	}
	if rec.Critical() {
		rec.ActionTaken = ActionAlert
	}
	m.anomalies.Push(rec)
	res.AnomalyID = rec.ID

	m.logAnomaly(rec)
	m.notify(rec)

	return res
}

// RiskScore is the mean severity weight of findings, capped at 1.0 and rounded
// to two decimals, or 0 for none.
func RiskScore(findings []Finding) float64 {
	if len(findings) == 0 {
		return 0
	}
	total := 0.0
	for _, f := range findings {
		total += f.Severity.Weight()
	}
	score := math.Round(total/float64(len(findings))*100) / 100
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func (m *Monitor) state(actor string) *actorState {
	m.mu.RLock()
	s, ok := m.actors[actor]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.actors[actor]; ok {
		return s
	}
	s = &actorState{baseline: Baseline{Actor: actor, ActionFrequency: make(map[string]int)}}
	m.actors[actor] = s
	return s
}

// observe adds ts to the sliding window and returns how many events fall in
// (ts-60s, ts]. Caller holds s.mu.
func (s *actorState) observe(ts time.Time) int {
	cutoff := ts.Add(-rateWindow)
	kept := s.window[:0]
	for _, t := range s.window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.window = append(kept, ts)

	count := 0
	for _, t := range s.window {
		if !t.After(ts) {
			count++
		}
	}
	return count
}

func (m *Monitor) logAnomaly(rec AnomalyRecord) {
	evt := m.logger.Warn()
	if rec.Critical() {
		evt = m.logger.Error()
	}
	evt.Str("anomaly_id", rec.ID).
		Str("actor", rec.Actor).
		Str("action", rec.Event.Action).
		Float64("risk_score", rec.RiskScore).
		Int("findings", len(rec.Findings)).
		Msg("Anomaly detected")

	for _, f := range rec.Findings {
		m.logger.Debug().
			Str("anomaly_id", rec.ID).
			Str("type", string(f.Type)).
			Str("severity", string(f.Severity)).
			Msg(f.Detail)
	}
}

func (m *Monitor) notify(rec AnomalyRecord) {
	m.hookMu.RLock()
	anomaly := append([]AnomalyFunc(nil), m.onAnomaly...)
	critical := append([]AnomalyFunc(nil), m.onCritical...)
	m.hookMu.RUnlock()

	for _, fn := range anomaly {
		fn(rec.clone())
	}
	if !rec.Critical() {
		return
	}
	m.logger.Error().
		Str("anomaly_id", rec.ID).
		Str("actor", rec.Actor).
		Msg("CRITICAL ALERT: immediate review required")
	for _, fn := range critical {
		fn(rec.clone())
	}
}
