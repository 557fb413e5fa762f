package monitor

import (
	"fmt"
	"maps"
	"sort"

	"github.com/openfleet/openfleet/pkg/faults"
	"github.com/openfleet/openfleet/pkg/policy"
)

// Baseline returns a snapshot of the actor's counters.
func (m *Monitor) Baseline(actor string) (Baseline, bool) {
	m.mu.RLock()
	s, ok := m.actors[actor]
	m.mu.RUnlock()
	if !ok {
		return Baseline{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.baseline
	b.ActionFrequency = maps.Clone(s.baseline.ActionFrequency)
	return b, true
}

// Actors returns every actor seen so far, sorted.
func (m *Monitor) Actors() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.actors))
	for a := range m.actors {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// ActorSummary summarizes one actor. Unknown actors are NotFound.
func (m *Monitor) ActorSummary(actor string) (*ActorSummary, error) {
	b, ok := m.Baseline(actor)
	if !ok {
		return nil, faults.NewNotFoundError("actor has no recorded activity", nil).
			WithResource(actor).
			WithOperation("actor_summary")
	}

	rate := "0%"
	if b.TotalActions > 0 {
		rate = fmt.Sprintf("%.2f%%", float64(b.AnomalyCount)/float64(b.TotalActions)*100)
	}

	return &ActorSummary{
		Actor:           b.Actor,
		TotalActions:    b.TotalActions,
		AnomalyCount:    b.AnomalyCount,
		AnomalyRate:     rate,
		ActionBreakdown: b.ActionFrequency,
		LastActivity:    b.LastActionAt,
		RiskLevel:       RiskLevelFor(b.AnomalyCount),
	}, nil
}

// AnomalyReport returns up to limit most recent anomalies, oldest first.
// A limit of zero or less returns every retained anomaly.
func (m *Monitor) AnomalyReport(limit int) []AnomalyRecord {
	recs := m.anomalies.Last(limit)
	for i := range recs {
		recs[i] = recs[i].clone()
	}
	return recs
}

// Dashboard builds the security overview with the most recent anomalies.
func (m *Monitor) Dashboard(recent int) *Dashboard {
	actors := m.Actors()
	summaries := make([]ActorSummary, 0, len(actors))
	for _, a := range actors {
		if s, err := m.ActorSummary(a); err == nil {
			summaries = append(summaries, *s)
		}
	}

	critical := m.anomalies.Filter(func(r AnomalyRecord) bool { return r.Critical() })

	last := m.anomalies.Last(recent)
	recentOut := make([]RecentAnomaly, len(last))
	for i, r := range last {
		recentOut[i] = RecentAnomaly{
			ID:        r.ID,
			Actor:     r.Actor,
			Timestamp: r.Timestamp,
			RiskScore: r.RiskScore,
			Types:     r.Types(),
		}
	}

	return &Dashboard{
		Timestamp:         m.clock().UTC(),
		TotalActors:       len(actors),
		TotalAnomalies:    m.anomalies.Len(),
		CriticalAnomalies: len(critical),
		Summaries:         summaries,
		RecentAnomalies:   recentOut,
	}
}

// Simulation kinds accepted by Simulate.
const (
	SimulateUnauthorizedAction     = "unauthorized_action"
	SimulateUnauthorizedDataAccess = "unauthorized_data_access"
	SimulateWorkflowManipulation   = "workflow_manipulation"
)

// Simulate injects a synthetic anomalous event for exercising alerting paths.
func (m *Monitor) Simulate(actor, kind string) (Result, error) {
	action := "TEST_UNAUTHORIZED_ACTION"
	metadata := map[string]string{}

	switch kind {
	case SimulateUnauthorizedAction:
		action = "DELETE_ALL_DATA"
	case SimulateUnauthorizedDataAccess:
		metadata[MetaDataAccess] = "admin_panel"
	case SimulateWorkflowManipulation:
		actor = policy.ActorDataAnalysis
		action = policy.ActionWorkflowStarted
	default:
		return Result{}, faults.NewInvalidInputError(fmt.Sprintf("unknown simulation kind %q", kind), nil).
			WithOperation("simulate")
	}

	m.logger.Info().Str("actor", actor).Str("kind", kind).Msg("Simulating anomaly")
	return m.RecordEvent(actor, action, metadata), nil
}
