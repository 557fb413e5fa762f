package monitor

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"
)

// Metadata keys the checks read.
const (
	MetaDataAccess = "dataAccess"
	MetaWorkflowID = "workflowId"
	MetaVehicleID  = "vehicleId"
)

// Severity grades a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Weight is the severity's contribution to a risk score.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.7
	case SeverityMedium:
		return 0.4
	case SeverityLow:
		return 0.2
	default:
		return 0.5
	}
}

// Validate checks if the severity is valid.
func (s Severity) Validate() error {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return nil
	default:
		return fmt.Errorf("invalid severity: %s", s)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = Severity(strings.ToLower(str))
	return s.Validate()
}

// ParseSeverity maps a rule-declared severity to a Severity, defaulting to medium.
func ParseSeverity(s string) Severity {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Validate() != nil {
		return SeverityMedium
	}
	return sev
}

// AnomalyType names the check that produced a finding.
type AnomalyType string

const (
	AnomalyUnauthorizedAction     AnomalyType = "UNAUTHORIZED_ACTION"
	AnomalyUnauthorizedDataAccess AnomalyType = "UNAUTHORIZED_DATA_ACCESS"
	AnomalyRateLimitExceeded      AnomalyType = "RATE_LIMIT_EXCEEDED"
	AnomalyUnusualTiming          AnomalyType = "UNUSUAL_TIMING"
	AnomalyWorkflowManipulation   AnomalyType = "WORKFLOW_MANIPULATION"
	AnomalyPolicyRule             AnomalyType = "POLICY_RULE"
)

// Event is one actor action as seen by the monitor.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Actor     string            `json:"actor"`
	Action    string            `json:"action"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Clone returns a copy that shares no maps with e.
func (e Event) Clone() Event {
	e.Metadata = maps.Clone(e.Metadata)
	return e
}

// Finding is one check's verdict on an event.
type Finding struct {
	Type     AnomalyType `json:"type"`
	Severity Severity    `json:"severity"`
	Detail   string      `json:"detail"`
	EventID  string      `json:"event_id,omitempty"`

	// Rule names the advisory rule for POLICY_RULE findings.
	Rule string `json:"rule,omitempty"`
}

// Result is the outcome of checking one event.
type Result struct {
	IsNormal  bool      `json:"is_normal"`
	Findings  []Finding `json:"findings"`
	RiskScore float64   `json:"risk_score"`

	// AnomalyID is set when the event was logged as an anomaly.
	AnomalyID string `json:"anomaly_id,omitempty"`
}

// HasCritical reports whether any finding is critical.
func (r Result) HasCritical() bool {
	return hasCritical(r.Findings)
}

func hasCritical(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Anomaly statuses.
const (
	StatusDetected = "detected"
	ActionAlert    = "ALERT_SENT"
)

// AnomalyRecord is an anomalous event with its findings, kept in the anomaly log.
type AnomalyRecord struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Actor       string    `json:"actor"`
	Event       Event     `json:"event"`
	Findings    []Finding `json:"findings"`
	RiskScore   float64   `json:"risk_score"`
	Status      string    `json:"status"`
	ActionTaken string    `json:"action_taken,omitempty"`
}

// Types lists the finding types in order.
func (a AnomalyRecord) Types() []AnomalyType {
	out := make([]AnomalyType, len(a.Findings))
	for i, f := range a.Findings {
		out[i] = f.Type
	}
	return out
}

// Critical reports whether the record carries a critical finding.
func (a AnomalyRecord) Critical() bool {
	return hasCritical(a.Findings)
}

func (a AnomalyRecord) clone() AnomalyRecord {
	a.Event = a.Event.Clone()
	a.Findings = append([]Finding(nil), a.Findings...)
	return a
}

// Baseline is a snapshot of one actor's behavior counters.
type Baseline struct {
	Actor           string         `json:"actor"`
	TotalActions    int            `json:"total_actions"`
	ActionFrequency map[string]int `json:"action_frequency"`
	AnomalyCount    int            `json:"anomaly_count"`
	LastActionAt    time.Time      `json:"last_action_at"`
}

// RiskLevel buckets an actor by anomaly count.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
)

// RiskLevelFor returns HIGH above 5 anomalies, MEDIUM above 2, else LOW.
func RiskLevelFor(anomalies int) RiskLevel {
	switch {
	case anomalies > 5:
		return RiskHigh
	case anomalies > 2:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ActorSummary is the per-actor view used by the dashboard.
type ActorSummary struct {
	Actor           string         `json:"actor"`
	TotalActions    int            `json:"total_actions"`
	AnomalyCount    int            `json:"anomaly_count"`
	AnomalyRate     string         `json:"anomaly_rate"`
	ActionBreakdown map[string]int `json:"action_breakdown"`
	LastActivity    time.Time      `json:"last_activity"`
	RiskLevel       RiskLevel      `json:"risk_level"`
}

// RecentAnomaly is the condensed anomaly shown on the dashboard.
type RecentAnomaly struct {
	ID        string        `json:"id"`
	Actor     string        `json:"actor"`
	Timestamp time.Time     `json:"timestamp"`
	RiskScore float64       `json:"risk_score"`
	Types     []AnomalyType `json:"types"`
}

// Dashboard is a point-in-time security overview.
type Dashboard struct {
	Timestamp         time.Time       `json:"timestamp"`
	TotalActors       int             `json:"total_actors"`
	TotalAnomalies    int             `json:"total_anomalies"`
	CriticalAnomalies int             `json:"critical_anomalies"`
	Summaries         []ActorSummary  `json:"summaries"`
	RecentAnomalies   []RecentAnomaly `json:"recent_anomalies"`
}
