package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openfleet/openfleet/pkg/fleet"
)

// UrgencyLevel is the service urgency derived from a diagnosis.
type UrgencyLevel string

const (
	UrgencyCritical UrgencyLevel = "CRITICAL"
	UrgencyHigh     UrgencyLevel = "HIGH"
	UrgencyMedium   UrgencyLevel = "MEDIUM"
	UrgencyLow      UrgencyLevel = "LOW"
)

// Urgency describes how soon a vehicle should be serviced.
type Urgency struct {
	Level          UrgencyLevel `json:"level"`
	Message        string       `json:"message"`
	ScheduleWithin string       `json:"schedule_within"`
}

// CostEstimate is a service cost range.
type CostEstimate struct {
	Min      int    `json:"min"`
	Max      int    `json:"max"`
	Currency string `json:"currency,omitempty"`
}

// DurationEstimate is a service duration.
type DurationEstimate struct {
	Minutes   int    `json:"minutes"`
	Hours     int    `json:"hours"`
	Formatted string `json:"formatted"`
}

var (
	componentCost = map[Component]CostEstimate{
		ComponentEngine:  {Min: 5000, Max: 15000},
		ComponentBrakes:  {Min: 3000, Max: 8000},
		ComponentBattery: {Min: 4000, Max: 7000},
		ComponentOil:     {Min: 1500, Max: 3000},
	}
	defaultCost = CostEstimate{Min: 2000, Max: 5000}

	componentMinutes = map[Component]int{
		ComponentEngine:  180,
		ComponentBrakes:  120,
		ComponentBattery: 60,
		ComponentOil:     45,
	}
	defaultMinutes = 90
)

// UrgencyOf classifies a diagnosis by its most severe prediction.
func UrgencyOf(r *DiagnosisResult) Urgency {
	switch {
	case r.HasSeverity(SeverityCritical):
		return Urgency{Level: UrgencyCritical, Message: "Immediate attention required - Risk of breakdown", ScheduleWithin: "24 hours"}
	case r.HasSeverity(SeverityHigh):
		return Urgency{Level: UrgencyHigh, Message: "Schedule service soon to prevent failure", ScheduleWithin: "7 days"}
	case len(r.Predictions) > 0:
		return Urgency{Level: UrgencyMedium, Message: "Routine maintenance recommended", ScheduleWithin: "14 days"}
	default:
		return Urgency{Level: UrgencyLow, Message: "Vehicle in good condition", ScheduleWithin: "Next scheduled service"}
	}
}

// EstimateCost sums per-component repair cost ranges, in INR.
func EstimateCost(predictions []ComponentRisk) CostEstimate {
	if len(predictions) == 0 {
		return CostEstimate{}
	}
	total := CostEstimate{Currency: "INR"}
	for _, p := range predictions {
		c, ok := componentCost[p.Component]
		if !ok {
			c = defaultCost
		}
		total.Min += c.Min
		total.Max += c.Max
	}
	return total
}

// EstimateDuration sums per-component service durations.
func EstimateDuration(predictions []ComponentRisk) DurationEstimate {
	total := 0
	for _, p := range predictions {
		m, ok := componentMinutes[p.Component]
		if !ok {
			m = defaultMinutes
		}
		total += m
	}
	return DurationEstimate{
		Minutes:   total,
		Hours:     (total + 59) / 60,
		Formatted: fmt.Sprintf("%dh %dm", total/60, total%60),
	}
}

// Summary renders a one-paragraph description of a diagnosis.
func Summary(r *DiagnosisResult) string {
	if len(r.Predictions) == 0 {
		return "Vehicle is in good condition. Continue with regular maintenance schedule."
	}

	names := make([]string, len(r.Predictions))
	for i, p := range r.Predictions {
		names[i] = string(p.Component)
	}
	top := r.Predictions[0]
	return fmt.Sprintf("Detected potential issues with %s. Primary concern: %s with %d%% failure probability. %s",
		strings.Join(names, ", "), top.Component, int(top.Probability*100), r.RecommendedAction)
}

// FailurePattern aggregates how often an issue was reported across maintenance records.
type FailurePattern struct {
	Issue       string   `json:"issue"`
	Occurrences int      `json:"occurrences"`
	AvgMileage  float64  `json:"avg_mileage"`
	DTCCodes    []string `json:"dtc_codes"`
	Severity    string   `json:"severity"`
}

// ExtractFailurePatterns groups issue-bearing records by issue, most frequent first.
func ExtractFailurePatterns(records []fleet.MaintenanceRecord) []FailurePattern {
	type acc struct {
		pattern FailurePattern
		mileage float64
		codes   map[string]struct{}
	}
	byIssue := make(map[string]*acc)

	for i := range records {
		r := &records[i]
		if !r.HasIssue() {
			continue
		}
		a, ok := byIssue[r.IssueReported]
		if !ok {
			sev := "medium"
			if r.RCA != nil && r.RCA.Severity != "" {
				sev = r.RCA.Severity
			}
			a = &acc{
				pattern: FailurePattern{Issue: r.IssueReported, Severity: sev},
				codes:   make(map[string]struct{}),
			}
			byIssue[r.IssueReported] = a
		}
		a.pattern.Occurrences++
		a.mileage += r.MileageAtService
		for _, c := range r.DiagnosticCodes {
			a.codes[c] = struct{}{}
		}
	}

	out := make([]FailurePattern, 0, len(byIssue))
	for _, a := range byIssue {
		p := a.pattern
		p.AvgMileage = float64(int(a.mileage / float64(p.Occurrences)))
		p.DTCCodes = make([]string, 0, len(a.codes))
		for c := range a.codes {
			p.DTCCodes = append(p.DTCCodes, c)
		}
		sort.Strings(p.DTCCodes)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].Issue < out[j].Issue
	})
	return out
}
