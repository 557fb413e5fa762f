package workers

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/engine"
	"github.com/openfleet/openfleet/pkg/faults"
	"github.com/openfleet/openfleet/pkg/fleet"
	"github.com/openfleet/openfleet/pkg/policy"
)

// HistorySource returns the maintenance history of the whole fleet.
// *fleet.MemoryProvider satisfies it.
type HistorySource interface {
	AllHistory(ctx context.Context) ([]fleet.MaintenanceRecord, error)
}

const (
	topRecurringIssues  = 5
	systemicVehicleMark = 3
)

var severityWeight = map[string]float64{
	"critical": 1.0,
	"high":     0.7,
	"medium":   0.4,
	"low":      0.2,
}

// ManufacturingInsights mines root-cause data across the fleet.
type ManufacturingInsights struct {
	actor
	history HistorySource
}

var _ engine.InsightWorker = (*ManufacturingInsights)(nil)

// NewManufacturingInsights creates the insights worker.
func NewManufacturingInsights(history HistorySource, recorder Recorder, logger zerolog.Logger, opts ...Option) *ManufacturingInsights {
	return &ManufacturingInsights{
		actor:   newActor(policy.ActorManufacturingInsights, recorder, logger, opts),
		history: history,
	}
}

// DataDomains implements engine.Worker.
func (w *ManufacturingInsights) DataDomains() []string {
	return []string{policy.DataMaintenanceHistory, policy.DataFeedback, policy.DataInsights}
}

// RefreshInsights implements engine.InsightWorker.
func (w *ManufacturingInsights) RefreshInsights(ctx context.Context) (*engine.InsightReport, error) {
	if w.history == nil {
		return nil, faults.NewInvalidInputError("no maintenance history source configured", nil).WithResource(w.name)
	}

	w.record(ctx, policy.ActionInsightsRefresh, policy.DataMaintenanceHistory, nil)
	records, err := w.history.AllHistory(ctx)
	if err != nil {
		return nil, err
	}

	report := AnalyzePatterns(records)
	report.AnalyzedAt = w.clock().UTC()
	w.record(ctx, policy.ActionInsightsRefresh, policy.DataInsights, nil)

	w.logger.Debug().
		Int("rca_records", report.TotalRCARecords).
		Int("unique_issues", report.UniqueIssues).
		Msg("Manufacturing insights refreshed")
	return report, nil
}

type patternAcc struct {
	engine.IssuePattern
	vehicles     map[string]struct{}
	codes        map[string]struct{}
	totalMileage float64
}

// AnalyzePatterns groups the records carrying root-cause data by reported
// issue and ranks the groups by impact, highest first. The first record of
// each group supplies its root cause fields.
func AnalyzePatterns(records []fleet.MaintenanceRecord) *engine.InsightReport {
	groups := make(map[string]*patternAcc)
	total := 0
	for i := range records {
		r := &records[i]
		if r.RCA == nil {
			continue
		}
		total++
		acc, ok := groups[r.IssueReported]
		if !ok {
			acc = &patternAcc{
				IssuePattern: engine.IssuePattern{
					Issue:                 r.IssueReported,
					RootCause:             r.RCA.Cause,
					CorrectiveAction:      r.RCA.CorrectiveAction,
					PreventiveAction:      r.RCA.PreventiveAction,
					Severity:              r.RCA.Severity,
					ManufacturingFeedback: r.RCA.ManufacturingFeedback,
				},
				vehicles: make(map[string]struct{}),
				codes:    make(map[string]struct{}),
			}
			groups[r.IssueReported] = acc
		}
		acc.Occurrences++
		acc.vehicles[r.VehicleID] = struct{}{}
		for _, c := range r.DiagnosticCodes {
			acc.codes[c] = struct{}{}
		}
		acc.TotalCost += r.Cost
		acc.totalMileage += r.MileageAtService
	}

	patterns := make([]engine.IssuePattern, 0, len(groups))
	for _, acc := range groups {
		p := acc.IssuePattern
		p.AffectedVehicles = setKeys(acc.vehicles)
		p.VehicleCount = len(p.AffectedVehicles)
		p.DTCCodes = setKeys(acc.codes)
		p.AvgCost = math.Floor(p.TotalCost / float64(p.Occurrences))
		p.AvgMileage = math.Floor(acc.totalMileage / float64(p.Occurrences))
		p.Impact = Impact(p)
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Impact != patterns[j].Impact {
			return patterns[i].Impact > patterns[j].Impact
		}
		return patterns[i].Issue < patterns[j].Issue
	})

	return &engine.InsightReport{
		TotalRCARecords: total,
		UniqueIssues:    len(patterns),
		Patterns:        patterns,
	}
}

// Impact scores a pattern in [0, 1] from its frequency, spread, cost and
// severity, rounded to two decimals.
func Impact(p engine.IssuePattern) float64 {
	weight, ok := severityWeight[strings.ToLower(p.Severity)]
	if !ok {
		weight = 0.5
	}
	score := math.Min(float64(p.Occurrences)/10, 1)*0.3 +
		math.Min(float64(p.VehicleCount)/5, 1)*0.2 +
		math.Min(p.TotalCost/50000, 1)*0.2 +
		weight*0.3
	return math.Round(score*100) / 100
}

// ManufacturingReport is the executive view of an InsightReport.
type ManufacturingReport struct {
	TotalIssuesAnalyzed  int                   `json:"total_issues_analyzed"`
	UniqueIssueTypes     int                   `json:"unique_issue_types"`
	CriticalIssues       int                   `json:"critical_issues"`
	MediumIssues         int                   `json:"medium_issues"`
	LowIssues            int                   `json:"low_issues"`
	TotalFinancialImpact float64               `json:"total_financial_impact"`
	TopRecurring         []engine.IssuePattern `json:"top_recurring"`
	Systemic             []engine.IssuePattern `json:"systemic"`
}

// Report condenses an insight report. High severity counts as critical, and an
// issue seen on three or more vehicles is systemic.
func Report(r *engine.InsightReport) ManufacturingReport {
	out := ManufacturingReport{
		TotalIssuesAnalyzed: r.TotalRCARecords,
		UniqueIssueTypes:    r.UniqueIssues,
		TopRecurring:        []engine.IssuePattern{},
		Systemic:            []engine.IssuePattern{},
	}
	for i, p := range r.Patterns {
		switch strings.ToLower(p.Severity) {
		case "critical", "high":
			out.CriticalIssues++
		case "medium":
			out.MediumIssues++
		case "low":
			out.LowIssues++
		}
		out.TotalFinancialImpact += p.TotalCost
		if i < topRecurringIssues {
			out.TopRecurring = append(out.TopRecurring, p)
		}
		if p.VehicleCount >= systemicVehicleMark {
			out.Systemic = append(out.Systemic, p)
		}
	}
	return out
}

func setKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
