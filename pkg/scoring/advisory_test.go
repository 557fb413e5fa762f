package scoring

import (
	"strings"
	"testing"

	"github.com/openfleet/openfleet/pkg/fleet"
)

func TestUrgencyOf(t *testing.T) {
	tests := []struct {
		name  string
		preds []ComponentRisk
		want  UrgencyLevel
	}{
		{"none", nil, UrgencyLow},
		{"medium only", []ComponentRisk{{Component: ComponentOil, Severity: SeverityMedium}}, UrgencyMedium},
		{"high", []ComponentRisk{{Component: ComponentOil, Severity: SeverityHigh}}, UrgencyHigh},
		{"critical wins", []ComponentRisk{
			{Component: ComponentEngine, Severity: SeverityCritical},
			{Component: ComponentOil, Severity: SeverityHigh},
		}, UrgencyCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UrgencyOf(&DiagnosisResult{Predictions: tt.preds})
			if got.Level != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got.Level)
			}
		})
	}
}

func TestEstimateCostAndDuration(t *testing.T) {
	preds := []ComponentRisk{{Component: ComponentEngine}, {Component: ComponentOil}}

	cost := EstimateCost(preds)
	if cost.Min != 6500 || cost.Max != 18000 || cost.Currency != "INR" {
		t.Errorf("Unexpected cost estimate: %+v", cost)
	}

	d := EstimateDuration(preds)
	if d.Minutes != 225 || d.Hours != 4 || d.Formatted != "3h 45m" {
		t.Errorf("Unexpected duration estimate: %+v", d)
	}

	if c := EstimateCost(nil); c.Min != 0 || c.Max != 0 {
		t.Errorf("Expected zero cost for no predictions, got %+v", c)
	}
}

func TestSummary(t *testing.T) {
	r := &DiagnosisResult{
		Predictions: []ComponentRisk{
			{Component: ComponentEngine, Probability: 0.8},
			{Component: ComponentOil, Probability: 0.59},
		},
		RecommendedAction: "URGENT: Schedule immediate service for Engine",
	}

	s := Summary(r)
	if !strings.Contains(s, "Engine, Oil System") || !strings.Contains(s, "80% failure probability") {
		t.Errorf("Unexpected summary: %s", s)
	}

	if !strings.HasPrefix(Summary(&DiagnosisResult{}), "Vehicle is in good condition") {
		t.Error("Expected good-condition summary for empty diagnosis")
	}
}

func TestExtractFailurePatterns(t *testing.T) {
	records := []fleet.MaintenanceRecord{
		{IssueReported: "Brake Noise", MileageAtService: 20000, DiagnosticCodes: []string{"C1234"}},
		{IssueReported: "Brake Noise", MileageAtService: 30000, DiagnosticCodes: []string{"C0035", "C1234"},
			RCA: &fleet.RootCause{Severity: "medium"}},
		{IssueReported: "Oil Leak", MileageAtService: 45000, RCA: &fleet.RootCause{Severity: "high"}},
		{IssueReported: "None", MileageAtService: 50000},
	}

	patterns := ExtractFailurePatterns(records)
	if len(patterns) != 2 {
		t.Fatalf("Expected 2 patterns, got %d", len(patterns))
	}

	brake := patterns[0]
	if brake.Issue != "Brake Noise" || brake.Occurrences != 2 || brake.AvgMileage != 25000 {
		t.Errorf("Unexpected brake pattern: %+v", brake)
	}
	if len(brake.DTCCodes) != 2 || brake.DTCCodes[0] != "C0035" {
		t.Errorf("Expected sorted unique codes, got %v", brake.DTCCodes)
	}
	if patterns[1].Severity != "high" {
		t.Errorf("Expected oil leak severity from RCA, got %s", patterns[1].Severity)
	}
}
