package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/openfleet/openfleet/pkg/fleet"
	"github.com/openfleet/openfleet/pkg/scoring"
)

var errBoom = errors.New("boom")

// gates drives the fake workers' results.
type gates struct {
	requiresDiagnosis   bool
	maintenanceRequired bool
	customerAccepted    bool
	appointmentBooked   bool
	failAt              Stage
}

func allGates() gates {
	return gates{
		requiresDiagnosis:   true,
		maintenanceRequired: true,
		customerAccepted:    true,
		appointmentBooked:   true,
	}
}

// callTrace records which stages were invoked, in order.
type callTrace struct {
	mu     sync.Mutex
	stages []Stage
}

func (c *callTrace) add(s Stage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stages = append(c.stages, s)
}

func (c *callTrace) list() []Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Stage(nil), c.stages...)
}

type fakeBase struct {
	name  string
	g     gates
	trace *callTrace
}

func (b fakeBase) Name() string          { return b.name }
func (b fakeBase) DataDomains() []string { return nil }

func (b fakeBase) hit(stage Stage) error {
	b.trace.add(stage)
	if b.g.failAt == stage {
		return errBoom
	}
	return nil
}

type fakeAnalysis struct{ fakeBase }

func (f fakeAnalysis) Analyze(_ context.Context, vehicleID string) (*AnalysisResult, error) {
	if err := f.hit(StageAnalysis); err != nil {
		return nil, err
	}
	return &AnalysisResult{
		VehicleID:         vehicleID,
		Vehicle:           &fleet.Vehicle{ID: vehicleID, Make: "Tata", Model: "Nexon", OwnerName: "Asha"},
		RequiresDiagnosis: f.g.requiresDiagnosis,
	}, nil
}

type fakeDiagnosis struct{ fakeBase }

func (f fakeDiagnosis) Diagnose(_ context.Context, vehicleID string, _ *AnalysisResult) (*DiagnosisReport, error) {
	if err := f.hit(StageDiagnosis); err != nil {
		return nil, err
	}
	return &DiagnosisReport{
		Diagnosis: scoring.DiagnosisResult{
			VehicleID:   vehicleID,
			OverallRisk: scoring.SeverityHigh,
			Predictions: []scoring.ComponentRisk{{Component: scoring.ComponentBrakes, Probability: 0.6, Severity: scoring.SeverityHigh}},
		},
		MaintenanceRequired: f.g.maintenanceRequired,
		Urgency:             scoring.Urgency{Level: scoring.UrgencyHigh},
	}, nil
}

type fakeEngagement struct{ fakeBase }

func (f fakeEngagement) Engage(_ context.Context, v *fleet.Vehicle, _ *DiagnosisReport) (*EngagementResult, error) {
	if err := f.hit(StageCustomerEngagement); err != nil {
		return nil, err
	}
	intent := "decline"
	if f.g.customerAccepted {
		intent = "accept"
	}
	return &EngagementResult{
		ConversationID:   "CONV-" + v.ID,
		CustomerName:     v.OwnerName,
		Intent:           intent,
		CustomerAccepted: f.g.customerAccepted,
	}, nil
}

type fakeScheduling struct{ fakeBase }

func (f fakeScheduling) Schedule(_ context.Context, v *fleet.Vehicle, _ *DiagnosisReport) (*SchedulingResult, error) {
	if err := f.hit(StageScheduling); err != nil {
		return nil, err
	}
	res := &SchedulingResult{ServiceCenterID: "SC001", ProposedDays: 7}
	if f.g.appointmentBooked {
		res.AppointmentBooked = true
		res.Appointment = &Appointment{
			ID:                "APT-" + v.ID,
			VehicleID:         v.ID,
			ServiceCenterName: "Mumbai Service Center",
			Date:              "2024-03-02",
			Time:              "09:00",
			Status:            "confirmed",
		}
	}
	return res, nil
}

type fakeFeedback struct{ fakeBase }

func (f fakeFeedback) CollectFeedback(_ context.Context, a *Appointment) (*FeedbackResult, error) {
	if err := f.hit(StageFeedback); err != nil {
		return nil, err
	}
	return &FeedbackResult{ID: "FB-" + a.ID, AppointmentID: a.ID, AverageRating: 4.5, Sentiment: "very_positive", NPSScore: 9}, nil
}

type fakeInsights struct{ fakeBase }

func (f fakeInsights) RefreshInsights(context.Context) (*InsightReport, error) {
	if err := f.hit(StageManufacturingInsights); err != nil {
		return nil, err
	}
	return &InsightReport{TotalRCARecords: 3, UniqueIssues: 2}, nil
}

// nilAnalysis returns neither a result nor an error.
type nilAnalysis struct{ fakeBase }

func (nilAnalysis) Analyze(context.Context, string) (*AnalysisResult, error) { return nil, nil }

func newFakeRegistry(g gates, trace *callTrace) *WorkerRegistry {
	reg := NewWorkerRegistry()
	base := func(name string) fakeBase { return fakeBase{name: name, g: g, trace: trace} }
	_ = reg.Register(WorkerDataAnalysis, fakeAnalysis{base(WorkerDataAnalysis)})
	_ = reg.Register(WorkerDiagnosis, fakeDiagnosis{base(WorkerDiagnosis)})
	_ = reg.Register(WorkerCustomerEngagement, fakeEngagement{base(WorkerCustomerEngagement)})
	_ = reg.Register(WorkerScheduling, fakeScheduling{base(WorkerScheduling)})
	_ = reg.Register(WorkerFeedback, fakeFeedback{base(WorkerFeedback)})
	_ = reg.Register(WorkerManufacturingInsights, fakeInsights{base(WorkerManufacturingInsights)})
	return reg
}

type fakeArchiver struct {
	mu        sync.Mutex
	workflows []*Workflow
	err       error
}

func (a *fakeArchiver) ArchiveWorkflow(_ context.Context, wf *Workflow) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.workflows = append(a.workflows, wf)
	return a.err
}
