package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/openfleet/openfleet/pkg/config"
	"github.com/openfleet/openfleet/pkg/engine"
	"github.com/openfleet/openfleet/pkg/faults"
	"github.com/openfleet/openfleet/pkg/monitor"
	"github.com/openfleet/openfleet/pkg/policy"
	"github.com/openfleet/openfleet/pkg/telemetry"
)

func testNow() time.Time {
	return time.Date(2024, 4, 2, 12, 0, 0, 0, time.UTC)
}

func testConfig(t *testing.T, archive bool) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Fleet.DataFile = "../fleet/testdata/fleet.yaml"
	cfg.Monitor.Timezone = "UTC"
	cfg.Store.Enabled = archive
	cfg.Store.Path = filepath.Join(t.TempDir(), "data", "fleet.db")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) (*App, *telemetry.Telemetry) {
	t.Helper()
	tel := telemetry.NewNop()
	a, err := New(context.Background(), cfg, WithTelemetry(tel), WithClock(testNow))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a, tel
}

type eventLog struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (l *eventLog) add(ev telemetry.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func TestNew_WithoutArchive(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t, false))

	if a.Store != nil {
		t.Error("expected no archive when the store is disabled")
	}
	if got := a.Fleet.VehicleIDs(); len(got) != 2 {
		t.Errorf("expected the fixture fleet, got %v", got)
	}
	if a.Orchestrator.Identity() != policy.ActorOrchestrator {
		t.Errorf("unexpected orchestrator identity %s", a.Orchestrator.Identity())
	}
	if len(a.Rules.Rules()) != len(policy.BuiltinRules()) {
		t.Errorf("expected built-in rules to be loaded, got %d", len(a.Rules.Rules()))
	}

	wf, err := a.Orchestrator.Orchestrate(context.Background(), "VEH001")
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}
	if wf.Status != engine.StatusCompleted {
		t.Errorf("expected completed workflow, got %s", wf.Status)
	}
	if n := len(a.Monitor.AnomalyReport(0)); n != 0 {
		t.Errorf("expected a clean run, got %d anomalies", n)
	}
}

func TestNew_ArchivesWorkflowAndActivity(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t, true))
	ctx := context.Background()

	if a.Store == nil {
		t.Fatal("expected the archive to be opened")
	}

	wf, err := a.Orchestrator.Orchestrate(ctx, "VEH001")
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	rec, err := a.Store.GetWorkflow(ctx, wf.ID)
	if err != nil {
		t.Fatalf("expected archived workflow: %v", err)
	}
	if rec.Status != string(engine.StatusCompleted) || len(rec.Steps) != len(wf.Steps) {
		t.Errorf("archived workflow does not match: %+v", rec)
	}

	activity, err := a.Store.ListActivity(ctx, nil, &wf.ID, 1000, 0)
	if err != nil {
		t.Fatalf("ListActivity failed: %v", err)
	}
	if len(activity) != len(a.Recorder.Log(0)) {
		t.Errorf("expected every recorded event archived, got %d of %d", len(activity), len(a.Recorder.Log(0)))
	}
}

func TestNew_ArchivesAnomaliesAndPublishesAlerts(t *testing.T) {
	a, tel := newTestApp(t, testConfig(t, true))
	ctx := context.Background()

	var log eventLog
	tel.Events.Subscribe(log.add, telemetry.FilterByType(telemetry.EventTypeAnomalyDetected, telemetry.EventTypeCriticalAlert))

	if _, err := a.Monitor.Simulate(policy.ActorScheduling, monitor.SimulateUnauthorizedDataAccess); err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	rows, err := a.Store.ListAnomalies(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("ListAnomalies failed: %v", err)
	}
	if len(rows) != 1 || !rows[0].Critical || rows[0].Actor != policy.ActorScheduling {
		t.Errorf("expected one critical archived anomaly, got %+v", rows)
	}

	types := log.types()
	if len(types) != 2 || types[0] != telemetry.EventTypeAnomalyDetected || types[1] != telemetry.EventTypeCriticalAlert {
		t.Errorf("expected anomaly then critical alert events, got %v", types)
	}
}

func TestNew_MissingFleetData(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.Fleet.DataFile = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := New(context.Background(), cfg, WithTelemetry(telemetry.NewNop())); err == nil {
		t.Error("expected a missing dataset to fail assembly")
	}
}

func TestWatchPolicies_NoSources(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t, false))
	if err := a.WatchPolicies(context.Background()); err != nil {
		t.Errorf("expected no-op without policy sources, got %v", err)
	}
}

func TestNew_UngovernedActorIsCompliant(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t, false))

	res := a.Monitor.RecordEvent("reporting-service", "report.read", nil)
	if !res.IsNormal || len(res.Findings) != 0 || res.RiskScore != 0 {
		t.Errorf("expected an actor without a policy to be compliant, got %+v", res)
	}
	if n := len(a.Monitor.AnomalyReport(0)); n != 0 {
		t.Errorf("expected no anomalies, got %d", n)
	}
}

func TestOrchestrate_UnknownVehicleIsNotFound(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t, false))

	wf, err := a.Orchestrator.Orchestrate(context.Background(), "VEH404")
	if !faults.IsWorkerFailure(err) {
		t.Fatalf("expected a worker failure, got %v", err)
	}
	if !faults.IsNotFound(err) {
		t.Errorf("expected the missing vehicle to surface as not found, got %v", err)
	}
	if wf == nil || wf.Status != engine.StatusFailed {
		t.Errorf("expected a failed workflow, got %+v", wf)
	}
}
