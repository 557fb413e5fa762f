package stores

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/engine"
	"github.com/openfleet/openfleet/pkg/faults"
	"github.com/openfleet/openfleet/pkg/monitor"
)

var testTime = time.Date(2024, 4, 2, 12, 0, 0, 0, time.UTC)

// setupTestStore creates a migrated SQLite store in a temporary directory.
// A file is used rather than :memory: so every pooled connection sees the same database.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "fleet.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	store.now = func() time.Time { return testTime }

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func strPtr(s string) *string { return &s }

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "fleet.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); !faults.IsInvalidInput(err) {
		t.Errorf("expected InvalidInput, got %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tables := []string{"workflows", "workflow_steps", "activity", "anomalies"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	v, dirty, err := store.SchemaVersion()
	if err != nil {
		t.Fatalf("failed to read schema version: %v", err)
	}
	if v != 1 || dirty {
		t.Errorf("expected clean version 1, got %d (dirty=%v)", v, dirty)
	}

	// Re-applying is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second migrate failed: %v", err)
	}

	if err := store.MigrateDown(ctx); err != nil {
		t.Fatalf("failed to revert migrations: %v", err)
	}
	var count int
	if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflows").Scan(&count); err == nil {
		t.Error("expected workflows table to be dropped")
	}
}

// TestWorkflowCRUD tests workflow persistence and step replacement
func TestWorkflowCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	wf := &WorkflowRecord{
		ID:        "WF-1",
		Type:      engine.WorkflowTypeMaintenance,
		Status:    string(engine.StatusStarted),
		VehicleID: strPtr("VEH001"),
		StartedAt: testTime,
		Input:     `{"vehicle_id":"VEH001"}`,
		Steps: []StepRecord{
			{Position: 0, Stage: string(engine.StageAnalysis), Result: strPtr(`{}`), Timestamp: testTime},
		},
	}
	if err := store.SaveWorkflow(ctx, wf); err != nil {
		t.Fatalf("failed to save workflow: %v", err)
	}

	got, err := store.GetWorkflow(ctx, "WF-1")
	if err != nil {
		t.Fatalf("failed to get workflow: %v", err)
	}
	if got.Status != "started" || got.VehicleID == nil || *got.VehicleID != "VEH001" {
		t.Errorf("unexpected workflow %+v", got)
	}
	if len(got.Steps) != 1 || got.Steps[0].Stage != string(engine.StageAnalysis) {
		t.Errorf("unexpected steps %+v", got.Steps)
	}
	if !got.StartedAt.Equal(testTime) {
		t.Errorf("expected started_at %v, got %v", testTime, got.StartedAt)
	}

	// Completing the workflow replaces the step list.
	done := testTime.Add(time.Minute)
	wf.Status = string(engine.StatusCompleted)
	wf.CompletedAt = &done
	wf.Result = strPtr(`{"summary":"ok"}`)
	wf.Steps = append(wf.Steps, StepRecord{
		Position: 1, Stage: string(engine.StageDiagnosis), Skipped: true,
		Reason: strPtr("no anomalies"), Timestamp: done,
	})
	if err := store.SaveWorkflow(ctx, wf); err != nil {
		t.Fatalf("failed to update workflow: %v", err)
	}

	got, err = store.GetWorkflow(ctx, "WF-1")
	if err != nil {
		t.Fatalf("failed to get workflow: %v", err)
	}
	if got.Status != "completed" || got.CompletedAt == nil || got.Result == nil {
		t.Errorf("expected completed workflow, got %+v", got)
	}
	if len(got.Steps) != 2 || !got.Steps[1].Skipped || *got.Steps[1].Reason != "no anomalies" {
		t.Errorf("unexpected steps %+v", got.Steps)
	}

	if err := store.DeleteWorkflow(ctx, "WF-1"); err != nil {
		t.Fatalf("failed to delete workflow: %v", err)
	}
	if _, err := store.GetWorkflow(ctx, "WF-1"); !faults.IsNotFound(err) {
		t.Errorf("expected NotFound after delete, got %v", err)
	}
	if err := store.DeleteWorkflow(ctx, "WF-1"); !faults.IsNotFound(err) {
		t.Errorf("expected NotFound deleting twice, got %v", err)
	}

	var steps int
	if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_steps").Scan(&steps); err != nil {
		t.Fatalf("failed to count steps: %v", err)
	}
	if steps != 0 {
		t.Errorf("expected steps to cascade, %d left", steps)
	}
}

func TestWorkflowStatusConstraint(t *testing.T) {
	store := setupTestStore(t)
	err := store.SaveWorkflow(context.Background(), &WorkflowRecord{
		ID: "WF-X", Type: "x", Status: "paused", StartedAt: testTime, Input: "{}",
	})
	if err == nil {
		t.Error("expected unknown status to be rejected")
	}
}

func TestListWorkflows(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	seed := []struct {
		id, status, vehicle string
		offset              time.Duration
	}{
		{"WF-1", "completed", "VEH001", 0},
		{"WF-2", "failed", "VEH002", time.Minute},
		{"WF-3", "completed", "VEH002", 2 * time.Minute},
	}
	for _, s := range seed {
		err := store.SaveWorkflow(ctx, &WorkflowRecord{
			ID: s.id, Type: engine.WorkflowTypeMaintenance, Status: s.status,
			VehicleID: strPtr(s.vehicle), StartedAt: testTime.Add(s.offset), Input: "{}",
		})
		if err != nil {
			t.Fatalf("failed to save %s: %v", s.id, err)
		}
	}

	all, err := store.ListWorkflows(ctx, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list workflows: %v", err)
	}
	if len(all) != 3 || all[0].ID != "WF-3" {
		t.Errorf("expected newest first, got %d rows starting with %s", len(all), all[0].ID)
	}

	completed, err := store.ListWorkflows(ctx, strPtr("completed"), nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list workflows: %v", err)
	}
	if len(completed) != 2 {
		t.Errorf("expected 2 completed workflows, got %d", len(completed))
	}

	veh2, err := store.ListWorkflows(ctx, strPtr("completed"), strPtr("VEH002"), 10, 0)
	if err != nil {
		t.Fatalf("failed to list workflows: %v", err)
	}
	if len(veh2) != 1 || veh2[0].ID != "WF-3" {
		t.Errorf("expected only WF-3, got %+v", veh2)
	}

	page, err := store.ListWorkflows(ctx, nil, nil, 1, 1)
	if err != nil {
		t.Fatalf("failed to list workflows: %v", err)
	}
	if len(page) != 1 || page[0].ID != "WF-2" {
		t.Errorf("expected WF-2 on the second page, got %+v", page)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	if stats.Workflows != 3 || stats.WorkflowsByStat["completed"] != 2 || stats.WorkflowsByStat["failed"] != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestArchiveWorkflow(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	done := testTime.Add(3 * time.Second)
	wf := &engine.Workflow{
		ID:          "WF-abc",
		Type:        engine.WorkflowTypeMaintenance,
		Status:      engine.StatusCompleted,
		StartedAt:   testTime,
		CompletedAt: &done,
		Input:       map[string]any{"vehicle_id": "VEH001"},
		Steps: []engine.Step{
			{Stage: engine.StageAnalysis, Timestamp: testTime, Result: map[string]any{"anomalies": 2}},
			{Stage: engine.StageDiagnosis, Timestamp: testTime, Skipped: true, Reason: "healthy"},
		},
		Result: map[string]string{"summary": "done"},
	}

	var archiver engine.Archiver = store
	if err := archiver.ArchiveWorkflow(ctx, wf); err != nil {
		t.Fatalf("failed to archive workflow: %v", err)
	}

	got, err := store.GetWorkflow(ctx, "WF-abc")
	if err != nil {
		t.Fatalf("failed to get workflow: %v", err)
	}
	if got.VehicleID == nil || *got.VehicleID != "VEH001" {
		t.Errorf("expected vehicle id from the input, got %v", got.VehicleID)
	}
	if got.Result == nil || *got.Result != `{"summary":"done"}` {
		t.Errorf("unexpected result %v", got.Result)
	}
	if len(got.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(got.Steps))
	}
	if got.Steps[1].Result != nil || got.Steps[1].Reason == nil {
		t.Errorf("expected skipped step without result, got %+v", got.Steps[1])
	}

	var payload map[string]int
	if err := json.Unmarshal([]byte(*got.Steps[0].Result), &payload); err != nil || payload["anomalies"] != 2 {
		t.Errorf("unexpected step payload %v (%v)", *got.Steps[0].Result, err)
	}
}

func TestRecordActivity(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	events := []struct {
		ev  monitor.Event
		res monitor.Result
	}{
		{
			ev: monitor.Event{
				ID: "EV-1", Timestamp: testTime, Actor: "diagnosis", Action: "diagnosis.run",
				Metadata: map[string]string{monitor.MetaWorkflowID: "WF-1", monitor.MetaDataAccess: "sensors"},
			},
			res: monitor.Result{IsNormal: true},
		},
		{
			ev: monitor.Event{
				ID: "EV-2", Timestamp: testTime.Add(time.Second), Actor: "diagnosis", Action: "appointment.confirm",
			},
			res: monitor.Result{IsNormal: false, RiskScore: 0.7, AnomalyID: "ANO-1"},
		},
		{
			ev:  monitor.Event{ID: "EV-3", Timestamp: testTime, Actor: "scheduling", Action: "availability.check"},
			res: monitor.Result{IsNormal: true},
		},
	}
	for _, e := range events {
		if err := store.RecordActivity(ctx, e.ev, e.res); err != nil {
			t.Fatalf("failed to record %s: %v", e.ev.ID, err)
		}
	}
	// Duplicate ids are ignored.
	if err := store.RecordActivity(ctx, events[0].ev, events[0].res); err != nil {
		t.Fatalf("duplicate record failed: %v", err)
	}

	diag, err := store.ListActivity(ctx, strPtr("diagnosis"), nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list activity: %v", err)
	}
	if len(diag) != 2 || diag[0].ID != "EV-2" {
		t.Fatalf("expected 2 diagnosis events newest first, got %+v", diag)
	}
	if diag[0].IsNormal || diag[0].AnomalyID == nil || *diag[0].AnomalyID != "ANO-1" {
		t.Errorf("expected anomalous event, got %+v", diag[0])
	}
	if diag[1].DataAccess == nil || *diag[1].DataAccess != "sensors" {
		t.Errorf("expected data access to be extracted, got %+v", diag[1])
	}

	byWorkflow, err := store.ListActivity(ctx, nil, strPtr("WF-1"), 10, 0)
	if err != nil {
		t.Fatalf("failed to list activity: %v", err)
	}
	if len(byWorkflow) != 1 || byWorkflow[0].ID != "EV-1" {
		t.Errorf("expected only EV-1 for WF-1, got %+v", byWorkflow)
	}
}

func TestAnomalies(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := monitor.AnomalyRecord{
		ID:        "ANO-1",
		Timestamp: testTime,
		Actor:     "feedback",
		Event:     monitor.Event{ID: "EV-9", Action: "appointment.confirm"},
		Findings: []monitor.Finding{
			{Type: monitor.AnomalyUnauthorizedAction, Severity: monitor.SeverityCritical, Detail: "not allowed"},
		},
		RiskScore:   1,
		Status:      monitor.StatusDetected,
		ActionTaken: monitor.ActionAlert,
	}

	hook := store.AnomalyHook(zerolog.Nop())
	hook(rec)

	rows, err := store.ListAnomalies(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list anomalies: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(rows))
	}
	row := rows[0]
	if !row.Critical || row.EventID != "EV-9" || row.Types != `["UNAUTHORIZED_ACTION"]` {
		t.Errorf("unexpected anomaly row %+v", row)
	}

	if err := store.UpdateAnomalyStatus(ctx, "ANO-1", "reviewed"); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}
	rows, err = store.ListAnomalies(ctx, strPtr("feedback"), 10, 0)
	if err != nil {
		t.Fatalf("failed to list anomalies: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != "reviewed" {
		t.Errorf("expected reviewed anomaly, got %+v", rows)
	}

	if err := store.UpdateAnomalyStatus(ctx, "ANO-404", "reviewed"); !faults.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}

	none, err := store.ListAnomalies(ctx, strPtr("scheduling"), 10, 0)
	if err != nil {
		t.Fatalf("failed to list anomalies: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no anomalies for another actor, got %d", len(none))
	}
}

func TestTransactions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO workflows (id, type, status, started_at, input, created_at, updated_at)
		VALUES ('WF-tx', 't', 'started', ?, '{}', ?, ?)`, testTime, testTime, testTime)
	if err != nil {
		t.Fatalf("failed to insert in transaction: %v", err)
	}
	if err := store.RollbackTx(tx); err != nil {
		t.Fatalf("failed to roll back: %v", err)
	}

	if _, err := store.GetWorkflow(ctx, "WF-tx"); !faults.IsNotFound(err) {
		t.Errorf("expected rolled back workflow to be absent, got %v", err)
	}
}
