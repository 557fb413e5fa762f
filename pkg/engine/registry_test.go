package engine

import (
	"context"
	"reflect"
	"testing"

	"github.com/openfleet/openfleet/pkg/faults"
)

func TestRegistry(t *testing.T) {
	reg := newFakeRegistry(allGates(), &callTrace{})

	want := []string{
		WorkerCustomerEngagement, WorkerDataAnalysis, WorkerDiagnosis,
		WorkerFeedback, WorkerManufacturingInsights, WorkerScheduling,
	}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected names %v, got %v", want, got)
	}

	if _, err := reg.Get("missing"); !faults.IsNotFound(err) {
		t.Errorf("Expected NotFound, got %v", err)
	}

	w, err := Lookup[AnalysisWorker](reg, WorkerDataAnalysis)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if _, err := w.Analyze(context.Background(), "VH-1"); err != nil {
		t.Errorf("Analyze failed: %v", err)
	}

	if _, err := Lookup[DiagnosisWorker](reg, WorkerDataAnalysis); !faults.IsInvalidInput(err) {
		t.Errorf("Expected InvalidInput for wrong variant, got %v", err)
	}
	if _, err := Lookup[FeedbackWorker](reg, "missing"); !faults.IsNotFound(err) {
		t.Errorf("Expected NotFound, got %v", err)
	}

	if err := reg.Register("", fakeAnalysis{}); !faults.IsInvalidInput(err) {
		t.Errorf("Expected InvalidInput for empty name, got %v", err)
	}
	if err := reg.Register("x", nil); !faults.IsInvalidInput(err) {
		t.Errorf("Expected InvalidInput for nil worker, got %v", err)
	}
}
