package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/openfleet/openfleet/pkg/faults"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, true},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 1.5 }, true},
		{"zero buffer", func(c *Config) { c.Events.BufferSize = 0 }, true},
		{"zero buffer when disabled", func(c *Config) { c.Events.Enabled = false; c.Events.BufferSize = 0 }, false},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" }, true},
		{"metrics without address", func(c *Config) { c.Metrics.ListenAddress = "" }, true},
		{"bad time format", func(c *Config) { c.Logging.TimeFormat = "iso" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMetricsRecording(t *testing.T) {
	cfg := DefaultConfig().Metrics
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	m.RecordWorkflowStarted("predictive_maintenance")
	m.RecordWorkflowStarted("predictive_maintenance")
	m.RecordWorkflowFinished("completed", time.Second)
	m.RecordStage("diagnosis", "completed", 10*time.Millisecond)
	m.RecordStage("scheduling", "skipped", 0)
	m.RecordAnomaly("UNAUTHORIZED_ACTION", "critical")

	if got := testutil.ToFloat64(m.workflowsStarted.WithLabelValues("predictive_maintenance")); got != 2 {
		t.Errorf("Expected 2 started workflows, got %v", got)
	}
	if got := testutil.ToFloat64(m.activeWorkflows); got != 1 {
		t.Errorf("Expected 1 active workflow, got %v", got)
	}
	if got := testutil.ToFloat64(m.stageExecutions.WithLabelValues("scheduling", "skipped")); got != 1 {
		t.Errorf("Expected 1 skipped stage, got %v", got)
	}
	if got := testutil.ToFloat64(m.anomalies.WithLabelValues("UNAUTHORIZED_ACTION", "critical")); got != 1 {
		t.Errorf("Expected 1 anomaly, got %v", got)
	}
}

func TestDisabledMetricsAreNoOps(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	m.RecordWorkflowStarted("x")
	m.RecordWorkflowFinished("failed", time.Second)
	m.RecordActivity("diagnosis")

	var nilMetrics *Metrics
	nilMetrics.RecordAnomaly("TIMING_ANOMALY", "medium")

	if m.Registry() != nil {
		t.Error("Expected nil registry for disabled metrics")
	}
}

func TestAsyncEventDelivery(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 16, MaxBatchSize: 4, EnableAsync: true})
	if err != nil {
		t.Fatalf("Failed to create publisher: %v", err)
	}

	var mu sync.Mutex
	var got []string
	ep.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
	}, FilterByLevel(EventLevelWarning))

	_ = ep.PublishWorkflowStarted("WF-1", "predictive_maintenance", "VEH001")
	_ = ep.PublishAnomaly("ANOM-1", "scheduling", 0.7, []string{"UNAUTHORIZED_ACTION"})
	_ = ep.PublishCriticalAlert("ANOM-1", "scheduling", "Unauthorized action")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("Expected 2 events at warning or above, got %v", got)
	}
	if got[0] != EventTypeAnomalyDetected || got[1] != EventTypeCriticalAlert {
		t.Errorf("Unexpected event order: %v", got)
	}

	if err := ep.Publish(Event{Type: "late"}); err == nil {
		t.Error("Expected error publishing after shutdown")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		"warn":     zerolog.WarnLevel,
		"disabled": zerolog.Disabled,
		"":         zerolog.InfoLevel,
		"loud":     zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestForWorkflow(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerFrom(zerolog.New(&buf))

	withVehicle := ForWorkflow(l.Component("orchestrator"), "WF-1", "VEH001")
	withVehicle.Info().Msg("Stage completed")
	withoutVehicle := ForWorkflow(l.Zerolog(), "WF-2", "")
	withoutVehicle.Info().Msg("Stage completed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 log lines, got %d", len(lines))
	}
	for _, want := range []string{`"component":"orchestrator"`, `"workflow_id":"WF-1"`, `"vehicle_id":"VEH001"`} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("Expected %s in %s", want, lines[0])
		}
	}
	if strings.Contains(lines[1], "vehicle_id") {
		t.Errorf("Expected no vehicle_id when unknown, got %s", lines[1])
	}
}

func TestRecordErrorTagsKind(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tr := &Tracer{provider: provider, tracer: provider.Tracer(instrumentationName)}

	_, span := tr.StartStageSpan(context.Background(), "WF-1", "diagnosis")
	RecordError(span, faults.NewWorkerFailure("diagnosis failed", errors.New("boom")))
	span.End()

	_, plain := tr.StartPredictSpan(context.Background(), "VEH001")
	RecordError(plain, errors.New("boom"))
	plain.End()

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "stage.diagnosis" {
		t.Errorf("Unexpected span name %s", spans[0].Name())
	}

	kindOf := func(s sdktrace.ReadOnlySpan) string {
		for _, kv := range s.Attributes() {
			if kv.Key == AttrErrorKind {
				return kv.Value.AsString()
			}
		}
		return ""
	}
	if got := kindOf(spans[0]); got != string(faults.KindWorkerFailure) {
		t.Errorf("Expected error kind %s, got %q", faults.KindWorkerFailure, got)
	}
	if got := kindOf(spans[1]); got != "" {
		t.Errorf("Expected no error kind on unclassified error, got %q", got)
	}
}
