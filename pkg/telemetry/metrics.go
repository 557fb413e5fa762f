package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for OpenFleet.
type Metrics struct {
	config MetricsConfig

	// Workflow metrics
	workflowsStarted   *prometheus.CounterVec
	workflowsCompleted *prometheus.CounterVec
	workflowDuration   *prometheus.HistogramVec

	// Stage metrics
	stageExecutions *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	workerErrors    *prometheus.CounterVec

	// Scoring metrics
	predictions *prometheus.CounterVec

	// Behavior monitoring metrics
	activityEvents *prometheus.CounterVec
	anomalies      *prometheus.CounterVec

	activeWorkflows prometheus.Gauge

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		workflowsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_started_total",
				Help:      "Total number of maintenance workflows started",
			},
			[]string{"type"},
		),
		workflowsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_finished_total",
				Help:      "Total number of workflows that reached a terminal status",
			},
			[]string{"status"},
		),
		workflowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_duration_seconds",
				Help:      "Duration of workflows in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		stageExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_executions_total",
				Help:      "Total number of pipeline stages by outcome",
			},
			[]string{"stage", "outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),
		workerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_errors_total",
				Help:      "Total number of worker failures",
			},
			[]string{"worker"},
		),

		predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "component_predictions_total",
				Help:      "Total number of component failure predictions emitted",
			},
			[]string{"component", "severity"},
		),

		activityEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activity_events_total",
				Help:      "Total number of actor activity events recorded",
			},
			[]string{"actor"},
		),
		anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "anomalies_total",
				Help:      "Total number of behavioral anomalies detected",
			},
			[]string{"type", "severity"},
		),

		activeWorkflows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_workflows",
				Help:      "Current number of in-progress workflows",
			},
		),
	}

	registry.MustRegister(
		m.workflowsStarted,
		m.workflowsCompleted,
		m.workflowDuration,
		m.stageExecutions,
		m.stageDuration,
		m.workerErrors,
		m.predictions,
		m.activityEvents,
		m.anomalies,
		m.activeWorkflows,
	)

	return m, nil
}

// Workflow Metrics

// RecordWorkflowStarted increments the counter for started workflows.
func (m *Metrics) RecordWorkflowStarted(workflowType string) {
	if m == nil || m.workflowsStarted == nil {
		return
	}
	m.workflowsStarted.WithLabelValues(workflowType).Inc()
	m.activeWorkflows.Inc()
}

// RecordWorkflowFinished records a terminal workflow with its status and duration.
func (m *Metrics) RecordWorkflowFinished(status string, duration time.Duration) {
	if m == nil || m.workflowsCompleted == nil {
		return
	}
	m.workflowsCompleted.WithLabelValues(status).Inc()
	m.workflowDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeWorkflows.Dec()
}

// Stage Metrics

// RecordStage records one pipeline stage outcome (completed, skipped, failed).
func (m *Metrics) RecordStage(stage, outcome string, duration time.Duration) {
	if m == nil || m.stageExecutions == nil {
		return
	}
	m.stageExecutions.WithLabelValues(stage, outcome).Inc()
	if outcome != "skipped" {
		m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	}
}

// RecordWorkerError records a worker failure.
func (m *Metrics) RecordWorkerError(worker string) {
	if m == nil || m.workerErrors == nil {
		return
	}
	m.workerErrors.WithLabelValues(worker).Inc()
}

// RecordPrediction records an emitted component prediction.
func (m *Metrics) RecordPrediction(component, severity string) {
	if m == nil || m.predictions == nil {
		return
	}
	m.predictions.WithLabelValues(component, severity).Inc()
}

// Monitoring Metrics

// RecordActivity records an actor activity event.
func (m *Metrics) RecordActivity(actor string) {
	if m == nil || m.activityEvents == nil {
		return
	}
	m.activityEvents.WithLabelValues(actor).Inc()
}

// RecordAnomaly records a detected anomaly finding.
func (m *Metrics) RecordAnomaly(anomalyType, severity string) {
	if m == nil || m.anomalies == nil {
		return
	}
	m.anomalies.WithLabelValues(anomalyType, severity).Inc()
}

// Registry returns the private registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
// Serve errors are reported through the returned channel.
func (m *Metrics) StartMetricsServer() <-chan error {
	errCh := make(chan error, 1)
	if m == nil || !m.config.Enabled {
		close(errCh)
		return errCh
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		defer close(errCh)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return errCh
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
