package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/openfleet/openfleet/pkg/faults"
)

const instrumentationName = "github.com/openfleet/openfleet"

// Span attribute keys.
var (
	AttrWorkflowID     = attribute.Key("workflow.id")
	AttrWorkflowStatus = attribute.Key("workflow.status")
	AttrVehicleID      = attribute.Key("vehicle.id")
	AttrStage          = attribute.Key("stage")
	AttrStageOutcome   = attribute.Key("stage.outcome")
	AttrSkipReason     = attribute.Key("stage.skip_reason")
	AttrOverallRisk    = attribute.Key("risk.overall")
	AttrPredictions    = attribute.Key("risk.predictions")
	AttrErrorKind      = attribute.Key("error.kind")
)

// Tracer opens the workflow, stage and scoring spans.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a tracer from cfg.Tracing. A disabled tracer, or the
// "none" exporter, records nothing.
func NewTracer(cfg *Config) (*Tracer, error) {
	tc := cfg.Tracing
	if !tc.Enabled || tc.Exporter == "none" {
		return NewNopTracer(), nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	exporter, err := newSpanExporter(tc, cfg.ServiceVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s trace exporter: %w", tc.Exporter, err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.SamplingRate))),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(tc.MaxExportBatchSize),
			sdktrace.WithExportTimeout(tc.ExportTimeout),
		),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(instrumentationName),
	}, nil
}

func newSpanExporter(tc TracingConfig, version string) (sdktrace.SpanExporter, error) {
	switch tc.Exporter {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(tc.Endpoint),
			otlptracegrpc.WithDialOption(grpc.WithUserAgent("openfleet/" + version)),
		}
		if tc.Insecure {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		if len(tc.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(tc.Headers))
		}
		return otlptracegrpc.New(context.Background(), opts...)
	}
	return nil, fmt.Errorf("unsupported trace exporter: %s", tc.Exporter)
}

// NewNopTracer returns a tracer whose spans are never recorded.
func NewNopTracer() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer(instrumentationName)}
}

// StartWorkflowSpan starts the root span of a maintenance workflow.
func (t *Tracer) StartWorkflowSpan(ctx context.Context, workflowID, vehicleID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "workflow.orchestrate", trace.WithAttributes(
		AttrWorkflowID.String(workflowID),
		AttrVehicleID.String(vehicleID),
	))
}

// StartStageSpan starts a child span for one pipeline stage.
func (t *Tracer) StartStageSpan(ctx context.Context, workflowID, stage string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "stage."+stage, trace.WithAttributes(
		AttrWorkflowID.String(workflowID),
		AttrStage.String(stage),
	))
}

// StartPredictSpan starts a span for a risk scoring pass.
func (t *Tracer) StartPredictSpan(ctx context.Context, vehicleID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "scoring.predict", trace.WithAttributes(
		AttrVehicleID.String(vehicleID),
	))
}

// RecordError marks span failed. Classified errors also carry their kind.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if kind := faults.KindOf(err); kind != "" {
		span.SetAttributes(AttrErrorKind.String(string(kind)))
	}
}

// RecordSuccess marks span successful.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Shutdown flushes pending spans and stops the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// ForceFlush exports pending spans immediately.
func (t *Tracer) ForceFlush(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.ForceFlush(ctx)
}
