package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/activity"
	"github.com/openfleet/openfleet/pkg/engine"
	"github.com/openfleet/openfleet/pkg/fleet"
	"github.com/openfleet/openfleet/pkg/monitor"
	"github.com/openfleet/openfleet/pkg/scoring"
	"github.com/openfleet/openfleet/pkg/telemetry"
)

// Recorder records worker actions. *activity.Recorder satisfies it.
type Recorder interface {
	Record(ctx context.Context, actor, action string, metadata map[string]string) activity.Event
}

type nopRecorder struct{}

func (nopRecorder) Record(_ context.Context, name, action string, md map[string]string) activity.Event {
	return activity.Event{Actor: name, Action: action, Metadata: md}
}

// actor holds what every worker shares: its identity, recorder, clock and logger.
type actor struct {
	name     string
	recorder Recorder
	tel      *telemetry.Telemetry
	clock    func() time.Time
	logger   zerolog.Logger
}

// Option configures a worker.
type Option func(*actor)

// WithClock overrides the worker's time source.
func WithClock(clock func() time.Time) Option {
	return func(a *actor) { a.clock = clock }
}

// WithTelemetry enables spans and metrics for the worker.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(a *actor) {
		if t != nil {
			a.tel = t
		}
	}
}

func newActor(name string, recorder Recorder, logger zerolog.Logger, opts []Option) actor {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	a := actor{
		name:     name,
		recorder: recorder,
		tel:      telemetry.NewNop(),
		clock:    time.Now,
		logger:   logger.With().Str("component", "worker").Str("worker", name).Logger(),
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// Name implements engine.Worker.
func (a actor) Name() string {
	return a.name
}

// record logs one action touching the given data domain. The workflow id, when
// present, comes from ctx via the recorder.
func (a actor) record(ctx context.Context, action, dataAccess string, extra map[string]string) {
	md := map[string]string{monitor.MetaDataAccess: dataAccess}
	for k, v := range extra {
		md[k] = v
	}
	a.recorder.Record(ctx, a.name, action, md)
}

// Deps bundles what RegisterAll needs to build the reference workers.
type Deps struct {
	Provider       fleet.Provider
	History        HistorySource
	Scoring        *scoring.Engine
	Recorder       Recorder
	Telemetry      *telemetry.Telemetry
	ServiceCenters []ServiceCenter
	Clock          func() time.Time
	Logger         zerolog.Logger
}

// RegisterAll registers the six reference workers under the engine's worker names.
func RegisterAll(reg *engine.WorkerRegistry, d Deps) error {
	scorer := d.Scoring
	if scorer == nil {
		var err error
		if scorer, err = scoring.NewEngine(scoring.DefaultConfig()); err != nil {
			return err
		}
	}

	opts := []Option{WithTelemetry(d.Telemetry)}
	if d.Clock != nil {
		opts = append(opts, WithClock(d.Clock))
	}

	workers := map[string]engine.Worker{
		engine.WorkerDataAnalysis:          NewDataAnalysis(d.Provider, d.Recorder, d.Logger, opts...),
		engine.WorkerDiagnosis:             NewDiagnosis(d.Provider, scorer, d.Recorder, d.Logger, opts...),
		engine.WorkerCustomerEngagement:    NewCustomerEngagement(nil, d.Recorder, d.Logger, opts...),
		engine.WorkerScheduling:            NewScheduling(d.ServiceCenters, d.Recorder, d.Logger, opts...),
		engine.WorkerFeedback:              NewFeedback(nil, d.Recorder, d.Logger, opts...),
		engine.WorkerManufacturingInsights: NewManufacturingInsights(d.History, d.Recorder, d.Logger, opts...),
	}
	for name, w := range workers {
		if err := reg.Register(name, w); err != nil {
			return err
		}
	}
	return nil
}
