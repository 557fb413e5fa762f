// Package activity records actor actions and forwards them to the behavior monitor.
package activity

import (
	"context"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/monitor"
	"github.com/openfleet/openfleet/pkg/ring"
	"github.com/openfleet/openfleet/pkg/telemetry"
)

// DefaultCapacity is the default size of the activity log.
const DefaultCapacity = 1000

// Event is one recorded actor action.
type Event = monitor.Event

// Observer checks events. *monitor.Monitor satisfies it.
type Observer interface {
	Observe(ev monitor.Event) monitor.Result
}

// Sink receives every recorded event together with the monitor's verdict.
type Sink interface {
	RecordActivity(ctx context.Context, ev Event, res monitor.Result) error
}

// Recorder stamps, retains and audits actor actions.
type Recorder struct {
	log      *ring.Buffer[Event]
	observer Observer
	sink     Sink
	metrics  *telemetry.Metrics
	clock    func() time.Time
	logger   zerolog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSink forwards recorded events to s. Sink errors are logged, not returned.
func WithSink(s Sink) Option {
	return func(r *Recorder) { r.sink = s }
}

// WithMetrics counts recorded events per actor.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(r *Recorder) { r.clock = clock }
}

// NewRecorder creates a recorder keeping the last capacity events.
// A nil observer records without auditing.
func NewRecorder(capacity int, observer Observer, logger zerolog.Logger, opts ...Option) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Recorder{
		log:      ring.New[Event](capacity),
		observer: observer,
		clock:    time.Now,
		logger:   logger.With().Str("component", "activity-recorder").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stamps the action with an id and time, appends it to the log and
// passes it to the monitor. A workflow id carried by ctx is added to the
// metadata unless the caller already set one.
func (r *Recorder) Record(ctx context.Context, actor, action string, metadata map[string]string) Event {
	md := maps.Clone(metadata)
	if md == nil {
		md = make(map[string]string)
	}
	if id := telemetry.WorkflowIDFromContext(ctx); id != "" {
		if _, ok := md[monitor.MetaWorkflowID]; !ok {
			md[monitor.MetaWorkflowID] = id
		}
	}

	ev := Event{
		ID:        uuid.New().String(),
		Timestamp: r.clock(),
		Actor:     actor,
		Action:    action,
		Metadata:  md,
	}
	r.log.Push(ev)
	r.metrics.RecordActivity(actor)

	r.logger.Debug().
		Str("actor", actor).
		Str("action", action).
		Str("workflow_id", md[monitor.MetaWorkflowID]).
		Msg("Activity recorded")

	res := monitor.Result{IsNormal: true, Findings: []monitor.Finding{}}
	if r.observer != nil {
		res = r.observer.Observe(ev)
		if !res.IsNormal {
			r.logger.Warn().
				Str("actor", actor).
				Str("action", action).
				Str("anomaly_id", res.AnomalyID).
				Float64("risk_score", res.RiskScore).
				Msg("Activity flagged by behavior monitor")
			for _, f := range res.Findings {
				r.metrics.RecordAnomaly(string(f.Type), string(f.Severity))
			}
		}
	}

	if r.sink != nil {
		if err := r.sink.RecordActivity(ctx, ev.Clone(), res); err != nil {
			r.logger.Error().Err(err).Str("event_id", ev.ID).Msg("Failed to archive activity")
		}
	}

	return ev.Clone()
}

// Log returns up to limit most recent events, oldest first. limit <= 0 returns all retained events.
func (r *Recorder) Log(limit int) []Event {
	events := r.log.Last(limit)
	for i := range events {
		events[i] = events[i].Clone()
	}
	return events
}

// Total returns how many events were ever recorded.
func (r *Recorder) Total() uint64 {
	return r.log.Total()
}
