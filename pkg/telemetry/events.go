package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a domain event emitted by the orchestrator or the behavior monitor.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Type is one of the EventType constants.
	Type string `json:"type"`

	// Source names the emitting component.
	Source string `json:"source"`

	WorkflowID string `json:"workflow_id,omitempty"`
	VehicleID  string `json:"vehicle_id,omitempty"`
	Actor      string `json:"actor,omitempty"`

	Message string `json:"message"`

	// Level is the event severity (info, warning, error, critical).
	Level string `json:"level"`

	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeWorkflowStarted   = "workflow.started"
	EventTypeWorkflowCompleted = "workflow.completed"
	EventTypeWorkflowFailed    = "workflow.failed"
	EventTypeStageCompleted    = "stage.completed"
	EventTypeStageSkipped      = "stage.skipped"
	EventTypeAnomalyDetected   = "anomaly.detected"
	EventTypeCriticalAlert     = "alert.critical"
	EventTypePoliciesReloaded  = "policy.reloaded"
)

// Event levels.
const (
	EventLevelInfo     = "info"
	EventLevelWarning  = "warning"
	EventLevelError    = "error"
	EventLevelCritical = "critical"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers, optionally through a buffered queue.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
		}
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, event %s dropped", event.Type)
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishWorkflowStarted publishes a workflow started event.
func (ep *EventPublisher) PublishWorkflowStarted(workflowID, workflowType, vehicleID string) error {
	return ep.Publish(Event{
		Type:       EventTypeWorkflowStarted,
		Source:     "orchestrator",
		WorkflowID: workflowID,
		VehicleID:  vehicleID,
		Message:    fmt.Sprintf("Workflow %s (%s) started for vehicle %s", workflowID, workflowType, vehicleID),
		Level:      EventLevelInfo,
		Data:       map[string]interface{}{"type": workflowType},
	})
}

// PublishWorkflowCompleted publishes a workflow completed event.
func (ep *EventPublisher) PublishWorkflowCompleted(workflowID string, steps int, duration time.Duration) error {
	return ep.Publish(Event{
		Type:       EventTypeWorkflowCompleted,
		Source:     "orchestrator",
		WorkflowID: workflowID,
		Message:    fmt.Sprintf("Workflow %s completed after %d steps", workflowID, steps),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"steps":    steps,
			"duration": duration.Seconds(),
		},
	})
}

// PublishWorkflowFailed publishes a workflow failed event.
func (ep *EventPublisher) PublishWorkflowFailed(workflowID, reason string) error {
	return ep.Publish(Event{
		Type:       EventTypeWorkflowFailed,
		Source:     "orchestrator",
		WorkflowID: workflowID,
		Message:    fmt.Sprintf("Workflow %s failed: %s", workflowID, reason),
		Level:      EventLevelError,
		Data:       map[string]interface{}{"reason": reason},
	})
}

// PublishStageCompleted publishes a stage completed event.
func (ep *EventPublisher) PublishStageCompleted(workflowID, stage, summary string) error {
	return ep.Publish(Event{
		Type:       EventTypeStageCompleted,
		Source:     "orchestrator",
		WorkflowID: workflowID,
		Message:    fmt.Sprintf("Stage %s completed: %s", stage, summary),
		Level:      EventLevelInfo,
		Data:       map[string]interface{}{"stage": stage},
	})
}

// PublishStageSkipped publishes a stage skipped event.
func (ep *EventPublisher) PublishStageSkipped(workflowID, stage, reason string) error {
	return ep.Publish(Event{
		Type:       EventTypeStageSkipped,
		Source:     "orchestrator",
		WorkflowID: workflowID,
		Message:    fmt.Sprintf("Stage %s skipped: %s", stage, reason),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"stage":  stage,
			"reason": reason,
		},
	})
}

// PublishAnomaly publishes an anomaly event at a level derived from its risk score.
func (ep *EventPublisher) PublishAnomaly(anomalyID, actor string, riskScore float64, types []string) error {
	level := EventLevelWarning
	if riskScore >= 0.7 {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:    EventTypeAnomalyDetected,
		Source:  "behavior_monitor",
		Actor:   actor,
		Message: fmt.Sprintf("Anomaly %s detected for %s (risk %.2f)", anomalyID, actor, riskScore),
		Level:   level,
		Data: map[string]interface{}{
			"anomaly_id": anomalyID,
			"risk_score": riskScore,
			"types":      types,
		},
	})
}

// PublishCriticalAlert publishes a critical security alert.
func (ep *EventPublisher) PublishCriticalAlert(anomalyID, actor, description string) error {
	return ep.Publish(Event{
		Type:    EventTypeCriticalAlert,
		Source:  "behavior_monitor",
		Actor:   actor,
		Message: fmt.Sprintf("CRITICAL: %s", description),
		Level:   EventLevelCritical,
		Data:    map[string]interface{}{"anomaly_id": anomalyID},
	})
}

// PublishPoliciesReloaded publishes a policy reload notification.
func (ep *EventPublisher) PublishPoliciesReloaded(actors, rules int) error {
	return ep.Publish(Event{
		Type:    EventTypePoliciesReloaded,
		Source:  "policy_loader",
		Message: fmt.Sprintf("Reloaded %d actor policies and %d rule modules", actors, rules),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"actors": actors,
			"rules":  rules,
		},
	})
}

// Subscribe adds a new event subscriber. A nil filter receives everything.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents drains the buffer, delivering up to MaxBatchSize events per wakeup.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch[:0], event)
		drain:
			for len(batch) < ep.config.MaxBatchSize {
				select {
				case next := <-ep.buffer:
					batch = append(batch, next)
				default:
					break drain
				}
			}
			ep.flushBatch(batch)

		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent calls matching subscribers in registration order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher after delivering buffered events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:     0,
		EventLevelWarning:  1,
		EventLevelError:    2,
		EventLevelCritical: 3,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByWorkflowID creates a filter that only allows events for one workflow.
func FilterByWorkflowID(workflowID string) EventFilter {
	return func(event Event) bool {
		return event.WorkflowID == workflowID
	}
}
