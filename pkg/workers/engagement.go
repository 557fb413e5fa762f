package workers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/engine"
	"github.com/openfleet/openfleet/pkg/faults"
	"github.com/openfleet/openfleet/pkg/fleet"
	"github.com/openfleet/openfleet/pkg/policy"
)

// Customer intents.
const (
	IntentAccept   = "accept"
	IntentDecline  = "decline"
	IntentQuestion = "question"
)

// Conversation states.
const (
	ConversationInitiated = "initiated"
	ConversationRequested = "appointment_requested"
	ConversationDeclined  = "declined"
	ConversationOpen      = "open"
)

// Responder produces the customer's answer to an opening message.
type Responder interface {
	Respond(ctx context.Context, vehicle *fleet.Vehicle, opening string) (string, error)
}

// ScriptedResponder cycles through a fixed list of answers.
type ScriptedResponder struct {
	answers []string
	next    atomic.Uint64
}

// DefaultAnswers all classify as IntentAccept.
var DefaultAnswers = []string{
	"Yes, I'd like to book an appointment",
	"Sure, please schedule it for me",
	"Yes, please book the earliest slot",
}

// NewScriptedResponder returns a responder replaying answers in order. An empty
// list falls back to DefaultAnswers.
func NewScriptedResponder(answers ...string) *ScriptedResponder {
	if len(answers) == 0 {
		answers = DefaultAnswers
	}
	return &ScriptedResponder{answers: answers}
}

// Respond implements Responder.
func (s *ScriptedResponder) Respond(_ context.Context, _ *fleet.Vehicle, _ string) (string, error) {
	i := s.next.Add(1) - 1
	return s.answers[i%uint64(len(s.answers))], nil
}

// Message is one line of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is the transcript of one customer contact.
type Conversation struct {
	ID         string    `json:"id"`
	VehicleID  string    `json:"vehicle_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Status     string    `json:"status"`
	Messages   []Message `json:"messages"`
}

// CustomerEngagement contacts the owner of a vehicle that needs service.
type CustomerEngagement struct {
	actor
	responder Responder

	mu            sync.RWMutex
	conversations map[string]*Conversation
	order         []string
}

var _ engine.EngagementWorker = (*CustomerEngagement)(nil)

// NewCustomerEngagement creates the engagement worker. A nil responder uses
// the scripted default.
func NewCustomerEngagement(responder Responder, recorder Recorder, logger zerolog.Logger, opts ...Option) *CustomerEngagement {
	if responder == nil {
		responder = NewScriptedResponder()
	}
	return &CustomerEngagement{
		actor:         newActor(policy.ActorCustomerEngagement, recorder, logger, opts),
		responder:     responder,
		conversations: make(map[string]*Conversation),
	}
}

// DataDomains implements engine.Worker.
func (w *CustomerEngagement) DataDomains() []string {
	return []string{policy.DataVehicles, policy.DataCustomers, policy.DataDiagnosisResults}
}

// Engage implements engine.EngagementWorker.
func (w *CustomerEngagement) Engage(ctx context.Context, vehicle *fleet.Vehicle, diag *engine.DiagnosisReport) (*engine.EngagementResult, error) {
	if vehicle == nil || diag == nil {
		return nil, faults.NewInvalidInputError("vehicle and diagnosis are required", nil).
			WithOperation("engage")
	}

	w.record(ctx, policy.ActionContactInitiate, policy.DataCustomers, map[string]string{"vehicleId": vehicle.ID})
	conv := &Conversation{
		ID:         "CONV-" + uuid.New().String(),
		VehicleID:  vehicle.ID,
		CustomerID: vehicle.OwnerID,
		Status:     ConversationInitiated,
	}

	w.record(ctx, policy.ActionRecommendationSend, policy.DataDiagnosisResults, nil)
	opening := OpeningMessage(vehicle)
	conv.Messages = append(conv.Messages, Message{Role: "agent", Content: opening})
	w.store(conv)

	answer, err := w.responder.Respond(ctx, vehicle, opening)
	if err != nil {
		return nil, fmt.Errorf("customer did not respond: %w", err)
	}
	w.record(ctx, policy.ActionCustomerRespond, policy.DataCustomers, nil)

	intent, reply, err := w.HandleResponse(conv.ID, answer, diag)
	if err != nil {
		return nil, err
	}

	w.logger.Debug().
		Str("conversation_id", conv.ID).
		Str("intent", intent).
		Msg("Customer contacted")

	return &engine.EngagementResult{
		ConversationID:   conv.ID,
		CustomerName:     vehicle.OwnerName,
		CustomerPhone:    vehicle.OwnerPhone,
		OpeningMessage:   opening,
		CustomerResponse: answer,
		Intent:           intent,
		AgentReply:       reply,
		CustomerAccepted: intent == IntentAccept,
	}, nil
}

// HandleResponse appends a customer answer to a conversation and returns the
// classified intent and the agent's reply.
func (w *CustomerEngagement) HandleResponse(conversationID, answer string, diag *engine.DiagnosisReport) (string, string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	conv, ok := w.conversations[conversationID]
	if !ok {
		return "", "", faults.NewNotFoundError("conversation not found", nil).
			WithResource(conversationID).
			WithOperation("handle_response")
	}

	intent := ClassifyIntent(answer)
	reply := agentReply(intent, diag)
	conv.Messages = append(conv.Messages,
		Message{Role: "customer", Content: answer},
		Message{Role: "agent", Content: reply},
	)
	switch intent {
	case IntentAccept:
		conv.Status = ConversationRequested
	case IntentDecline:
		conv.Status = ConversationDeclined
	default:
		conv.Status = ConversationOpen
	}
	return intent, reply, nil
}

// Conversation returns a copy of a stored conversation.
func (w *CustomerEngagement) Conversation(id string) (*Conversation, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	conv, ok := w.conversations[id]
	if !ok {
		return nil, faults.NewNotFoundError("conversation not found", nil).WithResource(id)
	}
	cp := *conv
	cp.Messages = append([]Message(nil), conv.Messages...)
	return &cp, nil
}

// Conversations lists conversation ids in creation order.
func (w *CustomerEngagement) Conversations() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.order...)
}

func (w *CustomerEngagement) store(conv *Conversation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conversations[conv.ID] = conv
	w.order = append(w.order, conv.ID)
}

// OpeningMessage renders the greeting used to start a conversation.
func OpeningMessage(v *fleet.Vehicle) string {
	name := v.OwnerName
	if name == "" {
		name = "there"
	}
	car := strings.TrimSpace(v.Make + " " + v.Model)
	if car == "" {
		car = "vehicle"
	}
	return fmt.Sprintf("Hello %s, this is a courtesy call from your automotive service center. "+
		"Our predictive system has detected that your %s may need attention soon. "+
		"We'd like to schedule a maintenance appointment to prevent any issues. Would you like to book a service?",
		name, car)
}

var (
	acceptWords  = []string{"yes", "sure", "book"}
	declineWords = []string{"no", "not"}
)

// ClassifyIntent maps a free-text answer to an intent by whole-word keywords.
// Accept keywords win over decline keywords.
func ClassifyIntent(answer string) string {
	words := strings.FieldsFunc(strings.ToLower(answer), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	has := func(keys []string) bool {
		for _, k := range keys {
			if _, ok := set[k]; ok {
				return true
			}
		}
		return false
	}

	switch {
	case has(acceptWords):
		return IntentAccept
	case has(declineWords):
		return IntentDecline
	default:
		return IntentQuestion
	}
}

func agentReply(intent string, diag *engine.DiagnosisReport) string {
	switch intent {
	case IntentAccept:
		d := "a short visit"
		if diag != nil && diag.EstimatedDuration.Minutes > 0 {
			d = "about " + diag.EstimatedDuration.Formatted
		}
		return "Great! I'll schedule your appointment right away. The service will take " + d + "."
	case IntentDecline:
		level := "routine"
		if diag != nil && diag.Urgency.Level != "" {
			level = string(diag.Urgency.Level)
		}
		return "I understand. Please feel free to call us when you're ready. Remember, this is a " + level + " priority issue."
	default:
		return "I'd be happy to explain more. What specific details would you like to know about the maintenance?"
	}
}
