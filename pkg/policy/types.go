package policy

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
)

// ActorPolicy declares what one actor identity may do.
type ActorPolicy struct {
	// Actor is the identity the policy applies to.
	Actor string `yaml:"actor" json:"actor" validate:"required"`

	// AllowedActions lists the action labels the actor may emit.
	AllowedActions []string `yaml:"allowed_actions" json:"allowed_actions" validate:"dive,required"`

	// AllowedDataAccess lists the data domains the actor may touch.
	AllowedDataAccess []string `yaml:"allowed_data_access" json:"allowed_data_access" validate:"dive,required"`

	// MaxActionsPerMinute bounds the actor's events in any trailing 60 seconds.
	// Zero disables the rate check.
	MaxActionsPerMinute int `yaml:"max_actions_per_minute" json:"max_actions_per_minute" validate:"gte=0"`
}

// AllowsAction reports whether action is in the allowed set.
func (p *ActorPolicy) AllowsAction(action string) bool {
	return slices.Contains(p.AllowedActions, action)
}

// AllowsData reports whether the data domain is in the allowed set.
func (p *ActorPolicy) AllowsData(domain string) bool {
	return slices.Contains(p.AllowedDataAccess, domain)
}

// Document is the YAML shape of an actor policy file.
type Document struct {
	Orchestrator string        `yaml:"orchestrator"`
	Actors       []ActorPolicy `yaml:"actors" validate:"dive"`
}

// Set is an immutable collection of actor policies plus the orchestrator identity.
// A Set is swapped as a whole on reload, never mutated.
type Set struct {
	orchestrator string
	actors       map[string]ActorPolicy
	loadedAt     time.Time
}

var validate = validator.New()

// NewSet validates the policies and builds a Set. Duplicate actors are rejected.
func NewSet(orchestrator string, policies []ActorPolicy) (*Set, error) {
	if orchestrator == "" {
		return nil, fmt.Errorf("orchestrator identity is required")
	}

	s := &Set{
		orchestrator: orchestrator,
		actors:       make(map[string]ActorPolicy, len(policies)),
		loadedAt:     time.Now().UTC(),
	}
	for i := range policies {
		p := policies[i]
		if err := validate.Struct(&p); err != nil {
			return nil, fmt.Errorf("invalid policy for actor %q: %w", p.Actor, err)
		}
		if _, dup := s.actors[p.Actor]; dup {
			return nil, fmt.Errorf("duplicate policy for actor %q", p.Actor)
		}
		p.AllowedActions = slices.Clone(p.AllowedActions)
		p.AllowedDataAccess = slices.Clone(p.AllowedDataAccess)
		s.actors[p.Actor] = p
	}
	return s, nil
}

// Orchestrator returns the identity allowed to control workflows.
func (s *Set) Orchestrator() string {
	return s.orchestrator
}

// Lookup returns a copy of the actor's policy.
func (s *Set) Lookup(actor string) (*ActorPolicy, bool) {
	p, ok := s.actors[actor]
	if !ok {
		return nil, false
	}
	p.AllowedActions = slices.Clone(p.AllowedActions)
	p.AllowedDataAccess = slices.Clone(p.AllowedDataAccess)
	return &p, true
}

// Actors returns the governed identities in sorted order.
func (s *Set) Actors() []string {
	out := make([]string, 0, len(s.actors))
	for a := range s.actors {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of actor policies.
func (s *Set) Len() int {
	return len(s.actors)
}

// LoadedAt returns when the set was built.
func (s *Set) LoadedAt() time.Time {
	return s.loadedAt
}

// Rule is an advisory Rego module evaluated against every activity event.
type Rule struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Rego        string `json:"rego"`
	Enabled     bool   `json:"enabled"`
	Source      string `json:"source,omitempty"`
}

// Violation is one element of a rule's deny set.
type Violation struct {
	Rule     string `json:"rule"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Input is the document rules see as `input`.
type Input struct {
	Actor        string            `json:"actor"`
	Action       string            `json:"action"`
	Metadata     map[string]string `json:"metadata"`
	Timestamp    time.Time         `json:"timestamp"`
	Hour         int               `json:"hour"`
	Orchestrator string            `json:"orchestrator"`
	Policy       *ActorPolicy      `json:"policy,omitempty"`
}
