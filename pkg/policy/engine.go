package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// RuleEngine evaluates advisory Rego rules against activity events.
type RuleEngine struct {
	mu     sync.RWMutex
	rules  map[string]*compiledRule
	logger zerolog.Logger
}

type compiledRule struct {
	rule     Rule
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewRuleEngine creates an engine with no rules loaded.
func NewRuleEngine(logger zerolog.Logger) *RuleEngine {
	return &RuleEngine{
		rules:  make(map[string]*compiledRule),
		logger: logger.With().Str("component", "rule-engine").Logger(),
	}
}

// Replace compiles rules and swaps them in atomically. On any compile error
// the previously loaded rules stay active.
func (e *RuleEngine) Replace(ctx context.Context, rules []Rule) error {
	compiled := make(map[string]*compiledRule, len(rules))
	for i := range rules {
		if _, dup := compiled[rules[i].Name]; dup {
			return fmt.Errorf("duplicate rule name %q", rules[i].Name)
		}
		cr, err := compileRule(ctx, rules[i])
		if err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", rules[i].Name, err)
		}
		compiled[rules[i].Name] = cr
	}

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()

	e.logger.Info().Int("count", len(compiled)).Msg("Rules loaded")
	return nil
}

func compileRule(ctx context.Context, rule Rule) (*compiledRule, error) {
	module, err := ast.ParseModule(rule.Name, rule.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rule: %w", err)
	}

	query, err := rego.New(
		rego.Module(rule.Name, rule.Rego),
		rego.Query(module.Package.Path.String()+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	return &compiledRule{rule: rule, query: query, compiled: time.Now()}, nil
}

// Evaluate runs every enabled rule. Rules that fail to evaluate are logged and skipped.
// Violations are ordered by rule name.
func (e *RuleEngine) Evaluate(ctx context.Context, input *Input) []Violation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.rules) == 0 {
		return nil
	}

	names := make([]string, 0, len(e.rules))
	for name := range e.rules {
		names = append(names, name)
	}
	sort.Strings(names)

	var violations []Violation
	for _, name := range names {
		cr := e.rules[name]
		if !cr.rule.Enabled {
			continue
		}
		found, err := evaluateRule(ctx, cr, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("rule", name).
				Str("actor", input.Actor).
				Msg("Rule evaluation failed")
			continue
		}
		violations = append(violations, found...)
	}
	return violations
}

func evaluateRule(ctx context.Context, cr *compiledRule, input *Input) ([]Violation, error) {
	results, err := cr.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, toViolation(cr.rule.Name, d))
		}
	}
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Message < violations[j].Message
	})
	return violations, nil
}

func toViolation(rule string, result interface{}) Violation {
	v := Violation{Rule: rule}
	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = sev
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

// Rules returns the loaded rules sorted by name.
func (e *RuleEngine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, 0, len(e.rules))
	for _, cr := range e.rules {
		out = append(out, cr.rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetEnabled toggles a loaded rule.
func (e *RuleEngine) SetEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cr, ok := e.rules[name]
	if !ok {
		return fmt.Errorf("rule not found: %s", name)
	}
	cr.rule.Enabled = enabled
	e.logger.Info().Str("rule", name).Bool("enabled", enabled).Msg("Rule toggled")
	return nil
}
