package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testPolicyYAML = `orchestrator: conductor
actors:
  - actor: diagnosis
    allowed_actions: [diagnosis.run]
    allowed_data_access: [sensors]
    max_actions_per_minute: 5
  - actor: scheduling
    allowed_actions: [appointment.propose]
    max_actions_per_minute: 10
`

const testRule = `# Flags cancellations.
# Second line.
package openfleet.rules.cancel

import rego.v1

deny contains finding if {
	input.action == "appointment.cancel"
	finding := {"message": "cancellation", "severity": "low"}
}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadActorPolicies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	writeFile(t, path, testPolicyYAML)

	loader := NewLoader(testLogger())
	set, err := loader.LoadActorPolicies(path, "")
	if err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	if set.Orchestrator() != "conductor" {
		t.Errorf("Expected orchestrator 'conductor', got '%s'", set.Orchestrator())
	}
	if got := set.Actors(); len(got) != 2 || got[0] != "diagnosis" || got[1] != "scheduling" {
		t.Errorf("Unexpected actors: %v", got)
	}
	p, _ := set.Lookup("scheduling")
	if p.MaxActionsPerMinute != 10 || len(p.AllowedDataAccess) != 0 {
		t.Errorf("Unexpected scheduling policy: %+v", p)
	}
}

func TestLoadActorPoliciesErrors(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(testLogger())

	if _, err := loader.LoadActorPolicies(filepath.Join(dir, "missing.yaml"), ""); err == nil {
		t.Error("Expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "actors:\n  - allowed_actions: [x]\n")
	if _, err := loader.LoadActorPolicies(bad, ""); err == nil {
		t.Error("Expected validation error for actor without name")
	}
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "cancel.rego"), testRule)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	loader := NewLoader(testLogger())
	rules, err := loader.LoadRules(dir)
	if err != nil {
		t.Fatalf("Failed to load rules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("Expected 1 rule, got %d", len(rules))
	}
	if rules[0].Name != "cancel" || !rules[0].Enabled {
		t.Errorf("Unexpected rule: %+v", rules[0])
	}
	if rules[0].Description != "Flags cancellations. Second line." {
		t.Errorf("Unexpected description: %q", rules[0].Description)
	}
}

func TestLoadDefaultsWithoutFiles(t *testing.T) {
	loader := NewLoader(testLogger())
	set, rules, err := loader.Load(Sources{BuiltinRules: true})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if set.Len() != 7 {
		t.Errorf("Expected built-in set, got %d actors", set.Len())
	}
	if len(rules) != len(BuiltinRules()) {
		t.Errorf("Expected builtin rules, got %d", len(rules))
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	writeFile(t, path, testPolicyYAML)

	loader := NewLoader(testLogger())
	loader.ReloadDelay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan *Set, 4)
	err := loader.Watch(ctx, Sources{PolicyFile: path}, func(s *Set, _ []Rule) error {
		applied <- s
		return nil
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	writeFile(t, path, testPolicyYAML+`  - actor: feedback
    allowed_actions: [feedback.collect]
`)

	select {
	case s := <-applied:
		if s.Len() != 3 {
			t.Errorf("Expected 3 actors after reload, got %d", s.Len())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}
