// Package policy declares who may do what in an OpenFleet deployment.
//
// It has three parts:
//
// Actor policies. A Set maps each actor identity (the orchestrator and the
// six workers) to an ActorPolicy: allowed action labels, allowed data
// domains and a per-minute rate limit. Sets are immutable and are swapped as a
// whole when policies are reloaded. DefaultSet returns the built-in policies;
// LoadActorPolicies reads a YAML document:
//
//	orchestrator: orchestrator
//	actors:
//	  - actor: diagnosis
//	    allowed_actions: [diagnosis.run, diagnosis.completed]
//	    allowed_data_access: [vehicles, sensors, maintenance_history, risk_model]
//	    max_actions_per_minute: 50
//
// Advisory rules. Rego modules evaluated by RuleEngine against every activity
// event. Each rule exposes a `deny` set whose elements carry a message and a
// severity (low, medium, high, critical):
//
//	package openfleet.rules.example
//
//	import rego.v1
//
//	deny contains finding if {
//		input.action == "appointment.cancel"
//		input.hour >= 20
//		finding := {"message": "late cancellation", "severity": "low"}
//	}
//
// Rules are advisory. They produce findings for the behavior monitor and never
// block an action.
//
// Watching. Loader.Watch uses fsnotify to reload the policy file and rule
// directory on change, debounced, and hands the result to a callback.
package policy
