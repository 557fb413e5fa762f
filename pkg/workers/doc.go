// Package workers provides the reference pipeline workers of OpenFleet.
//
// Each worker satisfies one of the engine's worker variants and reads fleet
// data through a fleet.Provider. Workers record their own activity under
// their actor identity so the behavior monitor can audit them; none of their
// actions touch workflow state.
//
// Customer conversations, appointment slot search and feedback surveys are
// simulated with deterministic scripts. Replace the Responder, FeedbackSource
// or service center list to plug in real integrations.
package workers
