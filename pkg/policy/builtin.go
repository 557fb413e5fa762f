package policy

// Actor identities used by the orchestrator and the reference workers.
const (
	ActorOrchestrator          = "orchestrator"
	ActorDataAnalysis          = "data-analysis"
	ActorDiagnosis             = "diagnosis"
	ActorCustomerEngagement    = "customer-engagement"
	ActorScheduling            = "scheduling"
	ActorFeedback              = "feedback"
	ActorManufacturingInsights = "manufacturing-insights"
)

// Orchestrator actions.
const (
	ActionWorkflowStarted       = "workflow.started"
	ActionWorkflowStepCompleted = "workflow.step_completed"
	ActionWorkflowStepSkipped   = "workflow.step_skipped"
	ActionWorkflowCompleted     = "workflow.completed"
	ActionWorkflowFailed        = "workflow.failed"

	ActionDelegateAnalysis   = "delegate.analysis"
	ActionDelegateDiagnosis  = "delegate.diagnosis"
	ActionDelegateEngagement = "delegate.engagement"
	ActionDelegateScheduling = "delegate.scheduling"
	ActionDelegateFeedback   = "delegate.feedback"
	ActionDelegateInsights   = "delegate.insights"
)

// Worker actions. None of them mention workflows.
const (
	ActionVehicleAnalyze = "vehicle.analyze"

	ActionDiagnosisRun       = "diagnosis.run"
	ActionDiagnosisCompleted = "diagnosis.completed"

	ActionContactInitiate    = "contact.initiate"
	ActionConversationStart  = "conversation.start"
	ActionRecommendationSend = "recommendation.send"
	ActionCustomerRespond    = "customer.respond"

	ActionAvailabilityCheck  = "availability.check"
	ActionAppointmentPropose = "appointment.propose"
	ActionAppointmentConfirm = "appointment.confirm"
	ActionAppointmentCancel  = "appointment.cancel"

	ActionFeedbackCollect = "feedback.collect"
	ActionFeedbackAnalyze = "feedback.analyze"

	ActionInsightsRefresh = "insights.refresh"
)

// Data domains named in the dataAccess metadata tag.
const (
	DataWorkflows          = "workflows"
	DataActivityLog        = "activity_log"
	DataVehicles           = "vehicles"
	DataSensors            = "sensors"
	DataMaintenanceHistory = "maintenance_history"
	DataRiskModel          = "risk_model"
	DataCustomers          = "customers"
	DataDiagnosisResults   = "diagnosis_results"
	DataServiceCenters     = "service_centers"
	DataAppointments       = "appointments"
	DataFeedback           = "feedback"
	DataInsights           = "insights"
)

// DefaultActorPolicies returns the built-in policies for the orchestrator and the six workers.
func DefaultActorPolicies() []ActorPolicy {
	return []ActorPolicy{
		{
			Actor: ActorOrchestrator,
			AllowedActions: []string{
				ActionWorkflowStarted, ActionWorkflowStepCompleted, ActionWorkflowStepSkipped,
				ActionWorkflowCompleted, ActionWorkflowFailed,
				ActionDelegateAnalysis, ActionDelegateDiagnosis, ActionDelegateEngagement,
				ActionDelegateScheduling, ActionDelegateFeedback, ActionDelegateInsights,
			},
			AllowedDataAccess:   []string{DataWorkflows, DataActivityLog},
			MaxActionsPerMinute: 100,
		},
		{
			Actor:               ActorDataAnalysis,
			AllowedActions:      []string{ActionVehicleAnalyze},
			AllowedDataAccess:   []string{DataVehicles, DataSensors, DataMaintenanceHistory},
			MaxActionsPerMinute: 50,
		},
		{
			Actor:               ActorDiagnosis,
			AllowedActions:      []string{ActionDiagnosisRun, ActionDiagnosisCompleted},
			AllowedDataAccess:   []string{DataVehicles, DataSensors, DataMaintenanceHistory, DataRiskModel},
			MaxActionsPerMinute: 50,
		},
		{
			Actor: ActorCustomerEngagement,
			AllowedActions: []string{
				ActionContactInitiate, ActionConversationStart,
				ActionRecommendationSend, ActionCustomerRespond,
			},
			AllowedDataAccess:   []string{DataVehicles, DataCustomers, DataDiagnosisResults},
			MaxActionsPerMinute: 30,
		},
		{
			Actor: ActorScheduling,
			AllowedActions: []string{
				ActionAvailabilityCheck, ActionAppointmentPropose,
				ActionAppointmentConfirm, ActionAppointmentCancel,
			},
			AllowedDataAccess:   []string{DataServiceCenters, DataAppointments, DataCustomers},
			MaxActionsPerMinute: 40,
		},
		{
			Actor:               ActorFeedback,
			AllowedActions:      []string{ActionFeedbackCollect, ActionFeedbackAnalyze},
			AllowedDataAccess:   []string{DataAppointments, DataCustomers, DataFeedback},
			MaxActionsPerMinute: 40,
		},
		{
			Actor:               ActorManufacturingInsights,
			AllowedActions:      []string{ActionInsightsRefresh},
			AllowedDataAccess:   []string{DataMaintenanceHistory, DataFeedback, DataInsights},
			MaxActionsPerMinute: 20,
		},
	}
}

// DefaultSet returns the built-in policies governed by the given orchestrator identity.
// An empty orchestrator means ActorOrchestrator.
func DefaultSet(orchestrator string) *Set {
	if orchestrator == "" {
		orchestrator = ActorOrchestrator
	}
	s, err := NewSet(orchestrator, DefaultActorPolicies())
	if err != nil {
		panic("policy: invalid built-in policies: " + err.Error())
	}
	return s
}

// BuiltinRules returns the advisory Rego rules shipped with OpenFleet.
// ungoverned-actor ships disabled: actors without a policy are compliant
// unless an operator opts in with RuleEngine.SetEnabled.
func BuiltinRules() []Rule {
	return []Rule{
		customerDataOutsideWorkflowRule(),
		ungovernedActorRule(),
	}
}

func customerDataOutsideWorkflowRule() Rule {
	return Rule{
		Name:        "customer-data-outside-workflow",
		Description: "Customer data must only be read on behalf of a workflow",
		Enabled:     true,
		Source:      "builtin",
		Rego: `package openfleet.rules.customer_data

import rego.v1

deny contains finding if {
	input.metadata.dataAccess == "customers"
	not input.metadata.workflowId
	finding := {
		"message": sprintf("%s read customer data outside a workflow", [input.actor]),
		"severity": "medium",
	}
}
`,
	}
}

func ungovernedActorRule() Rule {
	return Rule{
		Name:        "ungoverned-actor",
		Description: "Flags actors that have no declared policy",
		Enabled:     false,
		Source:      "builtin",
		Rego: `package openfleet.rules.ungoverned

import rego.v1

deny contains finding if {
	not input.policy
	input.actor != input.orchestrator
	finding := {
		"message": sprintf("actor %s has no declared policy", [input.actor]),
		"severity": "low",
	}
}
`,
	}
}
