// Package engine provides the workflow orchestrator of OpenFleet.
//
// # Overview
//
// A maintenance workflow runs a fixed six-stage pipeline for one vehicle:
//
//  1. Data Analysis - inspect sensors and service history (AnalysisWorker)
//  2. Diagnosis - score component failure risk (DiagnosisWorker)
//  3. Customer Engagement - contact the owner (EngagementWorker)
//  4. Scheduling - book a service appointment (SchedulingWorker)
//  5. Feedback Collection - gather post-service ratings (FeedbackWorker)
//  6. Manufacturing Insights - refresh fleet-wide RCA patterns (InsightWorker)
//
// Stages 2 to 5 are gated on a boolean carried by the previous stage's result.
// A gated-off stage is still recorded as a skipped Step with a reason.
// Stages 1 and 6 always run.
//
// # Workflow Lifecycle
//
// Workflows move from started to completed or failed, and terminal workflows
// reject further mutation with an AlreadyTerminal error. The first worker error
// abandons the pipeline and fails the workflow.
//
// # Concurrency
//
// Stages of one workflow run sequentially. Independent workflows may run
// concurrently; the WorkflowStore locks per workflow, and OrchestrateMany
// bounds how many pipelines are in flight.
//
// # Auditing
//
// Every orchestrator action (start, step, skip, delegation, completion, failure)
// is recorded through an ActivityRecorder so the behavior monitor sees it.
package engine
