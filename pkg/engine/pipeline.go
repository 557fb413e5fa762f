package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/faults"
	"github.com/openfleet/openfleet/pkg/fleet"
	"github.com/openfleet/openfleet/pkg/monitor"
	"github.com/openfleet/openfleet/pkg/policy"
	"github.com/openfleet/openfleet/pkg/telemetry"
)

// Reasons recorded on skipped steps.
const (
	ReasonGoodCondition    = "Vehicle in good condition"
	ReasonNoMaintenance    = "No maintenance required"
	ReasonCustomerDeclined = "Customer did not accept service"
	ReasonNoAppointment    = "No appointment was booked"
)

// Orchestrate runs the maintenance pipeline for one vehicle. Stages run strictly
// in order; a stage whose gate does not hold is recorded as skipped. The first
// worker error abandons the pipeline: the workflow is marked failed and a
// WorkerFailure carrying the workflow id is returned with the failed snapshot.
func (o *Orchestrator) Orchestrate(ctx context.Context, vehicleID string) (*Workflow, error) {
	if vehicleID == "" {
		return nil, faults.NewInvalidInputError("vehicle id is required", nil).WithOperation("orchestrate")
	}

	id, err := o.StartWorkflow(ctx, WorkflowTypeMaintenance, map[string]any{"vehicle_id": vehicleID})
	if err != nil {
		return nil, err
	}

	ctx = telemetry.WithWorkflowID(ctx, id)
	ctx, span := o.tel.Tracer.StartWorkflowSpan(ctx, id, vehicleID)
	defer span.End()

	run := &pipelineRun{
		o:         o,
		id:        id,
		vehicleID: vehicleID,
		logger:    telemetry.ForWorkflow(o.logger, id, vehicleID),
	}

	report, runErr := run.execute(ctx)
	if runErr != nil {
		wf, err := o.FailWorkflow(ctx, id, runErr)
		if err != nil {
			o.logger.Error().Err(err).Str("workflow_id", id).Msg("Failed to mark workflow failed")
		}
		telemetry.RecordError(span, runErr)
		span.SetAttributes(telemetry.AttrWorkflowStatus.String(string(StatusFailed)))
		return wf, faults.NewWorkerFailure("maintenance pipeline failed", runErr).
			WithResource(id).
			WithOperation("orchestrate")
	}

	wf, err := o.CompleteWorkflow(ctx, id, report)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(telemetry.AttrWorkflowStatus.String(string(StatusCompleted)))
	telemetry.RecordSuccess(span)
	return wf, nil
}

type pipelineRun struct {
	o         *Orchestrator
	id        string
	vehicleID string
	results   StageResults
	skipped   map[Stage]bool
	logger    zerolog.Logger
}

func (r *pipelineRun) execute(ctx context.Context) (*PipelineReport, error) {
	r.skipped = make(map[Stage]bool)

	analysis, err := runStage(ctx, r, StageAnalysis, WorkerDataAnalysis, policy.ActionDelegateAnalysis,
		func(ctx context.Context) (*AnalysisResult, error) {
			w, err := Lookup[AnalysisWorker](r.o.workers, WorkerDataAnalysis)
			if err != nil {
				return nil, err
			}
			return w.Analyze(ctx, r.vehicleID)
		},
		func(a *AnalysisResult) string {
			return fmt.Sprintf("%d anomalies, requires diagnosis: %t", len(a.Anomalies), a.RequiresDiagnosis)
		})
	if err != nil {
		return nil, err
	}
	r.results.Analysis = analysis

	vehicle := analysis.Vehicle
	if vehicle == nil {
		vehicle = &fleet.Vehicle{ID: r.vehicleID}
	}

	if analysis.RequiresDiagnosis {
		diagnosis, err := runStage(ctx, r, StageDiagnosis, WorkerDiagnosis, policy.ActionDelegateDiagnosis,
			func(ctx context.Context) (*DiagnosisReport, error) {
				w, err := Lookup[DiagnosisWorker](r.o.workers, WorkerDiagnosis)
				if err != nil {
					return nil, err
				}
				return w.Diagnose(ctx, r.vehicleID, analysis)
			},
			func(d *DiagnosisReport) string {
				return fmt.Sprintf("overall risk %s, %d predictions", d.Diagnosis.OverallRisk, len(d.Diagnosis.Predictions))
			})
		if err != nil {
			return nil, err
		}
		r.results.Diagnosis = diagnosis
	} else if err := r.skip(ctx, StageDiagnosis, ReasonGoodCondition); err != nil {
		return nil, err
	}

	if d := r.results.Diagnosis; d != nil && d.MaintenanceRequired {
		engagement, err := runStage(ctx, r, StageCustomerEngagement, WorkerCustomerEngagement, policy.ActionDelegateEngagement,
			func(ctx context.Context) (*EngagementResult, error) {
				w, err := Lookup[EngagementWorker](r.o.workers, WorkerCustomerEngagement)
				if err != nil {
					return nil, err
				}
				return w.Engage(ctx, vehicle, d)
			},
			func(e *EngagementResult) string {
				return fmt.Sprintf("intent %s, accepted: %t", e.Intent, e.CustomerAccepted)
			})
		if err != nil {
			return nil, err
		}
		r.results.Engagement = engagement
	} else if err := r.skip(ctx, StageCustomerEngagement, ReasonNoMaintenance); err != nil {
		return nil, err
	}

	if e := r.results.Engagement; e != nil && e.CustomerAccepted {
		scheduling, err := runStage(ctx, r, StageScheduling, WorkerScheduling, policy.ActionDelegateScheduling,
			func(ctx context.Context) (*SchedulingResult, error) {
				w, err := Lookup[SchedulingWorker](r.o.workers, WorkerScheduling)
				if err != nil {
					return nil, err
				}
				return w.Schedule(ctx, vehicle, r.results.Diagnosis)
			},
			func(s *SchedulingResult) string {
				if s.Appointment == nil {
					return fmt.Sprintf("no slot booked across %d proposed days", s.ProposedDays)
				}
				return fmt.Sprintf("appointment %s on %s at %s", s.Appointment.ID, s.Appointment.Date, s.Appointment.Time)
			})
		if err != nil {
			return nil, err
		}
		r.results.Scheduling = scheduling
	} else {
		reason := ReasonNoMaintenance
		if r.results.Engagement != nil {
			reason = ReasonCustomerDeclined
		}
		if err := r.skip(ctx, StageScheduling, reason); err != nil {
			return nil, err
		}
	}

	if s := r.results.Scheduling; s != nil && s.AppointmentBooked && s.Appointment != nil {
		feedback, err := runStage(ctx, r, StageFeedback, WorkerFeedback, policy.ActionDelegateFeedback,
			func(ctx context.Context) (*FeedbackResult, error) {
				w, err := Lookup[FeedbackWorker](r.o.workers, WorkerFeedback)
				if err != nil {
					return nil, err
				}
				return w.CollectFeedback(ctx, s.Appointment)
			},
			func(f *FeedbackResult) string {
				return fmt.Sprintf("rating %.2f, sentiment %s", f.AverageRating, f.Sentiment)
			})
		if err != nil {
			return nil, err
		}
		r.results.Feedback = feedback
	} else if err := r.skip(ctx, StageFeedback, ReasonNoAppointment); err != nil {
		return nil, err
	}

	insights, err := runStage(ctx, r, StageManufacturingInsights, WorkerManufacturingInsights, policy.ActionDelegateInsights,
		func(ctx context.Context) (*InsightReport, error) {
			w, err := Lookup[InsightWorker](r.o.workers, WorkerManufacturingInsights)
			if err != nil {
				return nil, err
			}
			return w.RefreshInsights(ctx)
		},
		func(i *InsightReport) string {
			return fmt.Sprintf("%d issue patterns from %d records", i.UniqueIssues, i.TotalRCARecords)
		})
	if err != nil {
		return nil, err
	}
	r.results.Insights = insights

	return r.report(vehicle), nil
}

// runStage delegates one stage to a worker and records its step. R is the
// worker's result pointer; a nil result without an error is a worker failure.
func runStage[R comparable](
	ctx context.Context,
	r *pipelineRun,
	stage Stage,
	worker, delegateAction string,
	call func(context.Context) (R, error),
	summarize func(R) string,
) (R, error) {
	var zero R
	o := r.o

	ctx, span := o.tel.Tracer.StartStageSpan(ctx, r.id, string(stage))
	defer span.End()
	timer := telemetry.NewTimer()

	o.record(ctx, r.id, delegateAction, map[string]string{
		monitor.MetaVehicleID: r.vehicleID,
		"worker":              worker,
	})

	res, err := call(ctx)
	if err == nil && res == zero {
		err = fmt.Errorf("worker %s returned no result", worker)
	}
	if err != nil {
		o.tel.Metrics.RecordStage(string(stage), OutcomeFailed, timer.Duration())
		o.tel.Metrics.RecordWorkerError(worker)
		telemetry.RecordError(span, err)
		r.logger.Error().Err(err).Str("stage", string(stage)).Str("worker", worker).Msg("Stage failed")
		return zero, fmt.Errorf("%s stage failed: %w", stage.Title(), err)
	}

	if err := o.RecordStep(ctx, r.id, stage, res); err != nil {
		return zero, err
	}

	summary := summarize(res)
	o.tel.Metrics.RecordStage(string(stage), OutcomeCompleted, timer.Duration())
	_ = o.tel.Events.PublishStageCompleted(r.id, string(stage), summary)
	span.SetAttributes(telemetry.AttrStageOutcome.String(OutcomeCompleted))
	telemetry.RecordSuccess(span)

	r.logger.Info().
		Int("step", stage.Position()).
		Str("stage", string(stage)).
		Dur("duration", timer.Duration()).
		Msg(summary)
	return res, nil
}

func (r *pipelineRun) skip(ctx context.Context, stage Stage, reason string) error {
	if err := r.o.RecordSkipped(ctx, r.id, stage, reason); err != nil {
		return err
	}
	r.skipped[stage] = true

	r.o.tel.Metrics.RecordStage(string(stage), OutcomeSkipped, 0)
	_ = r.o.tel.Events.PublishStageSkipped(r.id, string(stage), reason)
	_, span := r.o.tel.Tracer.StartStageSpan(ctx, r.id, string(stage))
	span.SetAttributes(
		telemetry.AttrStageOutcome.String(OutcomeSkipped),
		telemetry.AttrSkipReason.String(reason),
	)
	span.End()

	r.logger.Info().
		Int("step", stage.Position()).
		Str("stage", string(stage)).
		Str("reason", reason).
		Msg("Stage skipped")
	return nil
}

func (r *pipelineRun) report(vehicle *fleet.Vehicle) *PipelineReport {
	lines := make([]string, len(Pipeline))
	for i, stage := range Pipeline {
		line := fmt.Sprintf("%d. %s", i+1, stage.Title())
		if r.skipped[stage] {
			line += " (Skipped)"
		}
		lines[i] = line
	}

	return &PipelineReport{
		WorkflowID: r.id,
		VehicleID:  r.vehicleID,
		Vehicle: &VehicleInfo{
			ID:    vehicle.ID,
			Make:  vehicle.Make,
			Model: vehicle.Model,
			Owner: vehicle.OwnerName,
		},
		StepsCompleted: lines,
		Results:        r.results,
		Summary:        Summarize(&r.results),
		CompletedAt:    r.o.clock().UTC(),
	}
}

// Summarize renders the human-readable outcome of a pipeline run.
func Summarize(res *StageResults) string {
	var b strings.Builder
	b.WriteString("WORKFLOW COMPLETED SUCCESSFULLY\n\n")

	if res.Analysis == nil || !res.Analysis.RequiresDiagnosis {
		b.WriteString("Vehicle Health: GOOD - No maintenance required")
		return b.String()
	}

	if d := res.Diagnosis; d != nil {
		fmt.Fprintf(&b, "Vehicle Health: %s RISK\n", strings.ToUpper(string(d.Diagnosis.OverallRisk)))
		maintenance := "NO"
		if d.MaintenanceRequired {
			maintenance = "YES"
		}
		fmt.Fprintf(&b, "   Maintenance Required: %s\n", maintenance)
		fmt.Fprintf(&b, "   Urgency: %s\n", d.Urgency.Level)
		fmt.Fprintf(&b, "   Issues: %d component(s) need attention\n", len(d.Diagnosis.Predictions))
	}

	if e := res.Engagement; e != nil {
		decision := "DECLINED"
		if e.CustomerAccepted {
			decision = "ACCEPTED"
		}
		fmt.Fprintf(&b, "\nCustomer Engagement: %s\n", decision)
		fmt.Fprintf(&b, "   Customer Intent: %s\n", e.Intent)
	}

	if s := res.Scheduling; s != nil && s.Appointment != nil {
		a := s.Appointment
		b.WriteString("\nAppointment Status: CONFIRMED\n")
		fmt.Fprintf(&b, "   Appointment ID: %s\n", a.ID)
		fmt.Fprintf(&b, "   Scheduled: %s at %s\n", a.Date, a.Time)
		fmt.Fprintf(&b, "   Service Center: %s\n", a.ServiceCenterName)
	}

	if f := res.Feedback; f != nil {
		b.WriteString("\nPost-Service Feedback: COLLECTED\n")
		fmt.Fprintf(&b, "   Rating: %.2f/5\n", f.AverageRating)
		fmt.Fprintf(&b, "   Sentiment: %s\n", f.Sentiment)
		fmt.Fprintf(&b, "   NPS: %d/10\n", f.NPSScore)
	}

	return b.String()
}
