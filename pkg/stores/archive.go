package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/engine"
	"github.com/openfleet/openfleet/pkg/monitor"
)

// ArchiveWorkflow persists a terminal workflow. It satisfies engine.Archiver.
func (s *SQLiteStore) ArchiveWorkflow(ctx context.Context, wf *engine.Workflow) error {
	rec, err := WorkflowRecordFrom(wf)
	if err != nil {
		return err
	}
	return s.SaveWorkflow(ctx, rec)
}

// RecordActivity archives an event with the monitor's verdict. It satisfies activity.Sink.
func (s *SQLiteStore) RecordActivity(ctx context.Context, ev monitor.Event, res monitor.Result) error {
	md, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	return s.AppendActivity(ctx, &ActivityRecord{
		ID:         ev.ID,
		Timestamp:  ev.Timestamp.UTC(),
		Actor:      ev.Actor,
		Action:     ev.Action,
		WorkflowID: optional(ev.Metadata[monitor.MetaWorkflowID]),
		DataAccess: optional(ev.Metadata[monitor.MetaDataAccess]),
		Metadata:   string(md),
		IsNormal:   res.IsNormal,
		RiskScore:  res.RiskScore,
		AnomalyID:  optional(res.AnomalyID),
	})
}

// AnomalyHook returns a monitor callback that archives every logged anomaly.
// The monitor fires callbacks outside any request, so failures are only logged.
func (s *SQLiteStore) AnomalyHook(logger zerolog.Logger) monitor.AnomalyFunc {
	return func(a monitor.AnomalyRecord) {
		row, err := AnomalyRowFrom(a)
		if err == nil {
			err = s.SaveAnomaly(context.Background(), row)
		}
		if err != nil {
			logger.Error().Err(err).Str("anomaly_id", a.ID).Msg("Failed to archive anomaly")
		}
	}
}

// WorkflowRecordFrom flattens a workflow into its persisted form.
func WorkflowRecordFrom(wf *engine.Workflow) (*WorkflowRecord, error) {
	input, err := json.Marshal(wf.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow input: %w", err)
	}

	rec := &WorkflowRecord{
		ID:          wf.ID,
		Type:        wf.Type,
		Status:      string(wf.Status),
		StartedAt:   wf.StartedAt.UTC(),
		CompletedAt: wf.CompletedAt,
		Input:       string(input),
	}
	if v, ok := wf.Input["vehicle_id"].(string); ok {
		rec.VehicleID = optional(v)
	}
	if wf.Result != nil {
		result, err := json.Marshal(wf.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode workflow result: %w", err)
		}
		rec.Result = optional(string(result))
	}

	for i, step := range wf.Steps {
		sr := StepRecord{
			Position:  i,
			Stage:     string(step.Stage),
			Skipped:   step.Skipped,
			Reason:    optional(step.Reason),
			Timestamp: step.Timestamp.UTC(),
		}
		if step.Result != nil {
			result, err := json.Marshal(step.Result)
			if err != nil {
				return nil, fmt.Errorf("failed to encode %s result: %w", step.Stage, err)
			}
			sr.Result = optional(string(result))
		}
		rec.Steps = append(rec.Steps, sr)
	}

	return rec, nil
}

// AnomalyRowFrom flattens an anomaly record into its persisted form.
func AnomalyRowFrom(a monitor.AnomalyRecord) (*AnomalyRow, error) {
	types, err := json.Marshal(a.Types())
	if err != nil {
		return nil, fmt.Errorf("failed to encode anomaly types: %w", err)
	}
	findings, err := json.Marshal(a.Findings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode findings: %w", err)
	}
	return &AnomalyRow{
		ID:          a.ID,
		Timestamp:   a.Timestamp.UTC(),
		Actor:       a.Actor,
		EventID:     a.Event.ID,
		Action:      a.Event.Action,
		Types:       string(types),
		Findings:    string(findings),
		RiskScore:   a.RiskScore,
		Critical:    a.Critical(),
		Status:      a.Status,
		ActionTaken: optional(a.ActionTaken),
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
