package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfleet/openfleet/pkg/monitor"
)

func newMonitorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Audit actor actions",
		Long: `Check individual actor actions against the declared policies.

The monitor is advisory: it reports findings and never blocks an action.
Checks:
  - UNAUTHORIZED_ACTION: action outside the actor's allowed set
  - UNAUTHORIZED_DATA_ACCESS: data domain outside the actor's allowed set
  - RATE_LIMIT_EXCEEDED: too many actions in the trailing minute
  - UNUSUAL_TIMING: activity outside 06:00-23:00
  - WORKFLOW_MANIPULATION: workflow actions by anyone but the orchestrator
  - POLICY_RULE: advisory Rego rules`,
	}

	cmd.AddCommand(newMonitorRecordCommand())
	cmd.AddCommand(newMonitorSimulateCommand())

	return cmd
}

func newMonitorRecordCommand() *cobra.Command {
	var (
		dataAccess string
		workflowID string
		metadata   map[string]string
	)

	cmd := &cobra.Command{
		Use:   "record <actor> <action>",
		Short: "Record one action and show the verdict",
		Example: `  # A permitted action
  fleet monitor record scheduling availability.check --data-access service_centers

  # An action outside the actor's policy
  fleet monitor record feedback appointment.confirm`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			md := make(map[string]string, len(metadata)+2)
			for k, v := range metadata {
				md[k] = v
			}
			if dataAccess != "" {
				md[monitor.MetaDataAccess] = dataAccess
			}
			if workflowID != "" {
				md[monitor.MetaWorkflowID] = workflowID
			}

			log.Debug().Str("actor", args[0]).Str("action", args[1]).Msg("Recording action")
			ev := a.Recorder.Record(ctx, args[0], args[1], md)

			// The recorder forwards to the monitor; read the verdict back from the anomaly log.
			res := monitor.Result{IsNormal: true}
			for _, rec := range a.Monitor.AnomalyReport(0) {
				if rec.Event.ID == ev.ID {
					res = monitor.Result{Findings: rec.Findings, RiskScore: rec.RiskScore, AnomalyID: rec.ID}
				}
			}
			return printVerdict(cmd.OutOrStdout(), ev, res)
		},
	}

	cmd.Flags().StringVar(&dataAccess, "data-access", "", "data domain the action touches")
	cmd.Flags().StringVar(&workflowID, "workflow", "", "workflow the action belongs to")
	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "extra metadata (key=value)")

	return cmd
}

func newMonitorSimulateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <actor> <kind>",
		Short: "Inject a synthetic anomaly",
		Long: `Inject a synthetic anomalous event to exercise alerting.

Kinds:
  - unauthorized_action
  - unauthorized_data_access
  - workflow_manipulation`,
		Example: `  fleet monitor simulate scheduling unauthorized_data_access`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			res, err := a.Monitor.Simulate(args[0], args[1])
			if err != nil {
				return err
			}

			var ev monitor.Event
			if res.AnomalyID != "" {
				for _, rec := range a.Monitor.AnomalyReport(0) {
					if rec.ID == res.AnomalyID {
						ev = rec.Event
					}
				}
			}
			return printVerdict(cmd.OutOrStdout(), ev, res)
		},
	}

	return cmd
}

type verdictView struct {
	Event  monitor.Event  `json:"event"`
	Result monitor.Result `json:"result"`
}

func printVerdict(w io.Writer, ev monitor.Event, res monitor.Result) error {
	if jsonOutput {
		return printJSON(w, verdictView{Event: ev, Result: res})
	}

	fmt.Fprintf(w, "%s %s (%s)\n", ev.Actor, ev.Action, ev.ID)
	if res.IsNormal {
		fmt.Fprintln(w, "✓ normal")
		return nil
	}
	fmt.Fprintf(w, "✗ anomaly %s, risk %.2f\n", res.AnomalyID, res.RiskScore)
	for _, f := range res.Findings {
		detail := f.Detail
		if f.Rule != "" {
			detail = fmt.Sprintf("%s [%s]", detail, f.Rule)
		}
		fmt.Fprintf(w, "  %-26s %-8s %s\n", f.Type, strings.ToUpper(string(f.Severity)), detail)
	}
	return nil
}
