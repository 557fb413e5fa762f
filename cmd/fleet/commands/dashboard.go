package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfleet/openfleet/pkg/monitor"
)

func newDashboardCommand() *cobra.Command {
	var (
		vehicles []string
		recent   int
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the behavior monitor dashboard",
		Long: `Run the pipeline for a set of vehicles and show what the behavior monitor saw.

The monitor keeps its state in memory, so the dashboard reflects the
workflows run by this invocation. Without --vehicle every vehicle in the
dataset is processed.`,
		Example: `  fleet dashboard
  fleet dashboard --vehicle VEH001 --recent 5 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			if len(vehicles) == 0 {
				vehicles = a.Fleet.VehicleIDs()
			}
			a.Orchestrator.OrchestrateMany(ctx, vehicles, 0)

			if !cmd.Flags().Changed("recent") {
				recent = a.Config.Monitor.RecentAnomalies
			}
			d := a.Monitor.Dashboard(recent)
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), d)
			}
			printDashboard(cmd.OutOrStdout(), d)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&vehicles, "vehicle", nil, "vehicles to process (default all)")
	cmd.Flags().IntVar(&recent, "recent", 10, "number of recent anomalies to list")

	return cmd
}

func printDashboard(w io.Writer, d *monitor.Dashboard) {
	fmt.Fprintf(w, "Behavior monitor @ %s\n", d.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "Actors: %d  Anomalies: %d  Critical: %d\n\n", d.TotalActors, d.TotalAnomalies, d.CriticalAnomalies)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTOR\tACTIONS\tANOMALIES\tRATE\tRISK\tLAST ACTIVITY")
	for _, s := range d.Summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
			s.Actor, s.TotalActions, s.AnomalyCount, s.AnomalyRate, s.RiskLevel, s.LastActivity.Format(time.RFC3339))
	}
	_ = tw.Flush()

	if len(d.RecentAnomalies) == 0 {
		return
	}
	fmt.Fprintln(w, "\nRecent anomalies:")
	for _, r := range d.RecentAnomalies {
		types := make([]string, len(r.Types))
		for i, t := range r.Types {
			types[i] = string(t)
		}
		fmt.Fprintf(w, "  %s  %-24s risk %.2f  %s\n", r.Timestamp.Format(time.RFC3339), r.Actor, r.RiskScore, strings.Join(types, ","))
	}
}
