package commands

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfleet/openfleet/pkg/engine"
)

func newOrchestrateCommand() *cobra.Command {
	var (
		all      bool
		parallel int
	)

	cmd := &cobra.Command{
		Use:   "orchestrate [vehicle-id...]",
		Short: "Run the maintenance pipeline",
		Long: `Run the complete maintenance pipeline for one or more vehicles.

Each vehicle gets its own workflow. Stages run in order:
  1. Data analysis
  2. Diagnosis (when anomalies are found or service is due)
  3. Customer engagement (when maintenance is required)
  4. Scheduling (when the customer accepts)
  5. Feedback (when an appointment is booked)
  6. Manufacturing insights (always)

Pipelines for different vehicles run concurrently.`,
		Example: `  # Run the pipeline for one vehicle
  fleet orchestrate VEH001

  # Run every vehicle in the dataset, four at a time
  fleet orchestrate --all --parallel 4 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			vehicles := args
			if all {
				vehicles = a.Fleet.VehicleIDs()
			}
			if len(vehicles) == 0 {
				return fmt.Errorf("no vehicles given; pass ids or --all")
			}

			log.Info().
				Strs("vehicles", vehicles).
				Int("parallel", parallel).
				Msg("Orchestrating")

			results := a.Orchestrator.OrchestrateMany(ctx, vehicles, parallel)

			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
				}
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := printJSON(out, batchView(results)); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					printBatchResult(out, r)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d workflows failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "run every vehicle in the dataset")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", engine.DefaultMaxParallel, "maximum concurrent pipelines")

	return cmd
}

type batchEntry struct {
	VehicleID string           `json:"vehicle_id"`
	Workflow  *engine.Workflow `json:"workflow,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func batchView(results []engine.BatchResult) []batchEntry {
	out := make([]batchEntry, len(results))
	for i, r := range results {
		out[i] = batchEntry{VehicleID: r.VehicleID, Workflow: r.Workflow}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return out
}

func printBatchResult(w io.Writer, r engine.BatchResult) {
	if r.Workflow == nil {
		fmt.Fprintf(w, "✗ %s: %v\n\n", r.VehicleID, r.Err)
		return
	}

	wf := r.Workflow
	mark := "✓"
	if r.Err != nil {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s  workflow %s  %s  (%s)\n", mark, r.VehicleID, wf.ID, wf.Status, wf.Duration())

	report, ok := wf.Result.(*engine.PipelineReport)
	if !ok {
		if r.Err != nil {
			fmt.Fprintf(w, "  error: %v\n\n", r.Err)
		}
		return
	}
	for _, s := range report.StepsCompleted {
		fmt.Fprintf(w, "  %s\n", s)
	}
	fmt.Fprintf(w, "\n%s\n\n", report.Summary)
}
