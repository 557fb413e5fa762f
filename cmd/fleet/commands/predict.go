package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openfleet/openfleet/pkg/scoring"
)

func newPredictCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict <vehicle-id>",
		Short: "Score component failure risk",
		Long: `Score one vehicle's latest sensor snapshot and maintenance history.

Prints each at-risk component with its failure probability and severity,
the overall risk, remaining useful life, and the service urgency, cost and
duration estimates.`,
		Example: `  fleet predict VEH001
  fleet predict VEH001 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			id := args[0]
			vehicle, err := a.Fleet.Vehicle(ctx, id)
			if err != nil {
				return err
			}
			sensors, err := a.Fleet.LatestSensors(ctx, id)
			if err != nil {
				return err
			}
			history, err := a.Fleet.History(ctx, id)
			if err != nil {
				return err
			}

			res, err := a.Scoring.Predict(vehicle, sensors, history)
			if err != nil {
				return err
			}

			view := predictionView{
				Diagnosis: res,
				Urgency:   scoring.UrgencyOf(res),
				Cost:      scoring.EstimateCost(res.Predictions),
				Duration:  scoring.EstimateDuration(res.Predictions),
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), view)
			}
			printPrediction(cmd.OutOrStdout(), view)
			return nil
		},
	}

	return cmd
}

type predictionView struct {
	Diagnosis *scoring.DiagnosisResult `json:"diagnosis"`
	Urgency   scoring.Urgency          `json:"urgency"`
	Cost      scoring.CostEstimate     `json:"cost"`
	Duration  scoring.DurationEstimate `json:"duration"`
}

func printPrediction(w io.Writer, v predictionView) {
	d := v.Diagnosis
	fmt.Fprintf(w, "Vehicle %s\n", d.VehicleID)
	fmt.Fprintf(w, "%s\n\n", scoring.Summary(d))

	if len(d.Predictions) == 0 {
		fmt.Fprintln(w, "No components at risk.")
	}
	for _, p := range d.Predictions {
		fmt.Fprintf(w, "  %-14s %5.0f%%  %-8s  ~%d days\n",
			p.Component, p.Probability*100, p.Severity, p.EstimatedDaysToFailure)
	}

	rul := d.RemainingUsefulLife
	fmt.Fprintf(w, "\nRemaining useful life: %.0f km / %d days (%s confidence)\n",
		rul.EstimatedDistance, rul.EstimatedDays, rul.Confidence)
	fmt.Fprintf(w, "Urgency: %s, %s\n", v.Urgency.Level, v.Urgency.Message)
	fmt.Fprintf(w, "Estimated cost: ₹%d - ₹%d\n", v.Cost.Min, v.Cost.Max)
	fmt.Fprintf(w, "Estimated duration: %s\n", v.Duration.Formatted)
	fmt.Fprintf(w, "Recommended action: %s\n", d.RecommendedAction)
}
