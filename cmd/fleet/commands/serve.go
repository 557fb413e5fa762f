package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfleet/openfleet/pkg/app"
	"github.com/openfleet/openfleet/pkg/config"
)

func newServeCommand() *cobra.Command {
	var (
		interval time.Duration
		parallel int
		metrics  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline for the whole fleet on an interval",
		Long: `Run the maintenance pipeline for every vehicle in the dataset, repeating
on a fixed interval until interrupted.

While serving, Prometheus metrics are exposed and, when monitor.watch_policies
is set, the policy file and rules directory are reloaded on change.`,
		Example: `  fleet serve --interval 15m
  fleet serve --metrics-addr :9090 --parallel 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("interval must be positive, got %s", interval)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, func(cfg *config.Config) {
				cfg.Telemetry.Metrics.Enabled = true
				if metrics != "" {
					cfg.Telemetry.Metrics.ListenAddress = metrics
				}
			})
			if err != nil {
				return err
			}
			defer closeApp(a)

			// closeApp stops the server through Telemetry.Shutdown.
			serveErr := a.Telemetry.Metrics.StartMetricsServer()

			if a.Config.Monitor.WatchPolicies {
				if err := a.WatchPolicies(ctx); err != nil {
					return err
				}
			}

			log.Info().
				Dur("interval", interval).
				Int("parallel", parallel).
				Str("metrics", a.Config.Telemetry.Metrics.ListenAddress).
				Int("vehicles", len(a.Fleet.VehicleIDs())).
				Msg("Serving")

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			due := true
			for {
				if due {
					runFleet(ctx, a, parallel)
					due = false
				}

				select {
				case <-ctx.Done():
					log.Info().Msg("Stopping")
					return nil
				case err, ok := <-serveErr:
					if ok && err != nil {
						return fmt.Errorf("metrics server failed: %w", err)
					}
					serveErr = nil
				case <-ticker.C:
					due = true
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 30*time.Minute, "time between fleet runs")
	cmd.Flags().IntVar(&parallel, "parallel", 4, "maximum concurrent workflows")
	cmd.Flags().StringVar(&metrics, "metrics-addr", "", "metrics listen address (overrides config)")

	return cmd
}

// runFleet runs one pipeline per vehicle and logs the batch outcome.
func runFleet(ctx context.Context, a *app.App, parallel int) {
	start := time.Now()
	results := a.Orchestrator.OrchestrateMany(ctx, a.Fleet.VehicleIDs(), parallel)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			log.Warn().Err(r.Err).Str("vehicle_id", r.VehicleID).Msg("Workflow failed")
		}
	}

	dash := a.Monitor.Dashboard(a.Config.Monitor.RecentAnomalies)
	log.Info().
		Int("workflows", len(results)).
		Int("failed", failed).
		Int("anomalies", dash.TotalAnomalies).
		Int("critical", dash.CriticalAnomalies).
		Dur("duration", time.Since(start)).
		Msg("Fleet run finished")
}
