package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfleet/openfleet/pkg/app"
	"github.com/openfleet/openfleet/pkg/config"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fleet",
		Short: "OpenFleet - predictive maintenance orchestration",
		Long: `OpenFleet runs a multi-stage maintenance pipeline for each vehicle in a fleet.

Features:
  - Rule-weighted component failure prediction
  - Sequenced analysis, diagnosis, engagement, scheduling, feedback and insight stages
  - Per-actor behavior auditing against declared policies
  - Advisory Rego rules with live reload
  - SQLite archive of workflows, activity and anomalies`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default $"+config.EnvConfigPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newOrchestrateCommand())
	rootCmd.AddCommand(newPredictCommand())
	rootCmd.AddCommand(newDashboardCommand())
	rootCmd.AddCommand(newMonitorCommand())
	rootCmd.AddCommand(newWorkflowsCommand())
	rootCmd.AddCommand(newAnomaliesCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}

// loadConfig reads the config named by --config and applies --verbose.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// openApp assembles the application. Callers must Close it.
func openApp(ctx context.Context, mutate ...func(*config.Config)) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	for _, m := range mutate {
		m(cfg)
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("config", configPath).Msg("Application ready")
	return a, nil
}

func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("Shutdown incomplete")
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
