package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfleet/openfleet/pkg/config"
	"github.com/openfleet/openfleet/pkg/stores"
)

// openStore opens the archive named by the config without assembling the
// pipeline. With migrate set the schema is brought up to date first.
func openStore(ctx context.Context, migrate bool) (*stores.SQLiteStore, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Store.Enabled {
		return nil, nil, fmt.Errorf("the archive is disabled; set store.enabled in the config")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := stores.NewSQLiteStore(cfg.Store.Config)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if migrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return store, cfg, nil
}

func optionalFlag(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func newWorkflowsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "Browse archived workflows",
		Long: `Browse workflows archived in the SQLite store.

Workflows are archived when they complete or fail, provided store.enabled
is set in the config.`,
	}

	cmd.AddCommand(newWorkflowsListCommand())
	cmd.AddCommand(newWorkflowsShowCommand())
	cmd.AddCommand(newWorkflowsDeleteCommand())
	cmd.AddCommand(newWorkflowsStatsCommand())

	return cmd
}

func newWorkflowsListCommand() *cobra.Command {
	var (
		status  string
		vehicle string
		limit   int
		offset  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived workflows",
		Example: `  fleet workflows list
  fleet workflows list --status failed
  fleet workflows list --vehicle VEH001 --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, _, err := openStore(ctx, true)
			if err != nil {
				return err
			}
			defer store.Close()

			wfs, err := store.ListWorkflows(ctx, optionalFlag(status), optionalFlag(vehicle), limit, offset)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), wfs)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tVEHICLE\tSTATUS\tSTARTED\tDURATION")
			for _, wf := range wfs {
				vehicleID, duration := "-", "-"
				if wf.VehicleID != nil {
					vehicleID = *wf.VehicleID
				}
				if wf.CompletedAt != nil {
					duration = wf.CompletedAt.Sub(wf.StartedAt).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", wf.ID, vehicleID, wf.Status, wf.StartedAt.Format(time.RFC3339), duration)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (started, completed, failed)")
	cmd.Flags().StringVar(&vehicle, "vehicle", "", "filter by vehicle id")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")

	return cmd
}

func newWorkflowsShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <workflow-id>",
		Short: "Show an archived workflow with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, _, err := openStore(ctx, true)
			if err != nil {
				return err
			}
			defer store.Close()

			wf, err := store.GetWorkflow(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), wf)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Workflow %s (%s)\n", wf.ID, wf.Type)
			fmt.Fprintf(out, "Status: %s\n", wf.Status)
			fmt.Fprintf(out, "Started: %s\n", wf.StartedAt.Format(time.RFC3339))
			if wf.CompletedAt != nil {
				fmt.Fprintf(out, "Completed: %s\n", wf.CompletedAt.Format(time.RFC3339))
			}
			fmt.Fprintln(out, "\nSteps:")
			for _, s := range wf.Steps {
				line := fmt.Sprintf("  %d. %s", s.Position+1, s.Stage)
				if s.Skipped {
					line += " (skipped"
					if s.Reason != nil {
						line += ": " + *s.Reason
					}
					line += ")"
				}
				fmt.Fprintln(out, line)
			}

			acts, err := store.ListActivity(ctx, nil, &wf.ID, 1000, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nActivity: %d events\n", len(acts))
			for i := len(acts) - 1; i >= 0; i-- {
				act := acts[i]
				mark := "✓"
				if !act.IsNormal {
					mark = "✗"
				}
				fmt.Fprintf(out, "  %s %s %-24s %s\n", mark, act.Timestamp.Format(time.RFC3339), act.Actor, act.Action)
			}
			return nil
		},
	}

	return cmd
}

func newWorkflowsDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <workflow-id>",
		Short: "Delete an archived workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, _, err := openStore(ctx, true)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteWorkflow(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted workflow %s\n", args[0])
			return nil
		},
	}

	return cmd
}

func newWorkflowsStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count archived rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, _, err := openStore(ctx, true)
			if err != nil {
				return err
			}
			defer store.Close()

			st, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), st)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Workflows: %d\n", st.Workflows)
			for status, n := range st.WorkflowsByStat {
				fmt.Fprintf(out, "  %s: %d\n", status, n)
			}
			fmt.Fprintf(out, "Activity events: %d\n", st.Activity)
			fmt.Fprintf(out, "Anomalies: %d\n", st.Anomalies)
			return nil
		},
	}

	return cmd
}

func newAnomaliesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Review archived anomalies",
	}

	cmd.AddCommand(newAnomaliesListCommand())
	cmd.AddCommand(newAnomaliesResolveCommand())

	return cmd
}

func newAnomaliesListCommand() *cobra.Command {
	var (
		actor string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived anomalies",
		Example: `  fleet anomalies list
  fleet anomalies list --actor scheduling`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, _, err := openStore(ctx, true)
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := store.ListAnomalies(ctx, optionalFlag(actor), limit, 0)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), rows)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIME\tACTOR\tACTION\tRISK\tCRITICAL\tSTATUS\tTYPES")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%v\t%s\t%s\n",
					r.ID, r.Timestamp.Format(time.RFC3339), r.Actor, r.Action, r.RiskScore, r.Critical, r.Status, r.Types)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")

	return cmd
}

func newAnomaliesResolveCommand() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "resolve <anomaly-id>",
		Short: "Set the review status of an anomaly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, _, err := openStore(ctx, true)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.UpdateAnomalyStatus(ctx, args[0], status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Anomaly %s marked %s\n", args[0], status)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "resolved", "new status")

	return cmd
}
