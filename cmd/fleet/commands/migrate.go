package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply archive schema migrations",
		Long: `Apply the embedded schema migrations to the SQLite archive.

The store also migrates itself on startup; this command is for inspecting
the schema version or reverting it.`,
		Example: `  fleet migrate
  fleet migrate --down`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, cfg, err := openStore(ctx, false)
			if err != nil {
				return err
			}
			defer store.Close()

			log.Info().Str("path", cfg.Store.Path).Bool("down", down).Msg("Migrating archive")

			if down {
				err = store.MigrateDown(ctx)
			} else {
				err = store.Migrate(ctx)
			}
			if err != nil {
				return err
			}

			version, dirty, err := store.SchemaVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Schema version %d (dirty: %v) at %s\n", version, dirty, cfg.Store.Path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "revert every migration")

	return cmd
}
