package main

import (
	"fmt"
	"os"

	"github.com/rpattn/histd/internal/config"
	"github.com/rpattn/histd/internal/logging"

	"github.com/spf13/cobra"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

			version, err := migrate(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			logger.Info("database migrated", "driver", cfg.Database.Driver, "version", version)
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
}
