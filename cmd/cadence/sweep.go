package main

import (
	"fmt"
	"log/slog"

	"github.com/cadencefm/cadence/internal/db"
	"github.com/cadencefm/cadence/internal/server"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one storage tier pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			database, err := db.Open(cfg.DB)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer database.Close()

			svc, err := server.NewServices(cmd.Context(), cfg, database, nil)
			if err != nil {
				return err
			}
			defer func() {
				if err := svc.Shutdown(cmd.Context()); err != nil {
					slog.Warn("sweep shutdown", "error", err)
				}
			}()

			summary, err := svc.Tier.Run(cmd.Context())
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, migrated %d, unchanged %d, failed %d in %s\n",
				summary.Scanned, summary.Migrated, summary.Unchanged, summary.Failed, summary.Took)
			return err
		},
	}
}
