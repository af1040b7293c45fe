package main

import (
	"log/slog"

	"github.com/cadencefm/cadence/internal/server"
	"github.com/cadencefm/cadence/internal/utils"
	"github.com/cadencefm/cadence/internal/version"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload, stream and tiering server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			closeLog, err := setupFileLogging(cfg.LogDir)
			if err != nil {
				return err
			}
			defer closeLog()

			slog.Info("cadence", "version", version.Short(), "addr", cfg.HTTP.Addr, "data", cfg.DataDir,
				"auth", cfg.Auth.Enabled, "ratelimit", cfg.RateLimit.Enabled, "redis", cfg.Redis.Enabled())
			if cfg.Redis.Password != "" {
				slog.Debug("redis auth", "password", utils.MaskSecret(cfg.Redis.Password))
			}

			srv, err := server.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			defer slog.Info("Bye!")
			return srv.Start(cmd.Context())
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringP("bind", "b", server.DefaultAddr, "Address to bind the server")
	cmd.Flags().String("cert", "", "Path to the TLS certificate file")
	cmd.Flags().String("key", "", "Path to the TLS key file")
	return cmd
}
