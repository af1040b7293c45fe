package main

import (
	"fmt"
	"time"

	"github.com/cadencefm/cadence/internal/server/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint tokens for operations and testing",
	}

	cmd.AddCommand(newStreamTokenCmd())
	cmd.AddCommand(newAccessTokenCmd())
	return cmd
}

func newStreamTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stream <object-id>",
		Short: "Mint a stream token for one object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			tokens := auth.NewStreamTokens(cfg.Auth.StreamTokenSecret, cfg.Auth.StreamTokenValidity)
			token, err := tokens.Issue(args[0], time.Now())
			if err != nil {
				return fmt.Errorf("issue stream token: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
}

func newAccessTokenCmd() *cobra.Command {
	var admin bool

	cmd := &cobra.Command{
		Use:   "access <subject>",
		Short: "Mint an API access token for a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if cfg.Auth.AccessTokenSecret == "" {
				return fmt.Errorf("auth `access_token_secret` is not configured")
			}

			level := auth.LevelUser
			if admin {
				level = auth.LevelAdmin
			}

			token, err := auth.NewAuthService(&cfg.Auth).IssueAccessToken(args[0], level)
			if err != nil {
				return fmt.Errorf("issue access token: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().BoolVar(&admin, "admin", false, "Grant the admin level")
	return cmd
}
