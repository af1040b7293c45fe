package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cadencefm/cadence/internal/sdk"
	"github.com/cadencefm/cadence/internal/version"
	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _         = os.UserHomeDir()
	defaultStateDir = filepath.Join(home, ".cadence", "uploads")
)

var (
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cadencectl",
		Short:         "Cadence media pipeline client",
		Version:       version.Detailed(),
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("server", "s", sdk.DefaultBaseURL, "Cadence server url")
	rootCmd.PersistentFlags().StringP("token", "t", "", "API access token")
	rootCmd.PersistentFlags().String("client", "", "Client id, for servers running without auth")
	rootCmd.PersistentFlags().String("state-dir", defaultStateDir, "Directory for resumable upload state")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log sdk activity")

	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCancelCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newSearchCmd())
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red("error:"), err)
		os.Exit(1)
	}
}

// newClient builds an sdk client from flags, falling back to CADENCE_SERVER_URL,
// CADENCE_ACCESS_TOKEN and CADENCE_CLIENT_ID
func newClient(cmd *cobra.Command) (*sdk.Client, error) {
	v := viper.New()
	v.SetEnvPrefix("CADENCE")
	v.AutomaticEnv()
	v.SetDefault("server_url", sdk.DefaultBaseURL)
	v.SetDefault("access_token", "")
	v.SetDefault("client_id", "")

	for flag, key := range map[string]string{"server": "server_url", "token": "access_token", "client": "client_id"} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return nil, err
		}
	}

	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:   level,
		NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
	})))

	return sdk.New(&sdk.Config{
		BaseURL:     v.GetString("server_url"),
		AccessToken: v.GetString("access_token"),
		ClientID:    v.GetString("client_id"),
	})
}
