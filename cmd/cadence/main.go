package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cadencefm/cadence/internal/utils"
	"github.com/cadencefm/cadence/internal/version"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const logTimeFormat = "2006-01-02T15:04:05.000Z07:00"

var (
	home, _        = os.UserHomeDir()
	defaultDataDir = filepath.Join(home, ".cadence")
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cadence",
		Short:         "Cadence media pipeline server",
		Version:       version.Detailed(),
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringP("data-dir", "d", defaultDataDir, "Data directory for the catalog, staging area and local tiers")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newTokenCmd())
	return rootCmd
}

func main() {
	stdoutHandler := newStdoutHandler()
	slog.SetDefault(slog.New(stdoutHandler))

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newStdoutHandler() slog.Handler {
	return tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: logTimeFormat,
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
}

// setupFileLogging fans the default logger out into <logDir>/server.log.
// The returned func closes the file and restores stdout-only logging.
func setupFileLogging(logDir string) (func(), error) {
	if err := utils.EnsureDir(logDir); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(logDir, "server.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	stdoutHandler := newStdoutHandler()
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))

	return func() {
		slog.SetDefault(slog.New(stdoutHandler))
		file.Close()
	}, nil
}
