package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cadencefm/cadence/internal/sdk"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show the progress of an upload session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()
			cmd.SilenceUsage = true

			status, err := client.Uploads.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			state := yellow("in progress")
			if status.Complete {
				state = green("ready to complete")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", cyan(status.SessionID), state)
			fmt.Fprintf(out, "  %-10s %s\n", "file", status.FileName)
			fmt.Fprintf(out, "  %-10s %d/%d chunks (%.1f%%)\n", "received", status.Received, status.Total, status.Progress*100)
			fmt.Fprintf(out, "  %-10s %s\n", "expires", status.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
			if len(status.Missing) > 0 {
				fmt.Fprintf(out, "  %-10s %s\n", "missing", formatIndices(status.Missing, 20))
			}
			return nil
		},
	}
}

func newCancelCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel an upload session and discard its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()
			cmd.SilenceUsage = true

			if err := client.Uploads.Cancel(cmd.Context(), args[0]); err != nil && !sdk.IsCode(err, sdk.CodeNotFound) {
				return err
			}

			if file != "" {
				stateDir, _ := cmd.Flags().GetString("state-dir")
				if err := os.Remove(sdk.StateFile(stateDir, file)); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("remove upload state: %w", err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("cancelled"), args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Also forget the local resume state of this file")
	return cmd
}

// formatIndices prints up to limit indices and a count of the rest
func formatIndices(indices []int, limit int) string {
	parts := make([]string, 0, min(len(indices), limit))
	for _, i := range indices[:min(len(indices), limit)] {
		parts = append(parts, fmt.Sprint(i))
	}
	s := strings.Join(parts, ",")
	if rest := len(indices) - limit; rest > 0 {
		s += fmt.Sprintf(" (+%d more)", rest)
	}
	return s
}
