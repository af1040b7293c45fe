package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <object-id>",
		Short: "Show a stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()
			cmd.SilenceUsage = true

			obj, err := client.Objects.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printObject(cmd.OutOrStdout(), obj)
			return nil
		},
	}
}

func newSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search stored objects by name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()
			cmd.SilenceUsage = true

			query := ""
			if len(args) == 1 {
				query = args[0]
			}

			objects, err := client.Objects.Search(cmd.Context(), query, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(objects) == 0 {
				fmt.Fprintln(out, yellow("no objects"))
				return nil
			}
			for _, obj := range objects {
				fmt.Fprintf(out, "%s  %-5s %9s  %s\n", cyan(obj.ID), obj.Tier, humanize.IBytes(uint64(obj.Size)), obj.Name)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of results")
	return cmd
}
