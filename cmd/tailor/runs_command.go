package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "runs",
		Aliases: []string{"run"},
		Short:   "Inspect persisted runs",
	}
	cmd.AddCommand(newRunsShowCommand(ctx))
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <requestId>",
		Short: "Show a run record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := ctx.client().Run(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return wrapDialError(err, ctx.baseURL())
			}
			if jsonOut {
				return writeJSON(cmd, run)
			}
			out := cmd.OutOrStdout()
			printRun(out, run)
			if run.BatchID != "" {
				index := "-"
				if run.ItemIndex != nil {
					index = fmt.Sprint(*run.ItemIndex)
				}
				fmt.Fprintf(out, "Batch: %s (item %s)\n", run.BatchID, index)
			}
			if run.CreatedAt != "" {
				fmt.Fprintf(out, "Created: %s\n", formatTimestamp(run.CreatedAt))
			}
			if run.UpdatedAt != "" {
				fmt.Fprintf(out, "Updated: %s\n", formatTimestamp(run.UpdatedAt))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
