package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tailor/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, provider, and run store status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			baseURL := ctx.baseURL()

			status, err := ctx.client().Status(cmd.Context())
			if err != nil {
				var apiErr *api.Error
				if errors.As(err, &apiErr) {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.DaemonStatus{})
				}
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "Not running ("+baseURL+")", colorize))
				fmt.Fprintln(out, wrapDialError(err, baseURL))
				return nil
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d, %s)", status.PID, baseURL), colorize))
			if status.StartedAt != "" {
				fmt.Fprintln(out, renderStatusLine("Started", statusInfo, formatTimestamp(status.StartedAt), colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Active runs", statusInfo, strconv.Itoa(status.ActiveRuns), colorize))
			fmt.Fprintln(out, renderStatusLine("Progress", statusInfo,
				fmt.Sprintf("%d channels, %d subscribers", status.Progress.Channels, status.Progress.Subscribers), colorize))
			fmt.Fprintln(out, renderStatusLine("Pipelines", statusInfo, strconv.Itoa(len(status.Pipelines)), colorize))
			fmt.Fprintln(out)

			for _, line := range renderSectionHeader("Run Store", colorize) {
				fmt.Fprintln(out, line)
			}
			if db := status.Database; db != nil {
				kind, detail := statusOK, "Integrity OK"
				if !db.IntegrityOK {
					kind, detail = statusError, "Integrity check failed"
				}
				fmt.Fprintln(out, renderStatusLine("Database", kind, fmt.Sprintf("%s (schema v%d, %s)", detail, db.SchemaVersion, db.Path), colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Database", statusWarn, "Unavailable", colorize))
			}
			if runs := status.Runs; runs != nil {
				fmt.Fprintln(out, renderStatusLine("Runs", statusInfo,
					fmt.Sprintf("%d total, %d running, %d completed, %d failed", runs.Total, runs.Running, runs.Completed, runs.Failed), colorize))
			}
			fmt.Fprintln(out)

			rows := make([][]string, 0, len(status.Providers))
			for _, provider := range status.Providers {
				rows = append(rows, []string{provider.Name, provider.Model, yesNo(provider.Configured)})
			}
			fmt.Fprintln(out, renderTableSpec(tableSpec{
				Title:   "Providers",
				Headers: []string{"Provider", "Model", "Configured"},
				Rows:    rows,
			}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
