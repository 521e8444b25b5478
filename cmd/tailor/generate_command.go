package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"tailor/internal/api"
	"tailor/internal/generation"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var pipelineName string
	var requestID string
	var providers []string
	var stream bool
	var jsonOut bool
	var plain bool
	var inputs inputFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run a pipeline on the daemon",
		Long: "Generate runs a pipeline and prints every stage result.\n\n" +
			"With --stream the run is started in the background and followed live;\n" +
			"press q to detach and resume later with `tailor watch <requestId>`.",
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := inputs.resolve()
			if err != nil {
				return err
			}
			req := api.GenerateRequest{
				RequestID: strings.TrimSpace(requestID),
				Pipeline:  strings.TrimSpace(pipelineName),
				Inputs:    values,
				Providers: providers,
			}
			client := ctx.client()

			if !stream {
				run, err := client.Generate(cmd.Context(), req)
				if err != nil {
					return wrapDialError(err, ctx.baseURL())
				}
				if jsonOut {
					if err := writeJSON(cmd, run); err != nil {
						return err
					}
				} else {
					printRun(cmd.OutOrStdout(), run)
				}
				return runError(run)
			}

			if req.RequestID == "" {
				req.RequestID = uuid.NewString()
			}
			return watchRun(cmd, client, watchOptions{
				requestID:  req.RequestID,
				stageNames: ctx.stageNames(req.Pipeline),
				plain:      plain,
				jsonOut:    jsonOut,
				start: func(startCtx context.Context) error {
					_, err := client.Start(startCtx, req)
					return err
				},
			}, ctx.baseURL())
		},
	}

	cmd.Flags().StringVarP(&pipelineName, "pipeline", "p", "", "Pipeline to run (default "+generation.DefaultPipeline+")")
	cmd.Flags().StringVar(&requestID, "request-id", "", "Request id to use instead of a generated one")
	cmd.Flags().StringSliceVar(&providers, "provider", nil, "Provider order override (repeatable or comma separated)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream progress while the run executes")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON (NDJSON events when streaming)")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print plain progress lines instead of the interactive view")
	inputs.register(cmd)
	return cmd
}

// stageNames returns the local catalog's stage order for name, or nil when
// the catalog cannot be loaded.
func (c *commandContext) stageNames(name string) []string {
	if name == "" {
		name = generation.DefaultPipeline
	}
	cat, err := c.catalog()
	if err != nil {
		return nil
	}
	def, err := cat.Get(name)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(def.Stages))
	for _, stage := range def.Stages {
		names = append(names, stage.Name)
	}
	return names
}

func printRun(out io.Writer, run api.RunResponse) {
	fmt.Fprintf(out, "Request: %s\n", run.RequestID)
	if run.Pipeline != "" {
		fmt.Fprintf(out, "Pipeline: %s\n", run.Pipeline)
	}
	rows := make([][]string, 0, len(run.Stages))
	for _, stage := range run.Stages {
		rows = append(rows, []string{
			strconv.Itoa(stage.Index + 1),
			stageLabel(stage.Name),
			stage.Status,
			valueOrDash(stage.ParseOutcome),
			valueOrDash(stage.Provider),
			formatTokens(stage.Tokens.Total),
			formatDurationMs(stage.DurationMs),
		})
	}
	fmt.Fprintln(out, renderTableSpec(tableSpec{
		Headers: []string{"#", "Stage", "Status", "Parse", "Provider", "Tokens", "Duration"},
		Rows:    rows,
		Aligns:  []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
		Footer:  []string{"", "Total", run.Status, "", "", formatTokens(run.Tokens.Total), formatDurationMs(run.DurationMs)},
	}))
	if run.Failed() {
		fmt.Fprintf(out, "Error (%s): %s\n", valueOrDash(run.ErrorKind), run.Error)
		return
	}
	if len(run.Output) > 0 {
		fmt.Fprintln(out, "Output:")
		fmt.Fprintln(out, formatJSON(run.Output))
	}
}

func runError(run api.RunResponse) error {
	if !run.Failed() {
		return nil
	}
	if run.FailedStage != "" {
		return fmt.Errorf("run %s failed at stage %s: %s", run.RequestID, run.FailedStage, run.Error)
	}
	return fmt.Errorf("run %s failed: %s", run.RequestID, run.Error)
}
