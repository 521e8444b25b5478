package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tailor/internal/api"
	"tailor/internal/config"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var pipelineName string
	var concurrency int
	var providers []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "batch <file.json>",
		Short: "Run a pipeline over many inputs",
		Long: "Batch reads either a batch request object ({\"pipeline\": ..., \"items\": [...]})\n" +
			"or a bare array of items, each {\"inputs\": {...}}. One item failing does not\n" +
			"stop the others.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readBatchFile(args[0])
			if err != nil {
				return err
			}
			if name := strings.TrimSpace(pipelineName); name != "" {
				req.Pipeline = name
			}
			if concurrency > 0 {
				req.ConcurrencyHint = concurrency
			}
			if len(providers) > 0 {
				req.Providers = providers
			}

			result, err := ctx.client().Batch(cmd.Context(), req)
			if err != nil {
				return wrapDialError(err, ctx.baseURL())
			}
			if jsonOut {
				return writeJSON(cmd, result)
			}

			rows := make([][]string, 0, len(result.Items))
			for _, item := range result.Items {
				detail := item.Error
				if item.FailedStage != "" {
					detail = item.FailedStage + ": " + item.Error
				}
				rows = append(rows, []string{
					strconv.Itoa(item.Index),
					item.RequestID,
					item.Status,
					formatTokens(item.Tokens.Total),
					formatDurationMs(item.DurationMs),
					valueOrDash(detail),
				})
			}
			summary := result.Summary
			out := cmd.OutOrStdout()
			if result.BatchID != "" {
				fmt.Fprintf(out, "Batch: %s\n", result.BatchID)
			}
			fmt.Fprintln(out, renderTableSpec(tableSpec{
				Headers: []string{"#", "Request", "Status", "Tokens", "Duration", "Error"},
				Rows:    rows,
				Aligns:  []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
				Footer: []string{
					"",
					fmt.Sprintf("%d ok / %d failed", summary.Succeeded, summary.Failed),
					strconv.Itoa(summary.Total),
					formatTokens(summary.Tokens.Total),
					formatDurationMs(summary.DurationMs),
				},
			}))
			if summary.Failed > 0 {
				for _, item := range result.Items {
					if item.Status == "completed" {
						continue
					}
					fmt.Fprintf(out, "item %d failed (%s): %s\n", item.Index, valueOrDash(item.ErrorKind), item.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&pipelineName, "pipeline", "p", "", "Pipeline for items that do not name one")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Concurrency hint (bounded by batch.max_concurrency)")
	cmd.Flags().StringSliceVar(&providers, "provider", nil, "Provider order override")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func readBatchFile(path string) (api.BatchRequest, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return api.BatchRequest{}, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return api.BatchRequest{}, fmt.Errorf("read batch file: %w", err)
	}
	var req api.BatchRequest
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		if err := json.Unmarshal(trimmed, &req.Items); err != nil {
			return api.BatchRequest{}, fmt.Errorf("parse batch items %s: %w", expanded, err)
		}
		return req, nil
	}
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return api.BatchRequest{}, fmt.Errorf("parse batch request %s: %w", expanded, err)
	}
	return req, nil
}
