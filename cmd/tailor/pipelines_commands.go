package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tailor/internal/api"
	"tailor/internal/pipeline"
)

func newPipelinesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pipelines",
		Aliases: []string{"pipeline"},
		Short:   "Inspect the pipeline catalog",
	}
	cmd.AddCommand(newPipelinesListCommand(ctx))
	cmd.AddCommand(newPipelinesShowCommand(ctx))
	return cmd
}

func newPipelinesListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var remote bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			var summaries []api.PipelineSummary
			if remote {
				client := ctx.client()
				list, err := client.Pipelines(cmd.Context())
				if err != nil {
					return wrapDialError(err, ctx.baseURL())
				}
				summaries = list
			} else {
				cat, err := ctx.catalog()
				if err != nil {
					return err
				}
				for _, def := range cat.List() {
					summaries = append(summaries, api.FromPipeline(def))
				}
			}
			if jsonOut {
				return writeJSON(cmd, summaries)
			}

			rows := make([][]string, 0, len(summaries))
			for _, summary := range summaries {
				stages := make([]string, 0, len(summary.Stages))
				for _, stage := range summary.Stages {
					stages = append(stages, stage.Name)
				}
				source := "custom"
				if summary.Builtin {
					source = "builtin"
				}
				rows = append(rows, []string{
					summary.Name,
					source,
					strings.Join(stages, " → "),
					summary.Description,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "Source", "Stages", "Description"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&remote, "remote", false, "List the catalog loaded by the running daemon")
	return cmd
}

func newPipelinesShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var dot bool
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a pipeline's inputs, stages, and dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.catalog()
			if err != nil {
				return err
			}
			def, err := cat.Get(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dot {
				return pipeline.WriteDOT(out, def.Specs())
			}
			summary := api.FromPipeline(def)
			if jsonOut {
				return writeJSON(cmd, def)
			}

			fmt.Fprintf(out, "%s\n", summary.Name)
			if summary.Description != "" {
				fmt.Fprintf(out, "%s\n", summary.Description)
			}
			fmt.Fprintln(out)

			inputRows := make([][]string, 0, len(summary.Inputs))
			for _, input := range summary.Inputs {
				inputRows = append(inputRows, []string{input.Name, yesNo(input.Required), valueOrDash(input.Default), input.Description})
			}
			fmt.Fprintln(out, renderTableSpec(tableSpec{
				Title:   "Inputs",
				Headers: []string{"Name", "Required", "Default", "Description"},
				Rows:    inputRows,
			}))

			stageRows := make([][]string, 0, len(summary.Stages))
			for i, stage := range summary.Stages {
				shape := stage.OutputKind
				if stage.Cardinality > 0 {
					shape += " ×" + strconv.Itoa(stage.Cardinality)
				}
				if len(stage.Keys) > 0 {
					shape += " {" + strings.Join(stage.Keys, ", ") + "}"
				}
				stageRows = append(stageRows, []string{
					strconv.Itoa(i + 1),
					stageLabel(stage.Name),
					shape,
					valueOrDash(strings.Join(stage.Requires, ", ")),
					valueOrDash(strings.Join(stage.Inputs, ", ")),
				})
			}
			fmt.Fprintln(out, renderTableSpec(tableSpec{
				Title:   "Stages",
				Headers: []string{"#", "Stage", "Output", "Requires", "Inputs"},
				Rows:    stageRows,
				Aligns:  []columnAlignment{alignRight},
			}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the full definition as JSON")
	cmd.Flags().BoolVar(&dot, "dot", false, "Output the stage dependency graph in Graphviz DOT format")
	return cmd
}
