package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var inputs inputFlags
	cmd := &cobra.Command{
		Use:   "render <pipeline> <stage>",
		Short: "Preview the prompt a stage would send, without calling a provider",
		Long: "Render fills a stage template from the given inputs and catalog defaults.\n" +
			"Placeholders that depend on earlier stage output are left as {name}.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.catalog()
			if err != nil {
				return err
			}
			def, err := cat.Get(args[0])
			if err != nil {
				return err
			}
			values, err := inputs.resolve()
			if err != nil {
				return err
			}
			stage, ok := def.Stage(args[1])
			rendered, err := def.RenderStage(args[1], values)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ok && stage.SystemPrompt != "" {
				fmt.Fprintf(out, "--- system ---\n%s\n\n--- user ---\n", stage.SystemPrompt)
			}
			fmt.Fprintln(out, rendered)
			return nil
		},
	}
	inputs.register(cmd)
	return cmd
}
