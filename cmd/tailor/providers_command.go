package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tailor/internal/logging"
	"tailor/internal/services/llm"
)

func newProvidersCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "LLM provider utilities",
	}
	cmd.AddCommand(newProvidersCheckCommand(ctx))
	return cmd
}

func newProvidersCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Send a small health prompt to every configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			adapter := llm.NewAdapterFromConfig(cfg, logging.NewNop())
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Providers", colorize) {
				fmt.Fprintln(out, line)
			}

			healthy := 0
			for _, result := range adapter.HealthCheck(cmd.Context()) {
				label := result.Provider
				switch {
				case !result.Configured:
					fmt.Fprintln(out, renderStatusLine(label, statusWarn, "API key not set", colorize))
				case result.Err != nil:
					fmt.Fprintln(out, renderStatusLine(label, statusError, result.Err.Error(), colorize))
				default:
					healthy++
					fmt.Fprintln(out, renderStatusLine(label, statusOK, "Ready ("+result.Model+")", colorize))
				}
			}
			if healthy == 0 {
				return errors.New("no provider passed the health check")
			}
			return nil
		},
	}
}
