package main

import (
	"github.com/spf13/cobra"

	"tailor/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var logFormat string
	var development bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the tailor daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				LogFormat:   logFormat,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "Override logging.format (console or json)")
	cmd.Flags().BoolVar(&development, "dev", false, "Debug logging unless --log-level is set")
	return cmd
}
