package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tailor/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set providers.deepseek.api_key or providers.openai.api_key (or export DEEPSEEK_API_KEY / OPENAI_API_KEY) before generating.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file and pipeline catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			cat, err := ctx.catalog()
			if err != nil {
				return fmt.Errorf("load pipeline catalog: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			if _, err := os.Stat(ctx.configPath); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintf(out, "Pipelines: %s\n", strings.Join(cat.Names(), ", "))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			masked := *cfg
			masked.Paths.APIToken = maskSecret(cfg.Paths.APIToken)
			masked.Providers.DeepSeek.APIKey = maskSecret(cfg.Providers.DeepSeek.APIKey)
			masked.Providers.OpenAI.APIKey = maskSecret(cfg.Providers.OpenAI.APIKey)
			if jsonOut {
				return writeJSON(cmd, masked)
			}

			rows := [][]string{
				{"paths.data_dir", masked.Paths.DataDir},
				{"paths.log_dir", masked.Paths.LogDir},
				{"paths.pipelines_file", valueOrDash(masked.Paths.PipelinesFile)},
				{"paths.api_bind", masked.Paths.APIBind},
				{"paths.api_token", valueOrDash(masked.Paths.APIToken)},
			}
			for _, name := range config.ProviderNames() {
				provider, _ := masked.ProviderConfig(name)
				prefix := "providers." + name
				rows = append(rows,
					[]string{prefix + ".api_key", valueOrDash(provider.APIKey)},
					[]string{prefix + ".base_url", provider.BaseURL},
					[]string{prefix + ".model", provider.Model},
				)
			}
			rows = append(rows,
				[]string{"llm.provider_order", strings.Join(masked.LLM.ProviderOrder, ", ")},
				[]string{"llm.temperature", strconv.FormatFloat(masked.LLM.Temperature, 'f', -1, 64)},
				[]string{"llm.max_tokens", strconv.Itoa(masked.LLM.MaxTokens)},
				[]string{"batch.concurrency", fmt.Sprintf("%d (max %d)", masked.Batch.Concurrency, masked.Batch.MaxConcurrency)},
				[]string{"batch.max_items", strconv.Itoa(masked.Batch.MaxItems)},
				[]string{"progress.idle_timeout", cfg.IdleTimeout().String()},
				[]string{"progress.retain_terminal", cfg.RetainTerminal().String()},
				[]string{"runs.retention_days", retentionLabel(masked.Runs.RetentionDays)},
				[]string{"logging", masked.Logging.Format + " / " + masked.Logging.Level},
			)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			fmt.Fprintln(out, renderTable([]string{"Setting", "Value"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func retentionLabel(days int) string {
	if days <= 0 {
		return "keep forever"
	}
	return fmt.Sprintf("%d days", days)
}

func maskSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "…" + value[len(value)-2:]
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
