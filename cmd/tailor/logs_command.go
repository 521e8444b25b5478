package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"tailor/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines     int
		follow    bool
		raw       bool
		requestID string
		component string
		level     string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show records from the daemon log file",
		Long: "Reads the JSON log the daemon writes to <log_dir>/tailor.log. " +
			"Use --request-id to trace one run; the short id printed on the console works too.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Paths.LogDir) == "" {
				return errors.New("paths.log_dir is empty; the daemon is not writing a log file")
			}
			filter := logs.Filter{RequestID: strings.TrimSpace(requestID), Component: strings.TrimSpace(component)}
			if level != "" {
				if err := filter.MinLevel.UnmarshalText([]byte(level)); err != nil {
					return fmt.Errorf("--level: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			emit := func(line string) {
				entry, ok := logs.ParseEntry(line)
				if !ok || !filter.Match(entry) {
					return
				}
				if raw {
					fmt.Fprintln(out, line)
					return
				}
				fmt.Fprintln(out, renderLogEntry(entry, colorize))
			}

			path := filepath.Join(cfg.Paths.LogDir, "tailor.log")
			tail, offset, err := logs.Tail(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				emit(line)
			}
			if !follow {
				if len(tail) == 0 {
					fmt.Fprintf(out, "No log records in %s\n", path)
				}
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, emit)
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing records to read before filtering")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing records as they are written")
	cmd.Flags().BoolVar(&raw, "json", false, "Print matching records as raw JSON lines")
	cmd.Flags().StringVar(&requestID, "request-id", "", "Only records for this request (prefix match)")
	cmd.Flags().StringVar(&component, "component", "", "Only records from this component (e.g. generation, llm, daemon)")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level: debug, info, warn, error")
	return cmd
}

func renderLogEntry(entry logs.Entry, colorize bool) string {
	var b strings.Builder
	if !entry.Time.IsZero() {
		b.WriteString(entry.Time.Local().Format("15:04:05"))
		b.WriteByte(' ')
	}
	label := fmt.Sprintf("%-5s", entry.Level.String())
	if colorize {
		label = logLevelStyle(entry.Level).Render(label)
	}
	b.WriteString(label)
	b.WriteByte(' ')
	if entry.Component != "" {
		fmt.Fprintf(&b, "[%s] ", entry.Component)
	}
	subject := strings.Trim(entry.Pipeline+"/"+entry.Stage, "/")
	if entry.RequestID != "" {
		subject = strings.TrimPrefix(subject+"@"+shortRequestID(entry.RequestID), "@")
	}
	if subject != "" {
		b.WriteString(subject)
		b.WriteString(": ")
	}
	b.WriteString(entry.Message)
	for _, key := range entry.SortedAttrs() {
		fmt.Fprintf(&b, " %s=%v", key, entry.Attrs[key])
	}
	return b.String()
}

func logLevelStyle(level slog.Level) lipgloss.Style {
	switch {
	case level >= slog.LevelError:
		return statusKinds[statusError].style
	case level >= slog.LevelWarn:
		return statusKinds[statusWarn].style
	case level >= slog.LevelInfo:
		return statusKinds[statusInfo].style
	default:
		return styleSection
	}
}

func shortRequestID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
