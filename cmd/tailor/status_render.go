package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type statusKind uint8

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusKinds = [...]struct {
	label string
	style lipgloss.Style
}{
	statusInfo:  {"INFO", lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))},
	statusOK:    {"OK", lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))},
	statusWarn:  {"WARN", lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))},
	statusError: {"ERROR", lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))},
}

var styleSection = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)

const statusLabelWidth = 20

var titleCaser = cases.Title(language.English)

// renderStatusLine formats "  Label:   [KIND] message", colored when colorize is set.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	k := statusKinds[statusInfo]
	if int(kind) < len(statusKinds) {
		k = statusKinds[kind]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "  %-*s [%s]", statusLabelWidth, label+":", k.label)
	if message != "" {
		b.WriteString(" " + message)
	}
	if colorize {
		return k.style.Render(b.String())
	}
	return b.String()
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = styleSection.Render(line)
		rule = styleSection.Render(rule)
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// stageLabel turns a stage name such as key_sentences into "Key Sentences".
func stageLabel(name string) string {
	name = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(name))
	if name == "" {
		return "Stage"
	}
	return titleCaser.String(name)
}

func formatTokens(n int) string {
	return humanize.Comma(int64(n))
}

func formatDurationMs(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", ms)
	}
	return d.Round(100 * time.Millisecond).String()
}

func formatTimestamp(value string) string {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return fmt.Sprintf("%s (%s)", ts.Local().Format("2006-01-02 15:04:05"), humanize.Time(ts))
}
