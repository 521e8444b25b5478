package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"tailor/internal/progress"
	"tailor/internal/tracker"
)

const (
	previewLines    = 4
	defaultTUIWidth = 80
)

var (
	stageStylePending = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	stageStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	stageStyleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	stageStyleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	previewStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0")).PaddingLeft(4)
	headerStyle       = lipgloss.NewStyle().Bold(true)
	hintStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

type eventMsg struct{ event progress.Event }

type streamErrMsg struct{ err error }

type streamClosedMsg struct{}

type watchModel struct {
	tracker  *tracker.Tracker
	items    <-chan streamItem
	spinner  spinner.Model
	err      error
	closed   bool
	detached bool
	width    int
}

func newWatchModel(tr *tracker.Tracker, items <-chan streamItem) watchModel {
	s := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(stageStyleRunning))
	return watchModel{tracker: tr, items: items, spinner: s, width: defaultTUIWidth}
}

func waitForEvent(items <-chan streamItem) tea.Cmd {
	return func() tea.Msg {
		item, ok := <-items
		if !ok {
			return streamClosedMsg{}
		}
		if item.err != nil {
			return streamErrMsg{err: item.err}
		}
		return eventMsg{event: item.event}
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.items))
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.tracker.Apply(msg.event)
		if m.tracker.Done() {
			return m, tea.Quit
		}
		return m, waitForEvent(m.items)
	case streamErrMsg:
		m.err = msg.err
		return m, tea.Quit
	case streamClosedMsg:
		m.closed = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.detached = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	overall := m.tracker.Overall()
	b.WriteString(headerStyle.Render("tailor " + m.tracker.RequestID()))
	b.WriteString("\n\n")

	for _, stage := range m.tracker.Stages() {
		b.WriteString(m.stageLine(stage))
		b.WriteString("\n")
		if stage.Status == tracker.StatusRunning && stage.StreamedText != "" {
			for _, line := range tailLines(stage.StreamedText, previewLines) {
				b.WriteString(previewStyle.Render(truncate(line, m.width-6)))
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("\n")
	summary := fmt.Sprintf("%d/%d stages · %s tokens · %s",
		overall.Completed, overall.Total, formatTokens(overall.Tokens.Total), formatDurationMs(overall.DurationMs))
	b.WriteString(summary)
	b.WriteString("\n")
	switch {
	case overall.Status == tracker.StatusError:
		b.WriteString(stageStyleError.Render("error: " + overall.Error))
		b.WriteString("\n")
	case m.detached:
		b.WriteString(hintStyle.Render("detached; resume with tailor watch " + m.tracker.RequestID()))
		b.WriteString("\n")
	case !m.tracker.Done():
		b.WriteString(hintStyle.Render("q to detach"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m watchModel) stageLine(stage tracker.Stage) string {
	name := stageLabel(stage.Name)
	if stage.Name == "" {
		name = fmt.Sprintf("Stage %d", stage.Index+1)
	}
	switch stage.Status {
	case tracker.StatusRunning:
		return fmt.Sprintf("%s %s", m.spinner.View(), stageStyleRunning.Render(name))
	case tracker.StatusCompleted:
		detail := fmt.Sprintf("%s · %s tokens · %s", valueOrDash(stage.ParseResult), formatTokens(stage.Tokens.Total), formatDurationMs(stage.DurationMs))
		return stageStyleDone.Render("✓ "+name) + "  " + hintStyle.Render(detail)
	case tracker.StatusError:
		return stageStyleError.Render("✗ "+name) + "  " + hintStyle.Render(truncate(stage.Error, m.width-len(name)-6))
	default:
		return stageStylePending.Render("· " + name)
	}
}

func tailLines(text string, n int) []string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func truncate(value string, width int) string {
	if width <= 1 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	return string(runes[:width-1]) + "…"
}

func watchInteractive(ctx context.Context, cmd *cobra.Command, tr *tracker.Tracker, first progress.Event, items <-chan streamItem) error {
	tr.Apply(first)
	program := tea.NewProgram(
		newWatchModel(tr, items),
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("progress view: %w", err)
	}
	model, ok := final.(watchModel)
	if !ok {
		return finishWatch(tr)
	}
	if model.err != nil {
		return model.err
	}
	if model.detached && !tr.Done() {
		return nil
	}
	overall := tr.Overall()
	if overall.Status == tracker.StatusCompleted && overall.Output != nil {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Output:")
		fmt.Fprintln(out, formatJSON(overall.Output))
	}
	return finishWatch(tr)
}
