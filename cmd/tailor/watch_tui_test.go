package main

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"tailor/internal/progress"
	"tailor/internal/services/llm"
	"tailor/internal/tracker"
)

func TestWatchModelFollowsRun(t *testing.T) {
	tr := tracker.New("req-1", "key_sentences", "keywords")
	items := make(chan streamItem)
	var model tea.Model = newWatchModel(tr, items)
	now := time.Now()

	apply := func(event progress.Event) tea.Cmd {
		t.Helper()
		event.RequestID = "req-1"
		event.Timestamp = now
		var cmd tea.Cmd
		model, cmd = model.Update(eventMsg{event: event})
		return cmd
	}

	apply(progress.Event{Type: progress.EventConnected, StageIndex: progress.RunLevel})
	apply(progress.Event{Type: progress.EventStepStart, Sequence: 1, StageIndex: 0, Stage: "key_sentences", TotalStages: 2})
	apply(progress.Event{Type: progress.EventStepChunk, Sequence: 2, StageIndex: 0, Stage: "key_sentences", Chunk: "Design APIs\nOwn"})

	view := model.View()
	if !strings.Contains(view, "Key Sentences") || !strings.Contains(view, "Design APIs") {
		t.Fatalf("expected running stage and preview in view:\n%s", view)
	}
	if !strings.Contains(view, "q to detach") {
		t.Fatalf("expected detach hint:\n%s", view)
	}

	apply(progress.Event{
		Type: progress.EventStepComplete, Sequence: 3, StageIndex: 0, Stage: "key_sentences",
		ParseResult: "structured", DurationMs: 1500, Tokens: &llm.Tokens{Total: 1200},
	})
	view = model.View()
	if !strings.Contains(view, "✓ Key Sentences") || !strings.Contains(view, "1,200 tokens") {
		t.Fatalf("expected completed stage line:\n%s", view)
	}

	cmd := apply(progress.Event{Type: progress.EventCompleted, Sequence: 4, StageIndex: progress.RunLevel, Output: map[string]any{"ok": true}})
	if cmd == nil {
		t.Fatal("expected quit command after terminal event")
	}
	if !tr.Done() {
		t.Fatal("tracker should be done")
	}
}

func TestWatchModelDetachAndClose(t *testing.T) {
	tr := tracker.New("req-2")
	var model tea.Model = newWatchModel(tr, make(chan streamItem))

	model, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit on q")
	}
	if !model.(watchModel).detached {
		t.Fatal("expected detached model")
	}
	if !strings.Contains(model.View(), "tailor watch req-2") {
		t.Fatalf("expected resume hint:\n%s", model.View())
	}

	model, _ = newWatchModel(tr, nil).Update(streamClosedMsg{})
	if !model.(watchModel).closed {
		t.Fatal("expected closed model")
	}
	if err := finishWatch(tr); err != errStreamClosed {
		t.Fatalf("expected errStreamClosed, got %v", err)
	}
}

func TestWaitForEventClosedChannel(t *testing.T) {
	items := make(chan streamItem)
	close(items)
	if _, ok := waitForEvent(items)().(streamClosedMsg); !ok {
		t.Fatal("expected streamClosedMsg from closed channel")
	}
}

func TestTruncateAndTail(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("truncate: %q", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Fatalf("truncate short: %q", got)
	}
	lines := tailLines("a\nb\nc\nd\ne\n", 2)
	if len(lines) != 2 || lines[0] != "d" || lines[1] != "e" {
		t.Fatalf("tailLines: %v", lines)
	}
}
