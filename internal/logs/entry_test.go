package logs_test

import (
	"log/slog"
	"testing"

	"tailor/internal/logs"
)

func TestParseEntryLiftsKnownFields(t *testing.T) {
	line := `{"ts":"2026-05-04T10:30:00.5Z","level":"warn","msg":"provider failed","component":"llm","request_id":"4f1c2a9b-77d0","stage":"classifier","provider":"deepseek","tokens":12}`
	entry, ok := logs.ParseEntry(line)
	if !ok {
		t.Fatal("expected entry")
	}
	if entry.Level != slog.LevelWarn || entry.Component != "llm" || entry.Stage != "classifier" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Time.IsZero() {
		t.Fatal("expected timestamp")
	}
	if keys := entry.SortedAttrs(); len(keys) != 2 || keys[0] != "provider" || keys[1] != "tokens" {
		t.Fatalf("unexpected attrs %v", keys)
	}
	if _, ok := logs.ParseEntry("2026-05-04 INFO plain console line"); ok {
		t.Fatal("console lines are not entries")
	}
}

func TestFilterMatch(t *testing.T) {
	entry := logs.Entry{Level: slog.LevelInfo, Component: "generation", RequestID: "4f1c2a9b-77d0"}
	cases := []struct {
		filter logs.Filter
		want   bool
	}{
		{logs.Filter{}, true},
		{logs.Filter{RequestID: "4f1c2a9b"}, true},
		{logs.Filter{RequestID: "deadbeef"}, false},
		{logs.Filter{Component: "Generation"}, true},
		{logs.Filter{Component: "daemon"}, false},
		{logs.Filter{MinLevel: slog.LevelWarn}, false},
	}
	for _, tc := range cases {
		if got := tc.filter.Match(entry); got != tc.want {
			t.Fatalf("%+v: got %v want %v", tc.filter, got, tc.want)
		}
	}
}
