package logs

import (
	"encoding/json"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"
)

// Entry is one decoded tailor.log record.
type Entry struct {
	Time      time.Time
	Level     slog.Level
	Message   string
	Component string
	RequestID string
	Pipeline  string
	Stage     string
	Source    string
	Attrs     map[string]any
}

// reserved keys are lifted into Entry fields instead of Attrs.
var reserved = []string{"ts", "level", "msg", "component", "request_id", "pipeline", "stage", "source"}

// ParseEntry decodes one JSON line. ok is false for anything that is not a
// JSON object, such as a partially written record.
func ParseEntry(line string) (Entry, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, false
	}
	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}
	entry := Entry{
		Message:   str("msg"),
		Component: str("component"),
		RequestID: str("request_id"),
		Pipeline:  str("pipeline"),
		Stage:     str("stage"),
		Source:    str("source"),
	}
	entry.Time, _ = time.Parse(time.RFC3339Nano, str("ts"))
	_ = entry.Level.UnmarshalText([]byte(str("level")))
	maps.DeleteFunc(raw, func(key string, _ any) bool { return slices.Contains(reserved, key) })
	if len(raw) > 0 {
		entry.Attrs = raw
	}
	return entry, true
}

// Filter selects entries. Empty strings match everything and the zero
// MinLevel is info.
type Filter struct {
	RequestID string
	Component string
	MinLevel  slog.Level
}

// Match reports whether e passes every set criterion. Request ids match on
// prefix so the short form printed by the console handler works.
func (f Filter) Match(e Entry) bool {
	if e.Level < f.MinLevel {
		return false
	}
	if f.Component != "" && !strings.EqualFold(e.Component, f.Component) {
		return false
	}
	return f.RequestID == "" || (e.RequestID != "" && strings.HasPrefix(e.RequestID, f.RequestID))
}

// SortedAttrs returns the remaining attributes ordered by key.
func (e Entry) SortedAttrs() []string {
	return slices.Sorted(maps.Keys(e.Attrs))
}
