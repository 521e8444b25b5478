package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders one line per record:
//
//	2026-01-02 15:04:05 INFO  [generation] resume/classifier@4f1c2a9b: stage complete tokens=512
//
// component, pipeline, stage, and request_id are lifted into the prefix.
// Everything else trails as key=value pairs.
type consoleHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     slog.Leveler
	addSource bool
	prefix    string
	preset    []field
}

type field struct {
	key   string
	value slog.Value
}

// lineHead collects the prefix fields for a single record.
type lineHead struct {
	component string
	pipeline  string
	stage     string
	request   string
}

func (h *lineHead) take(f field) bool {
	var slot *string
	switch f.key {
	case FieldComponent:
		slot = &h.component
	case FieldPipeline:
		slot = &h.pipeline
	case FieldStage:
		slot = &h.stage
	case FieldRequestID:
		slot = &h.request
	default:
		return false
	}
	if *slot == "" {
		*slot = plainString(f.value)
	}
	return true
}

func (h lineHead) subject() string {
	var b strings.Builder
	b.WriteString(h.pipeline)
	if h.stage != "" {
		if b.Len() > 0 {
			b.WriteByte('/')
		}
		b.WriteString(h.stage)
	}
	if h.request != "" && b.Len() > 0 {
		b.WriteByte('@')
		b.WriteString(shortID(h.request))
	}
	return b.String()
}

func newConsoleHandler(w io.Writer, lvl slog.Leveler, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, out: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := append([]field(nil), h.preset...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.prefix, attr)
		return true
	})

	var head lineHead
	rest := fields[:0]
	for _, f := range fields {
		if !head.take(f) {
			rest = append(rest, f)
		}
	}
	// A request with no pipeline context keeps its id as a plain attribute.
	if head.pipeline == "" && head.stage == "" && head.request != "" {
		rest = append(rest, field{key: FieldRequestID, value: slog.StringValue(head.request)})
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s ", ts.In(time.Local).Format(consoleTimeLayout), levelName(record.Level))
	if head.component != "" {
		fmt.Fprintf(&b, "[%s] ", head.component)
	}
	if subject := head.subject(); subject != "" {
		b.WriteString(subject)
		b.WriteString(": ")
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(msg)
	if h.addSource {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	for _, f := range rest {
		b.WriteByte(' ')
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(consoleValue(redactValue(f.key, f.value)))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = append([]field(nil), h.preset...)
	for _, attr := range attrs {
		next.preset = appendField(next.preset, h.prefix, attr)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// appendField flattens groups into dotted keys.
func appendField(dst []field, prefix string, attr slog.Attr) []field {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	value := attr.Value.Resolve()
	if value.Kind() != slog.KindGroup {
		return append(dst, field{key: prefix + attr.Key, value: value})
	}
	inner := prefix
	if attr.Key != "" {
		inner = prefix + attr.Key + "."
	}
	for _, member := range value.Group() {
		dst = appendField(dst, inner, member)
	}
	return dst
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
