package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const (
	consoleTimeLayout = "2006-01-02 15:04:05"
	// maxConsoleValue caps one attribute value on the console. Prompts and
	// provider payloads are far longer and stay intact in the JSON file.
	maxConsoleValue = 160
	shortRequestID  = 8
)

// plainString resolves v without quoting, for subject fields.
func plainString(v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return consoleValue(v)
}

// consoleValue renders v as a key=value right-hand side.
func consoleValue(v slog.Value) string {
	v = v.Resolve()
	var text string
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return v.Time().In(time.Local).Format(consoleTimeLayout)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			text = err.Error()
		} else {
			text = fmt.Sprint(v.Any())
		}
	default:
		text = v.String()
	}
	return quoteIfNeeded(clip(text, maxConsoleValue))
}

func clip(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

// shortID trims request ids to a prefix that is still easy to grep for.
func shortID(id string) string {
	if len(id) <= shortRequestID {
		return id
	}
	return id[:shortRequestID]
}
