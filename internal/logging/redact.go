package logging

import (
	"log/slog"
	"strings"
)

const redacted = "[redacted]"

// secretKeys are attribute keys whose values never reach a log sink.
var secretKeys = map[string]struct{}{
	"api_key":       {},
	"api_token":     {},
	"token":         {},
	"authorization": {},
}

func isSecretKey(key string) bool {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	_, ok := secretKeys[strings.ToLower(key)]
	return ok
}

// redactValue masks non-empty values stored under secret keys.
func redactValue(key string, v slog.Value) slog.Value {
	if !isSecretKey(key) {
		return v
	}
	if v.Kind() == slog.KindString && v.String() == "" {
		return v
	}
	return slog.StringValue(redacted)
}
