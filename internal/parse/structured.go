package parse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Structured parses raw model output into the value described by shape.
func Structured(raw string, shape Shape) (Result, error) {
	if shape.Kind == "" {
		shape.Kind = KindObject
	}
	if err := shape.Validate(); err != nil {
		return Result{}, err
	}

	switch shape.Kind {
	case KindText:
		text := stripCodeFence(raw)
		if text == "" {
			return failed(raw, shape, "empty text")
		}
		return Result{Outcome: OutcomeStructured, Value: text}, nil
	case KindList:
		items, coerced, strictErr := strictList(raw)
		if strictErr == nil {
			normalized, changed := fitCardinality(items, shape)
			outcome := OutcomeStructured
			if changed || coerced {
				outcome = OutcomeRepaired
			}
			return Result{Outcome: outcome, Value: normalized}, nil
		}
		repaired := repairList(raw)
		if len(repaired) == 0 {
			return failed(raw, shape, strictErr.Error())
		}
		normalized, _ := fitCardinality(repaired, shape)
		return Result{Outcome: OutcomeRepaired, Value: normalized}, nil
	default:
		obj, strictErr := strictObject(raw, shape.Keys)
		if strictErr == nil {
			return Result{Outcome: OutcomeStructured, Value: obj}, nil
		}
		repaired := repairObject(raw, shape.Keys)
		if len(repaired) == 0 {
			return failed(raw, shape, strictErr.Error())
		}
		return Result{Outcome: OutcomeRepaired, Value: repaired}, nil
	}
}

func failed(raw string, shape Shape, reason string) (Result, error) {
	preview := Preview(raw)
	return Result{Outcome: OutcomeFailed, Preview: preview}, &ParseFailure{Kind: shape.Kind, Reason: reason, Preview: preview}
}

// strictList decodes a JSON array of scalars. An object holding exactly one
// array is unwrapped and reported as coerced.
func strictList(raw string) ([]string, bool, error) {
	payload := extractJSON(raw, '[')
	if payload == "" {
		return nil, false, errors.New("no JSON array found")
	}
	decoded, err := decodeJSON(payload)
	if err != nil {
		return nil, false, err
	}

	coerced := false
	if obj, ok := decoded.(map[string]any); ok && len(obj) == 1 {
		for _, inner := range obj {
			decoded = inner
		}
		coerced = true
	}
	values, ok := decoded.([]any)
	if !ok {
		return nil, false, fmt.Errorf("expected JSON array, got %s", describe(decoded))
	}

	items := make([]string, 0, len(values))
	for _, value := range values {
		if item, ok := scalarString(value); ok {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil, false, errors.New("empty JSON array")
	}
	return items, coerced, nil
}

func strictObject(raw string, keys []string) (map[string]any, error) {
	payload := extractJSON(raw, '{')
	if payload == "" {
		return nil, errors.New("no JSON object found")
	}
	decoded, err := decodeJSON(payload)
	if err != nil {
		return nil, err
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %s", describe(decoded))
	}
	if len(obj) == 0 {
		return nil, errors.New("empty JSON object")
	}
	for _, key := range keys {
		if _, ok := obj[key]; !ok {
			return nil, fmt.Errorf("missing key %q", key)
		}
	}
	return obj, nil
}

func scalarString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		return trimmed, trimmed != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

func fitCardinality(items []string, shape Shape) ([]string, bool) {
	if shape.Cardinality <= 0 || len(items) == shape.Cardinality {
		return items, false
	}
	out := make([]string, 0, shape.Cardinality)
	for i := 0; i < shape.Cardinality; i++ {
		if i < len(items) {
			out = append(out, items[i])
			continue
		}
		out = append(out, shape.placeholder(i+1))
	}
	return out, true
}

func decodeJSON(payload string) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader([]byte(payload)))
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	if decoder.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	return value, nil
}

func describe(value any) string {
	switch value.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", value)
	}
}

// extractJSON strips fences and returns the JSON container to decode. The
// body must either be a container or end with one that starts on its own
// line after lead-in prose. Brackets inside free text never qualify.
func extractJSON(raw string, prefer byte) string {
	trimmed := stripCodeFence(raw)
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}
	other := byte('{')
	if prefer == '{' {
		other = '['
	}
	for _, open := range []byte{prefer, other} {
		closer := byte('}')
		if open == '[' {
			closer = ']'
		}
		if trimmed[len(trimmed)-1] != closer {
			continue
		}
		rest := trimmed
		for {
			nl := strings.IndexByte(rest, '\n')
			if nl < 0 {
				break
			}
			rest = rest[nl+1:]
			if line := strings.TrimLeft(rest, " \t"); line != "" && line[0] == open {
				return line
			}
		}
	}
	return ""
}

// stripCodeFence returns the body of the first fenced block, or the trimmed
// input when no fence is present. An unterminated fence keeps everything
// after the opening line.
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	start := strings.Index(trimmed, "```")
	if start < 0 {
		return trimmed
	}
	body := trimmed[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && isLanguageTag(body[:nl]) {
		body = body[nl+1:]
	} else if nl < 0 && isLanguageTag(body) {
		body = ""
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func isLanguageTag(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '+') {
			return false
		}
	}
	return true
}
