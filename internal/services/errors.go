package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers classify every failure a run can report.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrTransport       = errors.New("transport error")
	ErrParse           = errors.New("parse failure")
	ErrStageDependency = errors.New("stage dependency error")
	ErrMissingBinding  = errors.New("missing binding")
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
)

// kinds is ordered by precedence. An error joined from several markers
// reports the first one listed.
var kinds = []struct {
	marker    error
	name      string
	permanent bool
}{
	{ErrConfiguration, "configuration", true},
	{ErrMissingBinding, "missing_binding", true},
	{ErrStageDependency, "stage_dependency", true},
	{ErrParse, "parse", false},
	{ErrTransport, "transport", false},
	{ErrValidation, "validation", true},
	{ErrNotFound, "not_found", false},
}

// Wrap tags err with marker and prefixes it with the stage and operation it
// came from. A nil marker is treated as ErrTransport.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransport
	}
	detail := joinNonEmpty(": ", stage, operation, message)
	if detail == "" {
		detail = "service failure"
	}
	if err == nil {
		return fmt.Errorf("%w: %s", marker, detail)
	}
	return fmt.Errorf("%w: %s: %w", marker, detail, err)
}

// Kind names the category of err as reported to clients. Unclassified
// errors are "internal".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.marker) {
			return k.name
		}
	}
	return "internal"
}

// Retryable reports whether re-running the pipeline could succeed without
// operator action.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	for _, k := range kinds {
		if errors.Is(err, k.marker) {
			return !k.permanent
		}
	}
	return true
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, sep)
}
