package parse

import (
	"fmt"
	"strings"

	"tailor/internal/services"
)

// Kind names the expected container of a stage's output.
type Kind string

const (
	KindObject Kind = "object"
	KindList   Kind = "list"
	KindText   Kind = "text"
)

// DefaultPlaceholder formats padding entries for short lists; %d is the 1-based position.
const DefaultPlaceholder = "Item %d"

// Shape describes the value a stage is expected to produce.
type Shape struct {
	Kind Kind `json:"kind" yaml:"kind"`
	// Cardinality fixes the list length when positive.
	Cardinality int `json:"cardinality,omitempty" yaml:"cardinality,omitempty"`
	// Placeholder overrides DefaultPlaceholder.
	Placeholder string `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	// Keys lists object keys that a strict decode must contain.
	Keys []string `json:"keys,omitempty" yaml:"keys,omitempty"`
}

// Validate reports whether the shape is usable.
func (s Shape) Validate() error {
	switch s.Kind {
	case KindObject, KindText:
		if s.Cardinality != 0 {
			return fmt.Errorf("cardinality only applies to list shapes (got %s)", s.Kind)
		}
	case KindList:
		if s.Cardinality < 0 {
			return fmt.Errorf("cardinality must not be negative")
		}
	default:
		return fmt.Errorf("unknown shape kind %q", s.Kind)
	}
	if s.Placeholder != "" && !strings.Contains(s.Placeholder, "%d") {
		return fmt.Errorf("placeholder %q must contain %%d", s.Placeholder)
	}
	return nil
}

func (s Shape) placeholder(position int) string {
	format := s.Placeholder
	if format == "" {
		format = DefaultPlaceholder
	}
	return fmt.Sprintf(format, position)
}

// Outcome tags how a Result was produced.
type Outcome int

const (
	OutcomeStructured Outcome = iota
	OutcomeRepaired
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStructured:
		return "structured"
	case OutcomeRepaired:
		return "repaired"
	default:
		return "failed"
	}
}

// Result is the tagged outcome of Structured.
//
// Value is map[string]any for objects, []string for lists and string for text.
// Preview is only set when Outcome is OutcomeFailed.
type Result struct {
	Outcome Outcome
	Value   any
	Preview string
}

// Strings returns the list value, or nil for other shapes.
func (r Result) Strings() []string {
	items, _ := r.Value.([]string)
	return items
}

// Object returns the object value, or nil for other shapes.
func (r Result) Object() map[string]any {
	obj, _ := r.Value.(map[string]any)
	return obj
}

// ParseFailure reports output that neither strategy could use.
type ParseFailure struct {
	Kind    Kind
	Reason  string
	Preview string
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("unparseable %s output: %s (raw: %s)", e.Kind, e.Reason, e.Preview)
}

func (e *ParseFailure) Unwrap() error { return services.ErrParse }

const previewLimit = 160

// Preview collapses whitespace and bounds raw text for diagnostics.
func Preview(raw string) string {
	clean := strings.Join(strings.Fields(raw), " ")
	if clean == "" {
		return "<empty>"
	}
	runes := []rune(clean)
	if len(runes) > previewLimit {
		return string(runes[:previewLimit]) + "..."
	}
	return clean
}
