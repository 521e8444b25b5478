package parse_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"tailor/internal/parse"
	"tailor/internal/services"
)

func TestStructuredStrictFencedObject(t *testing.T) {
	raw := "```json\n{\"role_type\":\"Engineer\",\"keywords\":[\"api\"]}\n```"

	res, err := parse.Structured(raw, parse.Shape{Kind: parse.KindObject})
	if err != nil {
		t.Fatalf("Structured returned error: %v", err)
	}
	if res.Outcome != parse.OutcomeStructured {
		t.Fatalf("expected structured outcome, got %s", res.Outcome)
	}
	want := map[string]any{"role_type": "Engineer", "keywords": []any{"api"}}
	if !reflect.DeepEqual(res.Object(), want) {
		t.Fatalf("unexpected value: %#v", res.Value)
	}
}

func TestStructuredRepairsNumberedList(t *testing.T) {
	res, err := parse.Structured("1. api\n2. design\n3. testing", parse.Shape{Kind: parse.KindList, Cardinality: 3})
	if err != nil {
		t.Fatalf("Structured returned error: %v", err)
	}
	if res.Outcome != parse.OutcomeRepaired {
		t.Fatalf("expected repaired outcome, got %s", res.Outcome)
	}
	if want := []string{"api", "design", "testing"}; !reflect.DeepEqual(res.Strings(), want) {
		t.Fatalf("unexpected list: %#v", res.Value)
	}
}

func TestStructuredPadsShortRepairedList(t *testing.T) {
	res, err := parse.Structured("1. api", parse.Shape{Kind: parse.KindList, Cardinality: 3})
	if err != nil {
		t.Fatalf("Structured returned error: %v", err)
	}
	if want := []string{"api", "Item 2", "Item 3"}; !reflect.DeepEqual(res.Strings(), want) {
		t.Fatalf("unexpected list: %#v", res.Value)
	}
}

func TestStructuredListCardinality(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		shape   parse.Shape
		want    []string
		outcome parse.Outcome
	}{
		{
			name:    "exact strict",
			raw:     `["Go", "Kubernetes"]`,
			shape:   parse.Shape{Kind: parse.KindList, Cardinality: 2},
			want:    []string{"Go", "Kubernetes"},
			outcome: parse.OutcomeStructured,
		},
		{
			name:    "strict truncated",
			raw:     `["a","b","c","d"]`,
			shape:   parse.Shape{Kind: parse.KindList, Cardinality: 2},
			want:    []string{"a", "b"},
			outcome: parse.OutcomeRepaired,
		},
		{
			name:    "strict padded with custom placeholder",
			raw:     `["a"]`,
			shape:   parse.Shape{Kind: parse.KindList, Cardinality: 2, Placeholder: "Keyword %d"},
			want:    []string{"a", "Keyword 2"},
			outcome: parse.OutcomeRepaired,
		},
		{
			name:    "unbounded list",
			raw:     `[" a ", "", 3, {"x":1}, true]`,
			shape:   parse.Shape{Kind: parse.KindList},
			want:    []string{"a", "3", "true"},
			outcome: parse.OutcomeStructured,
		},
		{
			name:    "object wrapping a list",
			raw:     `{"keywords": ["x", "y"]}`,
			shape:   parse.Shape{Kind: parse.KindList},
			want:    []string{"x", "y"},
			outcome: parse.OutcomeRepaired,
		},
		{
			name:    "comma separated with header and stoplist",
			raw:     "Here are the keywords:\n- \"Market Adoption\", Keywords, [Pricing]\n• the\n* Growth.",
			shape:   parse.Shape{Kind: parse.KindList, Cardinality: 3},
			want:    []string{"Market Adoption", "Pricing", "Growth"},
			outcome: parse.OutcomeRepaired,
		},
		{
			name:    "brackets inside numbered items",
			raw:     "1. HTTP [200] codes\n2. design\n3. testing",
			shape:   parse.Shape{Kind: parse.KindList, Cardinality: 3},
			want:    []string{"HTTP [200] codes", "design", "testing"},
			outcome: parse.OutcomeRepaired,
		},
		{
			name:    "array after lead-in line",
			raw:     "Here are the keywords:\n[\"Go\", \"gRPC\"]",
			shape:   parse.Shape{Kind: parse.KindList, Cardinality: 2},
			want:    []string{"Go", "gRPC"},
			outcome: parse.OutcomeStructured,
		},
		{
			name:    "inline array in prose is not strict",
			raw:     "Focus on [\"Go\"] and\nKubernetes",
			shape:   parse.Shape{Kind: parse.KindList},
			want:    []string{"Focus on [\"Go\"] and", "Kubernetes"},
			outcome: parse.OutcomeRepaired,
		},
		{
			name:    "broken JSON array",
			raw:     "```json\n[\"alpha\", \"beta\",\n```",
			shape:   parse.Shape{Kind: parse.KindList, Cardinality: 2},
			want:    []string{"alpha", "beta"},
			outcome: parse.OutcomeRepaired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parse.Structured(tt.raw, tt.shape)
			if err != nil {
				t.Fatalf("Structured returned error: %v", err)
			}
			if res.Outcome != tt.outcome {
				t.Fatalf("expected %s, got %s", tt.outcome, res.Outcome)
			}
			if !reflect.DeepEqual(res.Strings(), tt.want) {
				t.Fatalf("unexpected list: got %#v want %#v", res.Strings(), tt.want)
			}
		})
	}
}

func TestStructuredRepairsSectionedObject(t *testing.T) {
	raw := strings.Join([]string{
		"Sure, here is the review.",
		"PERSONAL_INFO:",
		`{"name": "Ada", "email": "ada@example.com"}`,
		"",
		"WORK_EXPERIENCE:",
		"```json",
		`[{"company": "Acme", "title": "Engineer"}]`,
		"```",
		"NOTES: tightened wording",
	}, "\n")

	res, err := parse.Structured(raw, parse.Shape{Kind: parse.KindObject, Keys: []string{"personalInfo", "workExperience"}})
	if err != nil {
		t.Fatalf("Structured returned error: %v", err)
	}
	if res.Outcome != parse.OutcomeRepaired {
		t.Fatalf("expected repaired outcome, got %s", res.Outcome)
	}
	obj := res.Object()
	if got := obj["personalInfo"]; !reflect.DeepEqual(got, map[string]any{"name": "Ada", "email": "ada@example.com"}) {
		t.Fatalf("unexpected personalInfo: %#v", got)
	}
	if got := obj["workExperience"]; !reflect.DeepEqual(got, []any{map[string]any{"company": "Acme", "title": "Engineer"}}) {
		t.Fatalf("unexpected workExperience: %#v", got)
	}
	if got := obj["notes"]; got != "tightened wording" {
		t.Fatalf("unexpected notes: %#v", got)
	}
}

func TestStructuredStrictObjectMissingKeyFallsBack(t *testing.T) {
	raw := `{"role_type": "Engineer"}`
	_, err := parse.Structured(raw, parse.Shape{Kind: parse.KindObject, Keys: []string{"keywords"}})
	if err == nil {
		t.Fatal("expected failure when strict misses keys and no sections exist")
	}
}

func TestStructuredFailureCarriesPreview(t *testing.T) {
	raw := strings.Repeat("no structure here ", 30)
	res, err := parse.Structured(raw, parse.Shape{Kind: parse.KindObject})
	if err == nil {
		t.Fatal("expected parse failure")
	}
	if !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	var failure *parse.ParseFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected ParseFailure, got %T", err)
	}
	if res.Outcome != parse.OutcomeFailed || res.Preview == "" {
		t.Fatalf("expected failed result with preview, got %+v", res)
	}
	if n := len([]rune(failure.Preview)); n > 163 {
		t.Fatalf("preview not bounded: %d runes", n)
	}
}

func TestStructuredEmptyListFails(t *testing.T) {
	for _, raw := range []string{"", "[]", "Here are the keywords:\n```"} {
		if _, err := parse.Structured(raw, parse.Shape{Kind: parse.KindList, Cardinality: 3}); err == nil {
			t.Fatalf("expected failure for %q", raw)
		}
	}
}

func TestStructuredText(t *testing.T) {
	res, err := parse.Structured("```\nKey sentence one.\nKey sentence two.\n```", parse.Shape{Kind: parse.KindText})
	if err != nil {
		t.Fatalf("Structured returned error: %v", err)
	}
	if res.Value != "Key sentence one.\nKey sentence two." {
		t.Fatalf("unexpected text: %q", res.Value)
	}
	if _, err := parse.Structured("  ", parse.Shape{Kind: parse.KindText}); err == nil {
		t.Fatal("expected failure for blank text")
	}
}

func TestStructuredIsDeterministic(t *testing.T) {
	inputs := []struct {
		raw   string
		shape parse.Shape
	}{
		{"- a\n- b, c\n", parse.Shape{Kind: parse.KindList, Cardinality: 4}},
		{"SUMMARY: x\nDETAILS:\n{\"k\": [1,2]}", parse.Shape{Kind: parse.KindObject}},
		{`{"z":1,"a":{"b":[true,null]}}`, parse.Shape{Kind: parse.KindObject}},
	}
	for _, in := range inputs {
		first, err1 := parse.Structured(in.raw, in.shape)
		second, err2 := parse.Structured(in.raw, in.shape)
		if (err1 == nil) != (err2 == nil) || !reflect.DeepEqual(first, second) {
			t.Fatalf("non-deterministic parse for %q: %#v vs %#v", in.raw, first, second)
		}
	}
}

func TestStructuredRoundTripsThroughStrictPath(t *testing.T) {
	inputs := []struct {
		raw   string
		shape parse.Shape
	}{
		{"1. api\n2. design", parse.Shape{Kind: parse.KindList, Cardinality: 3}},
		{"```json\n{\"role_type\":\"Engineer\",\"insights\":{\"focus\":[\"scale\"]}}\n```", parse.Shape{Kind: parse.KindObject}},
		{"WORK_EXPERIENCE:\n[{\"company\":\"Acme\"}]", parse.Shape{Kind: parse.KindObject}},
	}
	for _, in := range inputs {
		first, err := parse.Structured(in.raw, in.shape)
		if err != nil {
			t.Fatalf("Structured(%q) returned error: %v", in.raw, err)
		}
		encoded, err := json.Marshal(first.Value)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		second, err := parse.Structured(string(encoded), in.shape)
		if err != nil {
			t.Fatalf("re-parse returned error: %v", err)
		}
		if second.Outcome != parse.OutcomeStructured {
			t.Fatalf("expected strict outcome on re-parse of %s, got %s", encoded, second.Outcome)
		}
		if !reflect.DeepEqual(first.Value, second.Value) {
			t.Fatalf("round trip mismatch: %#v vs %#v", first.Value, second.Value)
		}
	}
}

func TestShapeValidate(t *testing.T) {
	bad := []parse.Shape{
		{Kind: "table"},
		{Kind: parse.KindObject, Cardinality: 2},
		{Kind: parse.KindList, Cardinality: -1},
		{Kind: parse.KindList, Placeholder: "Item"},
	}
	for _, shape := range bad {
		if err := shape.Validate(); err == nil {
			t.Fatalf("expected validation error for %+v", shape)
		}
	}
}
