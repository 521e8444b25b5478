package catalog_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tailor/internal/catalog"
	"tailor/internal/parse"
	"tailor/internal/pipeline"
	"tailor/internal/services"
)

func TestBuiltinPipelinesValidate(t *testing.T) {
	cat, err := catalog.Builtin()
	if err != nil {
		t.Fatalf("Builtin failed: %v", err)
	}
	names := cat.Names()
	want := []string{"resume", "keywords", "jd-analysis", "cover-letter"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected pipelines %v", names)
	}
	resume, err := cat.Get("resume")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !resume.Builtin {
		t.Fatal("expected builtin flag")
	}
	deps, err := pipeline.Dependencies(mustBuild(t, resume, resumeInputs()).Stages)
	if err != nil {
		t.Fatalf("Dependencies failed: %v", err)
	}
	if got := deps["reviewer"]; len(got) != 2 || got[0] != "classifier" || got[1] != "experience" {
		t.Fatalf("unexpected reviewer dependencies %v", got)
	}
}

func TestGetUnknownPipeline(t *testing.T) {
	cat, err := catalog.Builtin()
	if err != nil {
		t.Fatalf("Builtin failed: %v", err)
	}
	if _, err := cat.Get("portfolio"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func resumeInputs() map[string]any {
	return map[string]any{
		"jd_content":       "We need a Go engineer.",
		"template_content": "Acme | Engineer | 2020-2024",
		"personal_info":    map[string]any{"fullName": "Sam"},
	}
}

func mustBuild(t *testing.T, p *catalog.Pipeline, inputs map[string]any) *pipeline.Request {
	t.Helper()
	req, err := p.Build("req-1", inputs, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return req
}

func TestBuildAppliesDefaultsAndRequiredInputs(t *testing.T) {
	cat, _ := catalog.Builtin()
	resume, _ := cat.Get("resume")

	req := mustBuild(t, resume, resumeInputs())
	if req.Context["role_types"] != "Software Engineer" {
		t.Fatalf("expected default role types, got %v", req.Context["role_types"])
	}
	if req.Pipeline != "resume" || req.ID != "req-1" || len(req.Stages) != 3 {
		t.Fatalf("unexpected request %+v", req)
	}

	_, err := resume.Build("req-2", map[string]any{"jd_content": "x"}, nil)
	if !errors.Is(err, services.ErrMissingBinding) {
		t.Fatalf("expected missing binding, got %v", err)
	}
	if !strings.Contains(err.Error(), "template_content") || !strings.Contains(err.Error(), "personal_info") {
		t.Fatalf("expected every missing input listed, got %v", err)
	}
}

func TestBuildResolvesCardinalityFromInput(t *testing.T) {
	cat, _ := catalog.Builtin()
	keywords, _ := cat.Get("keywords")

	req := mustBuild(t, keywords, map[string]any{"text": "Led Kubernetes migrations"})
	if got := req.Stages[0].Output.Cardinality; got != 3 {
		t.Fatalf("expected default cardinality 3, got %d", got)
	}
	if req.Stages[0].Output.Kind != parse.KindList {
		t.Fatalf("expected list output, got %s", req.Stages[0].Output.Kind)
	}

	req = mustBuild(t, keywords, map[string]any{"text": "x", "keyword_count": float64(5)})
	if got := req.Stages[0].Output.Cardinality; got != 5 {
		t.Fatalf("expected cardinality 5, got %d", got)
	}
	if req.Context["keyword_count"] != "5" {
		t.Fatalf("expected normalized count in context, got %v", req.Context["keyword_count"])
	}

	for _, bad := range []any{"many", float64(0), float64(2.5), 500} {
		if _, err := keywords.Build("", map[string]any{"text": "x", "keyword_count": bad}, nil); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %v, got %v", bad, err)
		}
	}
}

func TestLoadMergesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipelines.yaml")
	doc := `pipelines:
  - name: keywords
    description: custom keywords
    inputs:
      - name: text
        required: true
    stages:
      - name: extract
        output:
          kind: list
          cardinality: 2
        template: "Two keywords from {text}"
  - name: summary
    inputs:
      - name: text
        required: true
    stages:
      - name: summary
        output:
          kind: text
        template: "Summarize {text}"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cat, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := strings.Join(cat.Names(), ","); got != "resume,keywords,jd-analysis,summary" {
		t.Fatalf("unexpected merged order %s", got)
	}
	keywords, _ := cat.Get("keywords")
	if keywords.Builtin || keywords.Description != "custom keywords" {
		t.Fatalf("expected override to replace builtin, got %+v", keywords)
	}
}

func TestLoadMissingFileFallsBackToBuiltin(t *testing.T) {
	cat, err := catalog.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cat.List()) != 3 {
		t.Fatalf("expected builtin pipelines only, got %d", len(cat.List()))
	}
}

func TestParseRejectsInvalidDefinitions(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{
			name: "unknown field",
			doc:  "pipelines:\n  - name: x\n    colour: red\n    stages:\n      - name: a\n        template: t\n        output: {kind: text}\n",
		},
		{
			name: "unknown binding root",
			doc:  "pipelines:\n  - name: x\n    stages:\n      - name: a\n        template: \"{nowhere}\"\n        output: {kind: text}\n",
		},
		{
			name: "forward stage reference",
			doc: "pipelines:\n  - name: x\n    stages:\n      - name: a\n        template: \"{b}\"\n        output: {kind: text}\n" +
				"      - name: b\n        template: t\n        output: {kind: text}\n",
		},
		{
			name: "stage shadows input",
			doc:  "pipelines:\n  - name: x\n    inputs:\n      - name: a\n    stages:\n      - name: a\n        template: t\n        output: {kind: text}\n",
		},
		{
			name: "cardinality_from on object",
			doc:  "pipelines:\n  - name: x\n    inputs:\n      - name: n\n    stages:\n      - name: a\n        template: t\n        cardinality_from: n\n        output: {kind: object}\n",
		},
		{
			name: "empty",
			doc:  "   ",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := catalog.Parse([]byte(tc.doc)); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestRenderStagePreview(t *testing.T) {
	cat, _ := catalog.Builtin()
	resume, _ := cat.Get("resume")

	out, err := resume.RenderStage("classifier", resumeInputs())
	if err != nil {
		t.Fatalf("RenderStage failed: %v", err)
	}
	if !strings.Contains(out, "We need a Go engineer.") || !strings.Contains(out, "Job title: Not specified") {
		t.Fatalf("unexpected classifier prompt:\n%s", out)
	}

	out, err = resume.RenderStage("experience", resumeInputs())
	if err != nil {
		t.Fatalf("RenderStage failed: %v", err)
	}
	if !strings.Contains(out, "Role Type: {role_type}") {
		t.Fatalf("expected unresolved stage reference to stay verbatim:\n%s", out)
	}

	if _, err := resume.RenderStage("missing", resumeInputs()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSpecsAndInputsUsed(t *testing.T) {
	cat, err := catalog.Builtin()
	if err != nil {
		t.Fatalf("Builtin failed: %v", err)
	}
	def, err := cat.Get("jd-analysis")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	specs := def.Specs()
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs[1].Output.Kind != parse.KindList || specs[1].Output.Cardinality != 3 {
		t.Fatalf("unexpected keywords output %+v", specs[1].Output)
	}
	deps, err := pipeline.Dependencies(specs)
	if err != nil {
		t.Fatalf("Dependencies failed: %v", err)
	}
	if got := deps["keywords"]; len(got) != 1 || got[0] != "key_sentences" {
		t.Fatalf("unexpected keywords dependencies %v", got)
	}

	first, _ := def.Stage("key_sentences")
	if got := strings.Join(def.InputsUsed(first), ","); got != "sentence_count,job_description" {
		t.Fatalf("unexpected key_sentences inputs %q", got)
	}
	second, _ := def.Stage("keywords")
	if got := strings.Join(def.InputsUsed(second), ","); got != "keyword_count" {
		t.Fatalf("unexpected keywords inputs %q", got)
	}
}

func TestCoverLetterPipeline(t *testing.T) {
	cat, err := catalog.Builtin()
	if err != nil {
		t.Fatalf("Builtin failed: %v", err)
	}
	letter, err := cat.Get("cover-letter")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if _, err := letter.Build("req-1", map[string]any{"jd_content": "Go role"}, nil); !errors.Is(err, services.ErrMissingBinding) {
		t.Fatalf("expected missing binding without resume and profile, got %v", err)
	}

	req := mustBuild(t, letter, map[string]any{
		"jd_content":    "Acme is hiring a platform engineer.",
		"resume":        "Acme | Engineer | 2020-2024",
		"personal_info": map[string]any{"fullName": "Sam", "email": "sam@example.com"},
	})
	if len(req.Stages) != 1 {
		t.Fatalf("expected a single stage, got %d", len(req.Stages))
	}
	stage := req.Stages[0]
	if stage.Name != "cover_letter" || stage.Output.Kind != parse.KindText {
		t.Fatalf("unexpected stage %+v", stage)
	}
	if stage.SystemPrompt == "" || !strings.Contains(stage.Template, "{resume}") {
		t.Fatalf("expected system prompt and resume placeholder in %+v", stage)
	}
	if req.Context["jd_title"] != "the advertised position" {
		t.Fatalf("expected default title, got %v", req.Context["jd_title"])
	}
}
