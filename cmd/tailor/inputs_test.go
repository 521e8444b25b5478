package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInputFlagsResolvePrecedence(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "inputs.json")
	if err := os.WriteFile(jsonPath, []byte(`{"text": "from json", "keyword_count": 4, "tone": "plain"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	textPath := filepath.Join(dir, "text.txt")
	if err := os.WriteFile(textPath, []byte("from file"), 0o644); err != nil {
		t.Fatal(err)
	}

	flags := inputFlags{
		jsonPath:  jsonPath,
		filePairs: []string{"text=" + textPath},
		pairs:     []string{"tone=bold", "equation=a=b"},
	}
	inputs, err := flags.resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if inputs["text"] != "from file" {
		t.Fatalf("text: %v", inputs["text"])
	}
	if inputs["tone"] != "bold" {
		t.Fatalf("tone: %v", inputs["tone"])
	}
	if inputs["keyword_count"] != float64(4) {
		t.Fatalf("keyword_count: %v", inputs["keyword_count"])
	}
	if inputs["equation"] != "a=b" {
		t.Fatalf("equation: %v", inputs["equation"])
	}
}

func TestInputFlagsRejectMalformedPair(t *testing.T) {
	for _, pair := range []string{"novalue", "=value"} {
		flags := inputFlags{pairs: []string{pair}}
		if _, err := flags.resolve(); err == nil {
			t.Fatalf("expected error for %q", pair)
		}
	}
}

func TestReadBatchFileForms(t *testing.T) {
	dir := t.TempDir()
	arrayPath := filepath.Join(dir, "array.json")
	if err := os.WriteFile(arrayPath, []byte(` [{"inputs": {"text": "a"}}, {"pipeline": "keywords", "inputs": {"text": "b"}}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	objectPath := filepath.Join(dir, "object.json")
	if err := os.WriteFile(objectPath, []byte(`{"pipeline": "jd-analysis", "concurrencyHint": 2, "items": [{"inputs": {"job_description": "x"}}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	req, err := readBatchFile(arrayPath)
	if err != nil {
		t.Fatalf("array form: %v", err)
	}
	if len(req.Items) != 2 || req.Items[1].Pipeline != "keywords" {
		t.Fatalf("unexpected items %+v", req.Items)
	}

	req, err = readBatchFile(objectPath)
	if err != nil {
		t.Fatalf("object form: %v", err)
	}
	if req.Pipeline != "jd-analysis" || req.ConcurrencyHint != 2 || len(req.Items) != 1 {
		t.Fatalf("unexpected request %+v", req)
	}
}
