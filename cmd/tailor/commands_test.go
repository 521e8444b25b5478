package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tailor/internal/api"
	"tailor/internal/progress"
	"tailor/internal/testsupport"
)

func TestConfigInitValidateAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, "", env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "keywords")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}

	out, _, err = runCLI(t, []string{"config", "show"}, "", env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "test…ek")
	if strings.Contains(out, "test-deepseek") {
		t.Fatalf("config show leaked an api key:\n%s", out)
	}
}

func TestPipelinesListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"pipelines", "list"}, "", env.configPath)
	if err != nil {
		t.Fatalf("pipelines list: %v", err)
	}
	requireContains(t, out, "jd-analysis")
	requireContains(t, out, "builtin")

	out, _, err = runCLI(t, []string{"pipelines", "list", "--remote", "--json"}, env.url, env.configPath)
	if err != nil {
		t.Fatalf("pipelines list --remote: %v", err)
	}
	var summaries []api.PipelineSummary
	if err := json.Unmarshal([]byte(out), &summaries); err != nil {
		t.Fatalf("decode remote list: %v\n%s", err, out)
	}
	if len(summaries) < 3 {
		t.Fatalf("expected builtin pipelines, got %+v", summaries)
	}

	out, _, err = runCLI(t, []string{"pipelines", "show", "jd-analysis"}, "", env.configPath)
	if err != nil {
		t.Fatalf("pipelines show: %v", err)
	}
	requireContains(t, out, "Key Sentences")
	requireContains(t, out, "job_description")
	requireContains(t, out, "key_sentences")

	out, _, err = runCLI(t, []string{"pipelines", "show", "jd-analysis", "--dot"}, "", env.configPath)
	if err != nil {
		t.Fatalf("pipelines show --dot: %v", err)
	}
	requireContains(t, out, "digraph")

	if _, _, err := runCLI(t, []string{"pipelines", "show", "missing"}, "", env.configPath); err == nil {
		t.Fatal("expected error for unknown pipeline")
	}
}

func TestRenderPreviewsPrompt(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"render", "keywords", "keywords", "-i", "text=Shipped gRPC services", "-i", "keyword_count=2"}, "", env.configPath)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	requireContains(t, out, "--- system ---")
	requireContains(t, out, "Extract exactly 2 key professional keywords")
	requireContains(t, out, "Text: Shipped gRPC services")
	streamed, completed := env.provider.Calls()
	if streamed+completed != 0 {
		t.Fatalf("render must not call a provider, got %d calls", streamed+completed)
	}
}

func TestGenerateSynchronous(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"generate", "-p", "keywords", "-i", "text=Go services"}, env.url, env.configPath)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	requireContains(t, out, "Keywords")
	requireContains(t, out, "structured")
	requireContains(t, out, "Kubernetes")

	out, _, err = runCLI(t, []string{"generate", "-p", "keywords", "-i", "text=Go services", "--json"}, env.url, env.configPath)
	if err != nil {
		t.Fatalf("generate --json: %v", err)
	}
	var run api.RunResponse
	if err := json.Unmarshal([]byte(out), &run); err != nil {
		t.Fatalf("decode run: %v\n%s", err, out)
	}
	if run.Status != "completed" || run.RequestID == "" {
		t.Fatalf("unexpected run %+v", run)
	}
}

func TestGenerateFailureExitsWithError(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"generate", "-p", "keywords", "-i", "text=FAIL"}, env.url, env.configPath)
	if err == nil {
		t.Fatal("expected failed run to return an error")
	}
	requireContains(t, err.Error(), "failed at stage keywords")
	requireContains(t, out, "transport")
}

func TestGenerateMissingInput(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"generate", "-p", "keywords"}, env.url, env.configPath)
	if err == nil {
		t.Fatal("expected missing input error")
	}
	requireContains(t, err.Error(), "text")
}

func TestGenerateStreamPlain(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"generate", "-p", "keywords", "-i", "text=Go services", "--stream", "--plain"}, env.url, env.configPath)
	if err != nil {
		t.Fatalf("generate --stream: %v\n%s", err, out)
	}
	requireContains(t, out, "Following")
	requireContains(t, out, "> Keywords (1/1)")
	requireContains(t, out, `["Go", "Kubernetes", "gRPC"]`)
	requireContains(t, out, "done Keywords: structured")
	requireContains(t, out, "Status: completed")

	streamed, _ := env.provider.Calls()
	if streamed != 1 {
		t.Fatalf("expected one streamed provider call, got %d", streamed)
	}
}

func TestGenerateStreamJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"generate", "-p", "keywords", "-i", "text=Go services", "--stream", "--json", "--request-id", "cli-stream"}, env.url, env.configPath)
	if err != nil {
		t.Fatalf("generate --stream --json: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	var events []progress.Event
	for _, line := range lines {
		var event progress.Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		events = append(events, event)
	}
	if events[0].Type != progress.EventConnected || events[len(events)-1].Type != progress.EventCompleted {
		t.Fatalf("unexpected event order %+v", events)
	}
	for _, event := range events {
		if event.RequestID != "cli-stream" {
			t.Fatalf("unexpected request id %q", event.RequestID)
		}
	}
}

func TestWatchFinishedRun(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"generate", "-p", "keywords", "-i", "text=Go services", "--stream", "--plain", "--request-id", "watch-me"}, env.url, env.configPath)
	if err != nil {
		t.Fatalf("generate: %v\n%s", err, out)
	}

	out, _, err = runCLI(t, []string{"watch", "watch-me", "--plain"}, env.url, env.configPath)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	requireContains(t, out, "Status: completed")
	requireContains(t, out, "Kubernetes")
}

func TestBatchCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	path := filepath.Join(t.TempDir(), "batch.json")
	testsupport.WriteFile(t, path, `[{"inputs": {"text": "Go services"}}, {"inputs": {"text": "FAIL"}}]`)

	out, _, err := runCLI(t, []string{"batch", path, "-p", "keywords"}, env.url, env.configPath)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	requireContains(t, out, "1 ok / 1 failed")
	requireContains(t, out, "item 1 failed (transport)")
}

func TestRunsShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"generate", "-p", "keywords", "-i", "text=Go services", "--request-id", "persisted"}, env.url, env.configPath)
	if err != nil {
		t.Fatalf("generate: %v\n%s", err, out)
	}

	out, _, err = runCLI(t, []string{"runs", "show", "persisted"}, env.url, env.configPath)
	if err != nil {
		t.Fatalf("runs show: %v", err)
	}
	requireContains(t, out, "Request: persisted")
	requireContains(t, out, "Created:")

	if _, _, err := runCLI(t, []string{"runs", "show", "nope"}, env.url, env.configPath); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.url, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "Integrity OK")
	requireContains(t, out, "deepseek")
}

func TestStatusWhenDaemonDown(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, "127.0.0.1:1", env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
}

func TestProvidersCheck(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"providers", "check"}, "", env.configPath)
	if err != nil {
		t.Fatalf("providers check: %v\n%s", err, out)
	}
	requireContains(t, out, "[OK] Ready")
}

func TestLogsFiltersByRequest(t *testing.T) {
	env := setupCLITestEnv(t)

	records := strings.Join([]string{
		`{"ts":"2026-05-04T10:30:00Z","level":"info","msg":"stage started","component":"generation","request_id":"4f1c2a9b-77d0","pipeline":"resume","stage":"classifier"}`,
		`{"ts":"2026-05-04T10:30:01Z","level":"warn","msg":"provider failed; trying next provider","component":"llm","request_id":"4f1c2a9b-77d0","provider":"deepseek"}`,
		`{"ts":"2026-05-04T10:30:02Z","level":"info","msg":"stage started","component":"generation","request_id":"other-run"}`,
		`not json`,
	}, "\n") + "\n"
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.LogDir, "tailor.log"), records)

	out, _, err := runCLI(t, []string{"logs", "--request-id", "4f1c2a9b"}, "", env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "[generation] resume/classifier@4f1c2a9b: stage started")
	requireContains(t, out, "provider=deepseek")
	if strings.Contains(out, "other-run") {
		t.Fatalf("filter leaked another request:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"logs", "--level", "warn", "--json"}, "", env.configPath)
	if err != nil {
		t.Fatalf("logs --json: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 1 || !strings.HasPrefix(lines[0], `{"ts"`) {
		t.Fatalf("expected one raw warn record, got:\n%s", out)
	}
}

func TestWatchUnwatchedRunPointsToRunHistory(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"generate", "-p", "keywords", "-i", "text=Go services", "--request-id", "sync-run"}, env.url, env.configPath); err != nil {
		t.Fatalf("generate: %v", err)
	}

	out, _, err := runCLI(t, []string{"watch", "sync-run", "--plain"}, env.url, env.configPath)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	requireContains(t, out, "Status: completed")
	requireContains(t, out, "Output: tailor runs show sync-run")
}
