package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tailor/internal/config"
)

func TestLoadDefaultConfigUsesEnvKeysAndExpandsPaths(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "ds-key")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("TAILOR_API_TOKEN", "")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "tailor")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.RunStorePath() != filepath.Join(wantData, "runs.db") {
		t.Fatalf("unexpected run store path: %q", cfg.RunStorePath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Providers.DeepSeek.APIKey != "ds-key" {
		t.Fatalf("expected DeepSeek key from env, got %q", cfg.Providers.DeepSeek.APIKey)
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		t.Fatalf("expected empty OpenAI key, got %q", cfg.Providers.OpenAI.APIKey)
	}
	if cfg.Providers.OpenAI.Model != config.Default().Providers.OpenAI.Model {
		t.Fatalf("unexpected OpenAI model: %q", cfg.Providers.OpenAI.Model)
	}
	if got := strings.Join(cfg.LLM.ProviderOrder, ","); got != "deepseek,openai" {
		t.Fatalf("unexpected provider order: %q", got)
	}
	if cfg.LLM.RetryAttempts != 1 {
		t.Fatalf("expected single attempt default, got %d", cfg.LLM.RetryAttempts)
	}
	if cfg.Batch.Concurrency != 1 {
		t.Fatalf("expected sequential batch default, got %d", cfg.Batch.Concurrency)
	}
}

func TestLoadMissingCredentialsIsNotAnError(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("HOME", t.TempDir())

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Providers.DeepSeek.APIKey != "" || cfg.Providers.OpenAI.APIKey != "" {
		t.Fatal("expected no credentials")
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "env-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"data_dir":       "~/tailor-data",
			"pipelines_file": "~/pipelines.yaml",
			"api_token":      " secret ",
		},
		"providers": map[string]any{
			"deepseek": map[string]any{
				"api_key": "file-key",
			},
			"openai": map[string]any{
				"model": "gpt-4o",
			},
		},
		"llm": map[string]any{
			"provider_order": []string{" OpenAI ", "deepseek", "openai"},
			"temperature":    0.4,
		},
		"batch": map[string]any{
			"concurrency":     3,
			"max_concurrency": 6,
		},
		"logging": map[string]any{
			"format": "JSON",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config at %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "tailor-data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.PipelinesFile != filepath.Join(tempHome, "pipelines.yaml") {
		t.Fatalf("unexpected pipelines file: %q", cfg.Paths.PipelinesFile)
	}
	if cfg.Providers.DeepSeek.APIKey != "file-key" {
		t.Fatalf("expected file key to win over env, got %q", cfg.Providers.DeepSeek.APIKey)
	}
	if cfg.Providers.OpenAI.Model != "gpt-4o" {
		t.Fatalf("unexpected openai model: %q", cfg.Providers.OpenAI.Model)
	}
	if got := strings.Join(cfg.LLM.ProviderOrder, ","); got != "openai,deepseek" {
		t.Fatalf("expected normalized provider order, got %q", got)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected lowercase log format, got %q", cfg.Logging.Format)
	}
	if cfg.LLM.MaxTokens != config.Default().LLM.MaxTokens {
		t.Fatalf("expected default max tokens, got %d", cfg.LLM.MaxTokens)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "unknown provider",
			mutate: func(c *config.Config) { c.LLM.ProviderOrder = []string{"anthropic"} },
			want:   "llm.provider_order",
		},
		{
			name:   "temperature out of range",
			mutate: func(c *config.Config) { c.LLM.Temperature = 3 },
			want:   "llm.temperature",
		},
		{
			name:   "concurrency above max",
			mutate: func(c *config.Config) { c.Batch.Concurrency = 10 },
			want:   "batch.concurrency must not exceed",
		},
		{
			name:   "zero subscriber buffer",
			mutate: func(c *config.Config) { c.Progress.SubscriberBuffer = 0 },
			want:   "progress.subscriber_buffer must be positive",
		},
		{
			name:   "bad log level",
			mutate: func(c *config.Config) { c.Logging.Level = "trace" },
			want:   "logging.level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestBatchConcurrencyClampsHint(t *testing.T) {
	cfg := config.Default()
	if got := cfg.BatchConcurrency(0); got != 1 {
		t.Fatalf("expected default concurrency 1, got %d", got)
	}
	if got := cfg.BatchConcurrency(3); got != 3 {
		t.Fatalf("expected hint 3, got %d", got)
	}
	if got := cfg.BatchConcurrency(99); got != cfg.Batch.MaxConcurrency {
		t.Fatalf("expected clamp to %d, got %d", cfg.Batch.MaxConcurrency, got)
	}
}

func TestProviderConfigLookup(t *testing.T) {
	cfg := config.Default()
	if p, ok := cfg.ProviderConfig("DeepSeek"); !ok || p.Model != "deepseek-chat" {
		t.Fatalf("unexpected deepseek lookup: %+v ok=%v", p, ok)
	}
	if _, ok := cfg.ProviderConfig("unknown"); ok {
		t.Fatal("expected unknown provider lookup to fail")
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Progress.IdleTimeoutSeconds != 300 {
		t.Fatalf("unexpected idle timeout: %d", cfg.Progress.IdleTimeoutSeconds)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Temperature = -1
	cfg.Batch.MaxItems = 0
	cfg.Logging.Format = "xml"
	cfg.Runs.RetentionDays = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"llm.temperature", "batch.max_items must be positive", "logging.format", "runs.retention_days"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}
