package testsupport

import (
	"path/filepath"
	"testing"

	"tailor/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Provider keys are set so adapters consider both providers configured.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Providers.DeepSeek.APIKey = "test-deepseek"
	cfgVal.Providers.OpenAI.APIKey = "test-openai"
	cfgVal.LLM.RetryAttempts = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithProviderURL points one provider at a test server.
func WithProviderURL(name, url string) ConfigOption {
	return func(b *configBuilder) {
		switch name {
		case config.ProviderDeepSeek:
			b.cfg.Providers.DeepSeek.BaseURL = url
		case config.ProviderOpenAI:
			b.cfg.Providers.OpenAI.BaseURL = url
		default:
			b.t.Fatalf("unknown provider %q", name)
		}
	}
}

// WithoutProviderKeys clears both API keys.
func WithoutProviderKeys() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Providers.DeepSeek.APIKey = ""
		b.cfg.Providers.OpenAI.APIKey = ""
	}
}

// WithProviderOrder overrides llm.provider_order.
func WithProviderOrder(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.ProviderOrder = names
	}
}

// WithAPIToken sets the bearer token required by the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithPipelinesFile writes a pipelines YAML document and points the config at it.
func WithPipelinesFile(content string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "pipelines.yaml")
		WriteFile(b.t, path, content)
		b.cfg.Paths.PipelinesFile = path
	}
}

// WithBatchConcurrency sets the default and maximum batch concurrency.
func WithBatchConcurrency(concurrency, maxConcurrency int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Batch.Concurrency = concurrency
		b.cfg.Batch.MaxConcurrency = maxConcurrency
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// WithBatchMaxItems caps the number of items accepted per batch.
func WithBatchMaxItems(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Batch.MaxItems = n
	}
}
