package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

// normalize trims every string, fills defaults, expands paths, and pulls
// secrets from the environment when the file leaves them blank.
func (c *Config) normalize() error {
	p := &c.Paths
	for _, entry := range []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.data_dir", &p.DataDir, defaultDataDir},
		{"paths.log_dir", &p.LogDir, defaultLogDir},
		{"paths.pipelines_file", &p.PipelinesFile, ""},
	} {
		expanded, err := expandPath(orDefault(*entry.value, entry.fallback))
		if err != nil {
			return fmt.Errorf("%s: %w", entry.key, err)
		}
		*entry.value = expanded
	}
	p.APIBind = orDefault(p.APIBind, defaultAPIBind)
	p.APIToken = orEnv(p.APIToken, "TAILOR_API_TOKEN")

	c.Providers.DeepSeek.normalize("DEEPSEEK_API_KEY", defaultDeepSeekBaseURL, defaultDeepSeekModel)
	c.Providers.OpenAI.normalize("OPENAI_API_KEY", defaultOpenAIBaseURL, defaultOpenAIModel)

	c.LLM.ProviderOrder = dedupeLower(c.LLM.ProviderOrder)
	if len(c.LLM.ProviderOrder) == 0 {
		c.LLM.ProviderOrder = ProviderNames()
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = defaultMaxTokens
	}
	if c.LLM.RetryAttempts <= 0 {
		c.LLM.RetryAttempts = defaultRetryAttempts
	}

	c.Logging.Format = strings.ToLower(orDefault(c.Logging.Format, defaultLogFormat))
	c.Logging.Level = strings.ToLower(orDefault(c.Logging.Level, defaultLogLevel))
	return nil
}

func (p *Provider) normalize(envKey, baseURL, model string) {
	p.APIKey = orEnv(p.APIKey, envKey)
	p.BaseURL = orDefault(p.BaseURL, baseURL)
	p.Model = orDefault(p.Model, model)
	p.SystemPrompt = strings.TrimSpace(p.SystemPrompt)
	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = defaultProviderTimeout
	}
}

func orDefault(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

// orEnv keeps an explicit value and otherwise reads envKey.
func orEnv(value, envKey string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return strings.TrimSpace(os.Getenv(envKey))
}

func dedupeLower(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}
