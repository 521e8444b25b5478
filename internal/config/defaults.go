package config

const (
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai"
)

const (
	defaultDataDir               = "~/.local/share/tailor"
	defaultLogDir                = "~/.local/share/tailor/logs"
	defaultAPIBind               = "127.0.0.1:7488"
	defaultDeepSeekBaseURL       = "https://api.deepseek.com/v1/chat/completions"
	defaultDeepSeekModel         = "deepseek-chat"
	defaultOpenAIBaseURL         = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel           = "gpt-4o-mini"
	defaultOpenAISystemPrompt    = "You are a professional resume strategist. Generate high-quality, tailored resume content that matches job requirements."
	defaultProviderTimeout       = 120
	defaultTemperature           = 0.1
	defaultMaxTokens             = 4000
	defaultRetryAttempts         = 1
	defaultBatchConcurrency      = 1
	defaultBatchMaxConcurrency   = 4
	defaultBatchMaxItems         = 50
	defaultIdleTimeoutSeconds    = 300
	defaultRetainTerminalSeconds = 600
	defaultSubscriberBuffer      = 1024
	defaultSweepIntervalSeconds  = 15
	defaultRunRetentionDays      = 30
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Providers: Providers{
			DeepSeek: Provider{
				BaseURL:        defaultDeepSeekBaseURL,
				Model:          defaultDeepSeekModel,
				TimeoutSeconds: defaultProviderTimeout,
			},
			OpenAI: Provider{
				BaseURL:        defaultOpenAIBaseURL,
				Model:          defaultOpenAIModel,
				SystemPrompt:   defaultOpenAISystemPrompt,
				TimeoutSeconds: defaultProviderTimeout,
			},
		},
		LLM: LLM{
			ProviderOrder: []string{ProviderDeepSeek, ProviderOpenAI},
			Temperature:   defaultTemperature,
			MaxTokens:     defaultMaxTokens,
			RetryAttempts: defaultRetryAttempts,
		},
		Batch: Batch{
			Concurrency:    defaultBatchConcurrency,
			MaxConcurrency: defaultBatchMaxConcurrency,
			MaxItems:       defaultBatchMaxItems,
		},
		Progress: Progress{
			IdleTimeoutSeconds:    defaultIdleTimeoutSeconds,
			RetainTerminalSeconds: defaultRetainTerminalSeconds,
			SubscriberBuffer:      defaultSubscriberBuffer,
			SweepIntervalSeconds:  defaultSweepIntervalSeconds,
		},
		Runs: Runs{
			RetentionDays: defaultRunRetentionDays,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
