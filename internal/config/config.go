package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir       string `toml:"data_dir"`
	LogDir        string `toml:"log_dir"`
	PipelinesFile string `toml:"pipelines_file"`
	APIBind       string `toml:"api_bind"`
	APIToken      string `toml:"api_token"`
}

// Provider contains connection settings for one chat completion provider.
type Provider struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	SystemPrompt   string `toml:"system_prompt"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Providers groups the supported providers.
type Providers struct {
	DeepSeek Provider `toml:"deepseek"`
	OpenAI   Provider `toml:"openai"`
}

// LLM contains shared invocation defaults applied to every stage.
type LLM struct {
	ProviderOrder []string `toml:"provider_order"`
	Temperature   float64  `toml:"temperature"`
	MaxTokens     int      `toml:"max_tokens"`
	RetryAttempts int      `toml:"retry_attempts"`
}

// Batch contains fan-out limits.
type Batch struct {
	Concurrency    int `toml:"concurrency"`
	MaxConcurrency int `toml:"max_concurrency"`
	MaxItems       int `toml:"max_items"`
}

// Progress contains progress channel lifecycle settings.
type Progress struct {
	IdleTimeoutSeconds    int `toml:"idle_timeout_seconds"`
	RetainTerminalSeconds int `toml:"retain_terminal_seconds"`
	SubscriberBuffer      int `toml:"subscriber_buffer"`
	SweepIntervalSeconds  int `toml:"sweep_interval_seconds"`
}

// Runs controls persisted run history.
type Runs struct {
	RetentionDays int `toml:"retention_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tailor.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories, pipeline catalog, API bind address
//   - Providers: per-provider credentials and endpoints
//   - LLM: provider order and invocation defaults
//   - Batch: fan-out concurrency limits
//   - Progress: progress channel idle and retention timeouts
//   - Runs: run history retention
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Providers Providers `toml:"providers"`
	LLM       LLM       `toml:"llm"`
	Batch     Batch     `toml:"batch"`
	Progress  Progress  `toml:"progress"`
	Runs      Runs      `toml:"runs"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tailor/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tailor.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RunStorePath returns the SQLite database holding run records.
func (c *Config) RunStorePath() string {
	return filepath.Join(c.Paths.DataDir, "runs.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "tailord.lock")
}

// ProviderNames lists the providers tailor knows how to call.
func ProviderNames() []string {
	return []string{ProviderDeepSeek, ProviderOpenAI}
}

// ProviderConfig returns the settings for the named provider.
func (c *Config) ProviderConfig(name string) (Provider, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProviderDeepSeek:
		return c.Providers.DeepSeek, true
	case ProviderOpenAI:
		return c.Providers.OpenAI, true
	default:
		return Provider{}, false
	}
}

// IdleTimeout returns the progress channel idle timeout.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Progress.IdleTimeoutSeconds) * time.Second
}

// RetainTerminal returns how long terminal events stay available for late subscribers.
func (c *Config) RetainTerminal() time.Duration {
	return time.Duration(c.Progress.RetainTerminalSeconds) * time.Second
}

// SweepInterval returns how often the progress registry checks for idle channels.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Progress.SweepIntervalSeconds) * time.Second
}

// RunRetention returns how long finished runs are kept. Zero keeps them forever.
func (c *Config) RunRetention() time.Duration {
	return time.Duration(c.Runs.RetentionDays) * 24 * time.Hour
}

// BatchConcurrency clamps a requested concurrency hint to the configured bounds.
// A hint of zero selects the configured default.
func (c *Config) BatchConcurrency(hint int) int {
	limit := c.Batch.Concurrency
	if hint > 0 {
		limit = hint
	}
	if c.Batch.MaxConcurrency > 0 && limit > c.Batch.MaxConcurrency {
		limit = c.Batch.MaxConcurrency
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
