package config

import (
	"errors"
	"fmt"
	"slices"
)

var (
	logFormats = []string{"console", "json"}
	logLevels  = []string{"debug", "info", "warn", "error"}
)

// Validate reports every problem in the configuration at once so a single
// `tailor config validate` run surfaces all of them.
func (c *Config) Validate() error {
	var problems []error
	report := func(err error) {
		if err != nil {
			problems = append(problems, err)
		}
	}

	known := ProviderNames()
	for _, name := range c.LLM.ProviderOrder {
		if !slices.Contains(known, name) {
			report(fmt.Errorf("llm.provider_order: unknown provider %q (supported: %v)", name, known))
		}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		report(errors.New("llm.temperature must be between 0 and 2"))
	}

	report(positive("batch.concurrency", c.Batch.Concurrency))
	report(positive("batch.max_concurrency", c.Batch.MaxConcurrency))
	report(positive("batch.max_items", c.Batch.MaxItems))
	if c.Batch.Concurrency > c.Batch.MaxConcurrency {
		report(errors.New("batch.concurrency must not exceed batch.max_concurrency"))
	}

	report(positive("progress.idle_timeout_seconds", c.Progress.IdleTimeoutSeconds))
	report(positive("progress.retain_terminal_seconds", c.Progress.RetainTerminalSeconds))
	report(positive("progress.subscriber_buffer", c.Progress.SubscriberBuffer))
	report(positive("progress.sweep_interval_seconds", c.Progress.SweepIntervalSeconds))

	if c.Runs.RetentionDays < 0 {
		report(errors.New("runs.retention_days must not be negative"))
	}

	report(oneOf("logging.format", c.Logging.Format, logFormats))
	report(oneOf("logging.level", c.Logging.Level, logLevels))

	return errors.Join(problems...)
}

func positive(key string, value int) error {
	if value <= 0 {
		return fmt.Errorf("%s must be positive", key)
	}
	return nil
}

func oneOf(key, value string, allowed []string) error {
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("%s: unsupported value %q", key, value)
	}
	return nil
}
