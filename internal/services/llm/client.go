package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tailor/internal/parse"
	"tailor/internal/services"
)

const (
	defaultHTTPTimeout = 120 * time.Second
	defaultMaxTokens   = 4000
)

// Config captures the runtime settings required to talk to one provider.
type Config struct {
	Name           string
	APIKey         string
	BaseURL        string
	Model          string
	SystemPrompt   string
	TimeoutSeconds int
}

// Tokens holds provider-reported usage.
type Tokens struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Add returns the element-wise sum of t and other.
func (t Tokens) Add(other Tokens) Tokens {
	return Tokens{
		Prompt:     t.Prompt + other.Prompt,
		Completion: t.Completion + other.Completion,
		Total:      t.Total + other.Total,
	}
}

// Request is a single chat completion call.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// Completion is the result of a non-streaming call.
type Completion struct {
	Content string
	Tokens  Tokens
}

// Client talks to one OpenAI-compatible chat completion endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	timeout time.Duration
	retry   backoff
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetryMaxAttempts sets how many times a non-streaming call is tried.
// Values below one mean a single attempt.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.retry.attempts = max(attempts, 1) }
}

// WithRetryBackoff sets the first retry delay and the ceiling it doubles toward.
func WithRetryBackoff(base, ceiling time.Duration) Option {
	return func(c *Client) {
		c.retry.base = base
		if ceiling > 0 {
			c.retry.ceiling = ceiling
		}
	}
}

// WithSleeper replaces the timer used between retries.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(c *Client) { c.retry.sleep = sleep }
}

// NewClient constructs a provider client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.Name = strings.ToLower(strings.TrimSpace(cfg.Name))
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.SystemPrompt = strings.TrimSpace(cfg.SystemPrompt)

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		retry:   defaultBackoff(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Timeout > 0 {
		c.timeout = c.http.Timeout
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string { return c.cfg.Name }

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.cfg.Model }

// Configured reports whether the client has credentials and an endpoint.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != "" && c.cfg.BaseURL != ""
}

// Complete issues a non-streaming chat completion, retrying transient
// failures according to the client's backoff.
func (c *Client) Complete(ctx context.Context, req Request) (Completion, error) {
	op := c.op("complete")
	if !c.Configured() {
		return Completion{}, services.Wrap(services.ErrConfiguration, "", op, "api key required", nil)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return Completion{}, services.Wrap(services.ErrValidation, "", op, "prompt required", nil)
	}
	completion, err := c.complete(ctx, c.payload(req, false), op)
	if err != nil {
		return Completion{}, services.Wrap(services.ErrTransport, "", op, "", err)
	}
	return completion, nil
}

// HealthCheck asks the model for a tiny JSON object and verifies the reply
// parses. It exercises the key, the endpoint, and the model in one call.
func (c *Client) HealthCheck(ctx context.Context) error {
	op := c.op("health")
	if !c.Configured() {
		return services.Wrap(services.ErrConfiguration, "", op, "api key required", nil)
	}
	completion, err := c.complete(ctx, c.payload(Request{
		SystemPrompt: "You must respond with JSON only.",
		Prompt:       `Respond with {"ok":true}`,
		MaxTokens:    20,
	}, false), op)
	if err != nil {
		return services.Wrap(services.ErrTransport, "", op, "", err)
	}
	result, err := parse.Structured(completion.Content, parse.Shape{Kind: parse.KindObject, Keys: []string{"ok"}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ok, _ := result.Object()["ok"].(bool); !ok {
		return services.Wrap(services.ErrTransport, "", op, "unexpected response", nil)
	}
	return nil
}

// complete runs one logical call, sleeping between attempts as the
// backoff allows.
func (c *Client) complete(ctx context.Context, payload chatRequest, op string) (Completion, error) {
	var err error
	for attempt := 1; ; attempt++ {
		var completion Completion
		completion, err = c.post(ctx, payload, op)
		if err == nil {
			return completion, nil
		}
		wait, again := c.retry.next(ctx, err, attempt)
		if !again {
			break
		}
		if serr := c.retry.wait(ctx, wait); serr != nil {
			return Completion{}, serr
		}
	}
	if c.retry.attempts > 1 {
		return Completion{}, fmt.Errorf("%s: gave up after %d attempts: %w", op, c.retry.attempts, err)
	}
	return Completion{}, err
}

func (c *Client) op(action string) string {
	if c.cfg.Name == "" {
		return "llm " + action
	}
	return c.cfg.Name + " " + action
}
