package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tailor/internal/config"
	"tailor/internal/logging"
	"tailor/internal/services"
)

// Options controls a single Invoke call.
type Options struct {
	Streaming     bool
	Temperature   float64
	MaxTokens     int
	SystemPrompt  string
	ProviderOrder []string
	// OnChunk receives each streamed delta in arrival order, exactly once,
	// before it is appended to the accumulated content.
	OnChunk func(string)
}

// Response is the first non-empty completion produced by a provider.
type Response struct {
	Content  string
	Provider string
	Tokens   Tokens
	Streamed bool
}

// Adapter selects providers and applies the streaming fallback policy.
type Adapter struct {
	clients map[string]*Client
	order   []string
	logger  *slog.Logger
}

// NewAdapter builds an adapter over the given clients. order is the default
// provider preference when Options.ProviderOrder is empty.
func NewAdapter(logger *slog.Logger, order []string, clients ...*Client) *Adapter {
	a := &Adapter{
		clients: make(map[string]*Client, len(clients)),
		logger:  logging.NewComponentLogger(logger, "llm"),
	}
	for _, client := range clients {
		if client == nil {
			continue
		}
		a.clients[client.Name()] = client
	}
	a.order = normalizeOrder(order)
	if len(a.order) == 0 {
		for _, client := range clients {
			if client != nil {
				a.order = append(a.order, client.Name())
			}
		}
	}
	return a
}

// NewAdapterFromConfig builds clients for every known provider.
func NewAdapterFromConfig(cfg *config.Config, logger *slog.Logger, opts ...Option) *Adapter {
	clients := make([]*Client, 0, len(config.ProviderNames()))
	for _, name := range config.ProviderNames() {
		provider, _ := cfg.ProviderConfig(name)
		clientOpts := append([]Option{WithRetryMaxAttempts(cfg.LLM.RetryAttempts)}, opts...)
		clients = append(clients, NewClient(Config{
			Name:           name,
			APIKey:         provider.APIKey,
			BaseURL:        provider.BaseURL,
			Model:          provider.Model,
			SystemPrompt:   provider.SystemPrompt,
			TimeoutSeconds: provider.TimeoutSeconds,
		}, clientOpts...))
	}
	return NewAdapter(logger, cfg.LLM.ProviderOrder, clients...)
}

// Providers returns the default provider order.
func (a *Adapter) Providers() []string {
	return append([]string(nil), a.order...)
}

// Client returns the named provider client.
func (a *Adapter) Client(name string) (*Client, bool) {
	client, ok := a.clients[strings.ToLower(strings.TrimSpace(name))]
	return client, ok
}

// Invoke sends prompt to the first provider that produces non-empty content.
func (a *Adapter) Invoke(ctx context.Context, prompt string, opts Options) (Response, error) {
	order := normalizeOrder(opts.ProviderOrder)
	if len(order) == 0 {
		order = a.order
	}
	candidates := make([]*Client, 0, len(order))
	for _, name := range order {
		if client, ok := a.clients[name]; ok && client.Configured() {
			candidates = append(candidates, client)
		}
	}
	if len(candidates) == 0 {
		return Response{}, services.Wrap(services.ErrConfiguration, "", "invoke",
			fmt.Sprintf("no credentials for providers [%s]", strings.Join(order, ", ")), nil)
	}

	req := Request{
		Prompt:       prompt,
		SystemPrompt: opts.SystemPrompt,
		Temperature:  opts.Temperature,
		MaxTokens:    opts.MaxTokens,
	}
	logger := logging.WithContext(ctx, a.logger)

	var errs []error
	for idx, client := range candidates {
		resp, err := a.invokeProvider(ctx, logger, client, req, opts)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return Response{}, services.Wrap(services.ErrTransport, "", "invoke", "cancelled", ctx.Err())
		}
		errs = append(errs, err)
		if idx < len(candidates)-1 {
			logging.WarnWithContext(logger, "provider failed; trying next provider", "provider_fallback",
				logging.String(logging.FieldProvider, client.Name()),
				logging.String("next_provider", candidates[idx+1].Name()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check provider status and API key"),
				logging.String(logging.FieldImpact, "stage continues on the next provider"),
			)
		}
	}
	return Response{}, services.Wrap(services.ErrTransport, "", "invoke", "all providers failed", errors.Join(errs...))
}

func (a *Adapter) invokeProvider(ctx context.Context, logger *slog.Logger, client *Client, req Request, opts Options) (Response, error) {
	started := time.Now()
	if opts.Streaming {
		resp, err := a.stream(ctx, client, req, opts.OnChunk)
		if err == nil {
			logger.Debug("streamed completion",
				logging.String(logging.FieldProvider, client.Name()),
				logging.Int("tokens_total", resp.Tokens.Total),
				logging.Duration("duration", time.Since(started)),
			)
			return resp, nil
		}
		if ctx.Err() != nil {
			return Response{}, err
		}
		logging.WarnWithContext(logger, "streaming failed; retrying without streaming", "stream_fallback",
			logging.String(logging.FieldProvider, client.Name()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "provider may not support streaming or the connection dropped"),
			logging.String(logging.FieldImpact, "progress shows the result without live text"),
		)
	}

	completion, err := client.Complete(ctx, req)
	if err != nil {
		return Response{}, err
	}
	logger.Debug("completion received",
		logging.String(logging.FieldProvider, client.Name()),
		logging.Int("tokens_total", completion.Tokens.Total),
		logging.Duration("duration", time.Since(started)),
	)
	return Response{Content: completion.Content, Provider: client.Name(), Tokens: completion.Tokens}, nil
}

func (a *Adapter) stream(ctx context.Context, client *Client, req Request, onChunk func(string)) (Response, error) {
	var (
		content strings.Builder
		tokens  Tokens
	)
	for frame, err := range client.Stream(ctx, req) {
		if err != nil {
			return Response{}, services.Wrap(services.ErrTransport, "", client.op("stream"), "", err)
		}
		if frame.Delta != "" {
			if onChunk != nil {
				onChunk(frame.Delta)
			}
			content.WriteString(frame.Delta)
		}
		if frame.Usage != nil {
			tokens = *frame.Usage
		}
	}
	if strings.TrimSpace(content.String()) == "" {
		return Response{}, services.Wrap(services.ErrTransport, "", client.op("stream"), "empty content", nil)
	}
	return Response{Content: content.String(), Provider: client.Name(), Tokens: tokens, Streamed: true}, nil
}

// HealthResult reports one provider's health check.
type HealthResult struct {
	Provider   string
	Model      string
	Configured bool
	Err        error
}

// HealthCheck pings every provider in the default order.
func (a *Adapter) HealthCheck(ctx context.Context) []HealthResult {
	results := make([]HealthResult, 0, len(a.order))
	for _, name := range a.order {
		client, ok := a.clients[name]
		if !ok {
			continue
		}
		result := HealthResult{Provider: name, Model: client.Model(), Configured: client.Configured()}
		if result.Configured {
			result.Err = client.HealthCheck(ctx)
		}
		results = append(results, result)
	}
	return results
}

func normalizeOrder(order []string) []string {
	out := make([]string, 0, len(order))
	seen := make(map[string]struct{}, len(order))
	for _, name := range order {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
