// Package llm calls OpenAI-compatible chat completion providers for pipeline
// stages.
//
// # Entry Points
//
// NewClient: construct one provider client from Config.
// Client.Complete: single non-streaming request with provider-reported usage.
// Client.Stream: lazy sequence of SSE frames from a stream=true request.
// Client.HealthCheck: verify API key and model availability.
// Adapter.Invoke: provider ordering, streaming with a one-shot non-streaming
// fallback per provider, and token accounting.
//
// # Fallback
//
// Invoke walks the caller's provider order, skipping providers without an API
// key. When no candidate has a key it fails with services.ErrConfiguration
// before any network call. For each provider a streaming failure (non-2xx,
// missing body, broken connection) triggers exactly one non-streaming call to
// the same provider; only when that also fails does Invoke move on. The first
// non-empty completion wins.
//
// # Tokens
//
// Streaming usage starts at zero and is replaced only by an authoritative
// usage frame. Counts are never estimated.
//
// # Retry Behaviour
//
// Non-streaming calls retry on HTTP 408/429/5xx, empty replies, and network timeouts
// with exponential backoff (base 1s, max 10s). The attempt count comes from
// llm.retry_attempts and defaults to a single attempt. Context cancellation
// aborts retries immediately.
package llm
