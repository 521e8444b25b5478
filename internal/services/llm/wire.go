package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tailor/internal/parse"
)

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	Temperature   float64        `json:"temperature"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageBody struct {
	Content string `json:"content"`
}

type chatChoice struct {
	Message      messageBody `json:"message"`
	// Some gateways answer stream=false calls with the delta schema.
	Delta        messageBody `json:"delta"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   *usage       `json:"usage"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// content returns the first non-blank text across every choice and the
// first reported finish reason.
func (r chatResponse) content() (text, finish string) {
	for _, choice := range r.Choices {
		if finish == "" {
			finish = strings.TrimSpace(choice.FinishReason)
		}
		if text != "" {
			continue
		}
		for _, candidate := range [...]string{choice.Message.Content, choice.Delta.Content, choice.Text} {
			if strings.TrimSpace(candidate) != "" {
				text = candidate
				break
			}
		}
	}
	return text, finish
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *usage) tokens() Tokens {
	if u == nil {
		return Tokens{}
	}
	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	return Tokens{Prompt: u.PromptTokens, Completion: u.CompletionTokens, Total: total}
}

// statusError is a non-2xx reply from the provider.
type statusError struct {
	code       int
	body       string
	retryAfter string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, parse.Preview(e.body))
}

// emptyReplyError is a 2xx reply that carried no usable text.
type emptyReplyError struct {
	op      string
	finish  string
	snippet string
}

func (e *emptyReplyError) Error() string {
	if e.snippet == "" {
		return e.op + ": empty choices"
	}
	return fmt.Sprintf("%s: empty content (finish_reason=%q, response_snippet=%s)", e.op, e.finish, e.snippet)
}

func (c *Client) payload(req Request, stream bool) chatRequest {
	system := strings.TrimSpace(req.SystemPrompt)
	if system == "" {
		system = c.cfg.SystemPrompt
	}
	out := chatRequest{
		Model:       c.cfg.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = defaultMaxTokens
	}
	if system != "" {
		out.Messages = append(out.Messages, chatMessage{Role: "system", Content: system})
	}
	out.Messages = append(out.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if stream {
		out.Stream = true
		out.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return out
}

func (c *Client) newRequest(ctx context.Context, payload chatRequest) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

// post performs one non-streaming attempt.
func (c *Client) post(ctx context.Context, payload chatRequest, op string) (Completion, error) {
	req, err := c.newRequest(ctx, payload)
	if err != nil {
		return Completion{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("http error (timeout=%s): %w", c.timeout, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("read body (timeout=%s): %w", c.timeout, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Completion{}, &statusError{
			code:       resp.StatusCode,
			body:       strings.TrimSpace(string(raw)),
			retryAfter: resp.Header.Get("Retry-After"),
		}
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Completion{}, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return Completion{}, fmt.Errorf("api error: %s", strings.TrimSpace(decoded.Error.Message))
	}
	text, finish := decoded.content()
	if text == "" {
		empty := &emptyReplyError{op: op, finish: finish}
		if len(decoded.Choices) > 0 {
			empty.snippet = parse.Preview(string(raw))
		}
		return Completion{}, empty
	}
	return Completion{Content: text, Tokens: decoded.Usage.tokens()}, nil
}
