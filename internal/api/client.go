package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tailor/internal/config"
	"tailor/internal/progress"
	"tailor/internal/services"
)

// Error is a non-2xx response from the daemon.
type Error struct {
	StatusCode int
	Message    string
	Kind       string
}

func (e *Error) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("daemon returned %d (%s): %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the reported kind back to its sentinel so errors.Is works on
// the client side.
func (e *Error) Unwrap() error {
	return sentinelForKind(e.Kind)
}

func sentinelForKind(kind string) error {
	switch kind {
	case "configuration":
		return services.ErrConfiguration
	case "transport":
		return services.ErrTransport
	case "parse":
		return services.ErrParse
	case "stage_dependency":
		return services.ErrStageDependency
	case "missing_binding":
		return services.ErrMissingBinding
	case "validation":
		return services.ErrValidation
	case "not_found":
		return services.ErrNotFound
	default:
		return nil
	}
}

// Client calls the tailord HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for the daemon at baseURL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 10 * time.Minute},
	}
}

// NewClientFromConfig targets the daemon's configured bind address. Wildcard
// hosts are dialed on loopback.
func NewClientFromConfig(cfg *config.Config) *Client {
	return NewClient(BaseURL(cfg.Paths.APIBind), cfg.Paths.APIToken)
}

// BaseURL turns a listen address into a dialable URL.
func BaseURL(bind string) string {
	bind = strings.TrimSpace(bind)
	if strings.HasPrefix(bind, "http://") || strings.HasPrefix(bind, "https://") {
		return bind
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "http://" + bind
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// Generate runs a pipeline synchronously. A run that fails after it started
// is returned with its error fields set and a nil error.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (RunResponse, error) {
	req.Stream = false
	var run RunResponse
	err := c.do(ctx, http.MethodPost, "/generate", req, &run)
	var apiErr *Error
	if errors.As(err, &apiErr) && run.RequestID != "" {
		return run, nil
	}
	return run, err
}

// Start begins a streaming run and returns where to follow it.
func (c *Client) Start(ctx context.Context, req GenerateRequest) (StreamAccepted, error) {
	req.Stream = true
	var accepted StreamAccepted
	err := c.do(ctx, http.MethodPost, "/generate", req, &accepted)
	return accepted, err
}

// Batch runs a batch and waits for every item.
func (c *Client) Batch(ctx context.Context, req BatchRequest) (BatchResponse, error) {
	var result BatchResponse
	err := c.do(ctx, http.MethodPost, "/batch", req, &result)
	return result, err
}

// Run fetches a persisted run record.
func (c *Client) Run(ctx context.Context, requestID string) (RunResponse, error) {
	var run RunResponse
	err := c.do(ctx, http.MethodGet, "/runs/"+url.PathEscape(requestID), nil, &run)
	return run, err
}

// Pipelines lists the daemon's catalog.
func (c *Client) Pipelines(ctx context.Context) ([]PipelineSummary, error) {
	var resp PipelineListResponse
	if err := c.do(ctx, http.MethodGet, "/pipelines", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Pipelines, nil
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var status DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &status)
	return status, err
}

// Progress subscribes to a run's progress channel. The sequence ends after
// the terminal event, when the daemon closes the stream, or when ctx is done.
func (c *Client) Progress(ctx context.Context, requestID string) iter.Seq2[progress.Event, error] {
	return func(yield func(progress.Event, error) bool) {
		req, err := c.newRequest(ctx, http.MethodGet, "/progress/"+url.PathEscape(requestID), nil)
		if err != nil {
			yield(progress.Event{}, err)
			return
		}
		req.Header.Set("Accept", "text/event-stream")
		stream := &http.Client{Transport: c.http.Transport}
		resp, err := stream.Do(req)
		if err != nil {
			yield(progress.Event{}, fmt.Errorf("progress request: %w", err))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			yield(progress.Event{}, decodeError(resp))
			return
		}
		for event, err := range DecodeEvents(resp.Body) {
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				yield(progress.Event{}, err)
				return
			}
			if !yield(event, nil) || event.Terminal() {
				return
			}
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		if out != nil {
			_ = json.Unmarshal(data, out)
		}
		return errorFromBody(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return errorFromBody(resp.StatusCode, data)
}

func errorFromBody(status int, data []byte) error {
	var payload struct {
		ErrorResponse
		ErrorKind string `json:"errorKind"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		return &Error{StatusCode: status, Message: strings.TrimSpace(string(data))}
	}
	kind := payload.Kind
	if kind == "" {
		kind = payload.ErrorKind
	}
	return &Error{StatusCode: status, Message: payload.Error, Kind: kind}
}
