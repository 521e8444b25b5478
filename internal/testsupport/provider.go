package testsupport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// ReplyFunc produces the completion text for a user prompt. An error makes the
// fake provider answer with HTTP 500.
type ReplyFunc func(prompt string) (string, error)

// FakeProvider is an OpenAI-compatible chat completion server. Streaming
// requests receive the reply split into word-sized SSE deltas.
type FakeProvider struct {
	Server *httptest.Server

	reply     ReplyFunc
	streamed  atomic.Int64
	completed atomic.Int64

	mu      sync.Mutex
	prompts []string
}

// NewFakeProvider starts a fake provider and registers cleanup.
func NewFakeProvider(t testing.TB, reply ReplyFunc) *FakeProvider {
	t.Helper()

	fp := &FakeProvider{reply: reply}
	fp.Server = httptest.NewServer(http.HandlerFunc(fp.handle))
	t.Cleanup(fp.Server.Close)
	return fp
}

// URL returns the chat completions endpoint.
func (fp *FakeProvider) URL() string {
	return fp.Server.URL + "/v1/chat/completions"
}

// Calls returns the number of streaming and non-streaming requests served.
func (fp *FakeProvider) Calls() (streamed, completed int64) {
	return fp.streamed.Load(), fp.completed.Load()
}

// Prompts returns the user prompts received so far.
func (fp *FakeProvider) Prompts() []string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return append([]string(nil), fp.prompts...)
}

type fakeRequest struct {
	Stream   bool `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (fp *FakeProvider) handle(w http.ResponseWriter, r *http.Request) {
	var req fakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var userPrompt string
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			userPrompt = msg.Content
		}
	}
	fp.mu.Lock()
	fp.prompts = append(fp.prompts, userPrompt)
	fp.mu.Unlock()

	if req.Stream {
		fp.streamed.Add(1)
	} else {
		fp.completed.Add(1)
	}
	content, err := fp.reply(userPrompt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	usage := map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}

	if !req.Stream {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
			"usage":   usage,
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	write := func(payload any) {
		encoded, _ := json.Marshal(payload)
		fmt.Fprintf(w, "data: %s\n\n", encoded)
		if flusher != nil {
			flusher.Flush()
		}
	}
	for _, delta := range splitDeltas(content) {
		write(map[string]any{"choices": []any{map[string]any{"delta": map[string]any{"content": delta}}}})
	}
	write(map[string]any{"choices": []any{}, "usage": usage})
	fmt.Fprint(w, "data: [DONE]\n\n")
}

// splitDeltas cuts content after each space so the pieces concatenate back to
// the original text.
func splitDeltas(content string) []string {
	var out []string
	for content != "" {
		idx := strings.IndexByte(content, ' ')
		if idx < 0 {
			out = append(out, content)
			break
		}
		out = append(out, content[:idx+1])
		content = content[idx+1:]
	}
	return out
}
