package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"tailor/internal/services"
)

const maxFrameBytes = 1 << 20

// Frame is one decoded event from a streaming completion.
type Frame struct {
	Delta        string
	Usage        *Tokens
	FinishReason string
}

type streamChunk struct {
	Choices []struct {
		Delta        messageBody `json:"delta"`
		Message      messageBody `json:"message"`
		FinishReason *string     `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

// Stream opens a stream=true completion and yields frames in arrival order.
// The sequence is single-use: ranging over it issues the HTTP request. Any
// yielded error ends the sequence. Frames that fail to decode are skipped.
func (c *Client) Stream(ctx context.Context, req Request) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		if !c.Configured() {
			yield(Frame{}, services.Wrap(services.ErrConfiguration, "", c.op("stream"), "api key required", nil))
			return
		}
		httpReq, err := c.newRequest(ctx, c.payload(req, true))
		if err != nil {
			yield(Frame{}, err)
			return
		}
		resp, err := c.streamHTTPClient().Do(httpReq)
		if err != nil {
			yield(Frame{}, fmt.Errorf("%s: http error: %w", c.op("stream"), err))
			return
		}
		if resp.Body == nil {
			yield(Frame{}, fmt.Errorf("%s: response has no body", c.op("stream")))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusMultipleChoices {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			yield(Frame{}, fmt.Errorf("%s: %w", c.op("stream"), &statusError{code: resp.StatusCode, body: string(body)}))
			return
		}

		for frame, err := range decodeFrames(resp.Body) {
			if err != nil {
				yield(Frame{}, fmt.Errorf("%s: %w", c.op("stream"), err))
				return
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}

// decodeFrames reads "data:" lines until [DONE] or EOF.
func decodeFrames(r io.Reader) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				return
			}
			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			frame := Frame{}
			if len(chunk.Choices) > 0 {
				choice := chunk.Choices[0]
				frame.Delta = choice.Delta.Content
				if frame.Delta == "" {
					frame.Delta = choice.Message.Content
				}
				if choice.FinishReason != nil {
					frame.FinishReason = *choice.FinishReason
				}
			}
			if chunk.Usage != nil {
				tokens := chunk.Usage.tokens()
				frame.Usage = &tokens
			}
			if frame.Delta == "" && frame.Usage == nil && frame.FinishReason == "" {
				continue
			}
			if !yield(frame, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
			yield(Frame{}, fmt.Errorf("read stream: %w", err))
		}
	}
}

// streamHTTPClient drops the whole-request timeout, which would cut off long
// generations; the caller's context bounds the stream instead.
func (c *Client) streamHTTPClient() *http.Client {
	return &http.Client{
		Transport:     c.http.Transport,
		CheckRedirect: c.http.CheckRedirect,
		Jar:           c.http.Jar,
	}
}
