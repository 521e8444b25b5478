package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"tailor/internal/progress"
)

// maxEventBytes bounds one progress frame; step_complete frames carry the
// full parsed stage output.
const maxEventBytes = 4 * 1024 * 1024

// WriteEvent writes event as one "data: <json>" frame.
func WriteEvent(w io.Writer, event progress.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode progress event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write progress event: %w", err)
	}
	return nil
}

// DecodeEvents reads progress frames until EOF. Comment lines are skipped
// and multi-line data fields are joined with newlines. A frame that is not a
// valid event ends the sequence with an error.
func DecodeEvents(r io.Reader) iter.Seq2[progress.Event, error] {
	return func(yield func(progress.Event, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxEventBytes)
		var data []string
		flush := func() bool {
			if len(data) == 0 {
				return true
			}
			payload := strings.Join(data, "\n")
			data = data[:0]
			var event progress.Event
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				yield(progress.Event{}, fmt.Errorf("decode progress event: %w", err))
				return false
			}
			return yield(event, nil)
		}
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			switch {
			case line == "":
				if !flush() {
					return
				}
			case strings.HasPrefix(line, ":"):
			default:
				value, ok := strings.CutPrefix(line, "data:")
				if !ok {
					continue
				}
				data = append(data, strings.TrimPrefix(value, " "))
			}
		}
		if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
			yield(progress.Event{}, fmt.Errorf("read progress stream: %w", err))
			return
		}
		flush()
	}
}
