package pipeline

import (
	"fmt"
	"time"

	"tailor/internal/parse"
	"tailor/internal/services/llm"
)

// Status is a stage or run lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// StageSpec describes one provider call plus parse step.
type StageSpec struct {
	Name         string
	Template     string
	SystemPrompt string
	// Bindings maps placeholder names to dotted context paths. Placeholders
	// without an entry resolve the path equal to their own name.
	Bindings map[string]string
	// Required lists placeholders that must resolve before the call.
	Required    []string
	Output      parse.Shape
	Providers   []string
	Temperature *float64
	MaxTokens   int
}

// pathFor returns the context path bound to placeholder.
func (s StageSpec) pathFor(placeholder string) string {
	if path, ok := s.Bindings[placeholder]; ok && path != "" {
		return path
	}
	return placeholder
}

// Request is one pipeline run. Context seeds the run's cumulative context and
// is copied, never mutated.
type Request struct {
	ID            string
	Pipeline      string
	Stages        []StageSpec
	Context       map[string]any
	ProviderOrder []string
}

// StageResult tracks one stage of a run.
type StageResult struct {
	Name         string        `json:"name"`
	Index        int           `json:"index"`
	Status       Status        `json:"status"`
	Raw          string        `json:"raw,omitempty"`
	Parsed       any           `json:"parsed,omitempty"`
	ParseOutcome string        `json:"parseOutcome,omitempty"`
	Provider     string        `json:"provider,omitempty"`
	Tokens       llm.Tokens    `json:"tokens"`
	StartedAt    time.Time     `json:"startedAt,omitzero"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

// transition enforces pending -> running -> {completed, error}.
func (r *StageResult) transition(to Status) error {
	switch {
	case r.Status == StatusPending && to == StatusRunning,
		r.Status == StatusRunning && (to == StatusCompleted || to == StatusError):
		r.Status = to
		return nil
	default:
		return fmt.Errorf("stage %s: illegal transition %s -> %s", r.Name, r.Status, to)
	}
}

// Run is the outcome of Orchestrator.Run. Output holds each stage's parsed
// value keyed by stage name and is nil unless the run completed.
type Run struct {
	RequestID   string         `json:"requestId"`
	Pipeline    string         `json:"pipeline,omitempty"`
	Status      Status         `json:"status"`
	Stages      []StageResult  `json:"stages"`
	Output      map[string]any `json:"output,omitempty"`
	Tokens      llm.Tokens     `json:"tokens"`
	StartedAt   time.Time      `json:"startedAt"`
	Duration    time.Duration  `json:"duration"`
	FailedStage string         `json:"failedStage,omitempty"`
	Err         error          `json:"-"`
}

// Stage returns the result for the named stage.
func (r *Run) Stage(name string) (StageResult, bool) {
	for _, stage := range r.Stages {
		if stage.Name == name {
			return stage, true
		}
	}
	return StageResult{}, false
}
