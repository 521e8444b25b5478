package progress

import (
	"time"

	"tailor/internal/services/llm"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventStepStart    EventType = "step_start"
	EventStepChunk    EventType = "step_chunk"
	EventStepComplete EventType = "step_complete"
	EventCompleted    EventType = "completed"
	EventError        EventType = "error"
)

// RunLevel marks events that do not belong to a single stage.
const RunLevel = -1

// Event is one progress frame. Sequence is assigned by the registry and is
// zero for the synthetic connected event.
type Event struct {
	RequestID   string      `json:"requestId"`
	Type        EventType   `json:"type"`
	Sequence    uint64      `json:"sequence"`
	StageIndex  int         `json:"stageIndex"`
	Stage       string      `json:"stage,omitempty"`
	TotalStages int         `json:"totalStages,omitempty"`
	Message     string      `json:"message,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	Chunk       string      `json:"chunk,omitempty"`
	Tokens      *llm.Tokens `json:"tokens,omitempty"`
	Output      any         `json:"output,omitempty"`
	ParseResult string      `json:"parseResult,omitempty"`
	DurationMs  int64       `json:"durationMs,omitempty"`
	ErrorKind   string      `json:"errorKind,omitempty"`
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventError
}

// Publisher is the side of the registry the orchestrator depends on.
type Publisher interface {
	Publish(requestID string, event Event)
	HasSubscribers(requestID string) bool
}
