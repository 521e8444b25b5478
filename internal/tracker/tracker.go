package tracker

import (
	"strings"
	"sync"
	"time"

	"tailor/internal/progress"
	"tailor/internal/services/llm"
)

// Status is a stage or overall run state as seen by a client.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Stage is the client view of one stage.
type Stage struct {
	Index        int
	Name         string
	Status       Status
	StreamedText string
	Parsed       any
	ParseResult  string
	Tokens       llm.Tokens
	DurationMs   int64
	Error        string
	ErrorKind    string
}

// Overall summarizes the run.
type Overall struct {
	Status      Status
	Completed   int
	Total       int
	Current     string
	Tokens      llm.Tokens
	DurationMs  int64
	Output      any
	FailedStage string
	Error       string
	ErrorKind   string
}

// Tracker accumulates events for one request. It is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	requestID string
	stages    []*Stage
	status    Status
	connected bool
	total     int
	tokens    llm.Tokens
	duration  int64
	output    any
	failed    string
	err       string
	errKind   string
	started   time.Time
	lastSeq   uint64
}

// New creates a tracker. stageNames may be empty; stages are then learned
// from events.
func New(requestID string, stageNames ...string) *Tracker {
	t := &Tracker{requestID: requestID, status: StatusIdle, total: len(stageNames)}
	for i, name := range stageNames {
		t.stages = append(t.stages, &Stage{Index: i, Name: name, Status: StatusPending})
	}
	return t
}

// RequestID returns the tracked request.
func (t *Tracker) RequestID() string { return t.requestID }

// Apply folds one event into the state and reports whether anything changed.
func (t *Tracker) Apply(event progress.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.requestID != "" && event.RequestID != "" && event.RequestID != t.requestID {
		return false
	}
	if t.status.terminal() {
		return false
	}
	if event.Sequence != 0 {
		if event.Sequence <= t.lastSeq {
			return false
		}
		t.lastSeq = event.Sequence
	}
	if event.TotalStages > t.total {
		t.total = event.TotalStages
	}

	switch event.Type {
	case progress.EventConnected:
		changed := !t.connected
		t.connected = true
		return changed
	case progress.EventStepStart:
		stage := t.stage(event)
		if stage == nil || stage.Status != StatusPending {
			return false
		}
		stage.Status = StatusRunning
		if t.status == StatusIdle {
			t.status = StatusRunning
			t.started = event.Timestamp
		}
		return true
	case progress.EventStepChunk:
		stage := t.stage(event)
		if stage == nil || stage.Status != StatusRunning || event.Chunk == "" {
			return false
		}
		stage.StreamedText += event.Chunk
		return true
	case progress.EventStepComplete:
		stage := t.stage(event)
		if stage == nil || stage.Status.terminal() {
			return false
		}
		stage.Status = StatusCompleted
		stage.StreamedText = ""
		stage.Parsed = event.Output
		stage.ParseResult = event.ParseResult
		stage.DurationMs = event.DurationMs
		if event.Tokens != nil {
			stage.Tokens = *event.Tokens
			t.tokens = t.tokens.Add(*event.Tokens)
		}
		t.status = StatusRunning
		return true
	case progress.EventCompleted:
		t.status = StatusCompleted
		t.output = event.Output
		t.duration = event.DurationMs
		t.adoptTokens(event.Tokens)
		return true
	case progress.EventError:
		if event.StageIndex >= 0 {
			if stage := t.stage(event); stage != nil && !stage.Status.terminal() {
				stage.Status = StatusError
				stage.Error = event.Message
				stage.ErrorKind = event.ErrorKind
				stage.DurationMs = event.DurationMs
				t.failed = stage.Name
			}
		}
		t.status = StatusError
		t.err = event.Message
		t.errKind = event.ErrorKind
		t.duration = event.DurationMs
		t.adoptTokens(event.Tokens)
		return true
	default:
		return false
	}
}

// adoptTokens takes the cumulative count from a terminal event without ever
// lowering the running total.
func (t *Tracker) adoptTokens(tokens *llm.Tokens) {
	if tokens != nil && tokens.Total >= t.tokens.Total {
		t.tokens = *tokens
	}
}

// stage returns the stage an event refers to, creating placeholders for
// stages not seen yet.
func (t *Tracker) stage(event progress.Event) *Stage {
	if event.StageIndex < 0 {
		return nil
	}
	for len(t.stages) <= event.StageIndex {
		t.stages = append(t.stages, &Stage{Index: len(t.stages), Status: StatusPending})
	}
	stage := t.stages[event.StageIndex]
	if stage.Name == "" && event.Stage != "" {
		stage.Name = event.Stage
	}
	if event.Stage != "" && stage.Name != event.Stage {
		return nil
	}
	return stage
}

// Stages returns a copy of every known stage, padded to the announced total.
func (t *Tracker) Stages() []Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Stage, 0, max(t.total, len(t.stages)))
	for _, stage := range t.stages {
		out = append(out, *stage)
	}
	for i := len(out); i < t.total; i++ {
		out = append(out, Stage{Index: i, Status: StatusPending})
	}
	return out
}

// Stage returns a copy of the named stage.
func (t *Tracker) Stage(name string) (Stage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, stage := range t.stages {
		if stage.Name == name {
			return *stage, true
		}
	}
	return Stage{}, false
}

// Overall summarizes the run.
func (t *Tracker) Overall() Overall {
	t.mu.Lock()
	defer t.mu.Unlock()
	overall := Overall{
		Status:      t.status,
		Total:       max(t.total, len(t.stages)),
		Tokens:      t.tokens,
		DurationMs:  t.duration,
		Output:      t.output,
		FailedStage: t.failed,
		Error:       t.err,
		ErrorKind:   t.errKind,
	}
	for _, stage := range t.stages {
		switch stage.Status {
		case StatusCompleted:
			overall.Completed++
		case StatusRunning:
			overall.Current = stage.Name
		}
	}
	if overall.DurationMs == 0 && !t.started.IsZero() && !t.status.terminal() {
		overall.DurationMs = time.Since(t.started).Milliseconds()
	}
	return overall
}

// Done reports whether a terminal event has been applied.
func (t *Tracker) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status.terminal()
}

// Connected reports whether the connected event has been seen.
func (t *Tracker) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Transcript renders a plain line per stage for non-interactive output.
func (t *Tracker) Transcript() string {
	var b strings.Builder
	for _, stage := range t.Stages() {
		name := stage.Name
		if name == "" {
			name = "stage"
		}
		b.WriteString(string(stage.Status))
		b.WriteString("\t")
		b.WriteString(name)
		if stage.Error != "" {
			b.WriteString("\t")
			b.WriteString(stage.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}
