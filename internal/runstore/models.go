package runstore

import (
	"encoding/json"
	"time"

	"tailor/internal/pipeline"
	"tailor/internal/services/llm"
)

// Status mirrors the run lifecycle.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Record is one persisted run.
type Record struct {
	RequestID    string                 `json:"requestId"`
	Pipeline     string                 `json:"pipeline"`
	Status       Status                 `json:"status"`
	BatchID      string                 `json:"batchId,omitempty"`
	ItemIndex    *int                   `json:"itemIndex,omitempty"`
	Inputs       json.RawMessage        `json:"inputs,omitempty"`
	Output       json.RawMessage        `json:"output,omitempty"`
	Stages       []pipeline.StageResult `json:"stages,omitempty"`
	Tokens       llm.Tokens             `json:"tokens"`
	FailedStage  string                 `json:"failedStage,omitempty"`
	ErrorKind    string                 `json:"errorKind,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	DurationMs   int64                  `json:"durationMs"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// Terminal reports whether the run has finished.
func (r *Record) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusError
}

// Start describes a run about to begin.
type Start struct {
	RequestID string
	Pipeline  string
	BatchID   string
	ItemIndex *int
	Inputs    map[string]any
}

// HealthSummary aggregates run counts by state.
type HealthSummary struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// DatabaseHealth reports on the database file itself.
type DatabaseHealth struct {
	Path          string `json:"path"`
	SchemaVersion int    `json:"schemaVersion"`
	IntegrityOK   bool   `json:"integrityOk"`
	Records       int    `json:"records"`
}
