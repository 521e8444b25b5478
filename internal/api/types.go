package api

import (
	"encoding/json"

	"tailor/internal/batch"
	"tailor/internal/pipeline"
	"tailor/internal/progress"
	"tailor/internal/runstore"
	"tailor/internal/services/llm"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// GenerateRequest is the POST /generate body.
type GenerateRequest struct {
	RequestID string         `json:"requestId,omitempty"`
	Pipeline  string         `json:"pipeline,omitempty"`
	Inputs    map[string]any `json:"inputs"`
	Stream    bool           `json:"stream,omitempty"`
	Providers []string       `json:"providers,omitempty"`
}

// StreamAccepted is returned for streaming generate requests.
type StreamAccepted struct {
	RequestID   string `json:"requestId"`
	ProgressURL string `json:"progressUrl"`
}

// StageResponse is one stage of a finished run.
type StageResponse struct {
	Name         string     `json:"name"`
	Index        int        `json:"index"`
	Status       string     `json:"status"`
	Output       any        `json:"output,omitempty"`
	ParseOutcome string     `json:"parseOutcome,omitempty"`
	Provider     string     `json:"provider,omitempty"`
	Tokens       llm.Tokens `json:"tokens"`
	DurationMs   int64      `json:"durationMs"`
	Error        string     `json:"error,omitempty"`
}

// RunResponse describes a run, either just finished or loaded from the run
// store.
type RunResponse struct {
	RequestID   string          `json:"requestId"`
	Pipeline    string          `json:"pipeline,omitempty"`
	Status      string          `json:"status"`
	Output      json.RawMessage `json:"output,omitempty"`
	Stages      []StageResponse `json:"stages"`
	Tokens      llm.Tokens      `json:"tokens"`
	DurationMs  int64           `json:"durationMs"`
	FailedStage string          `json:"failedStage,omitempty"`
	Error       string          `json:"error,omitempty"`
	ErrorKind   string          `json:"errorKind,omitempty"`
	BatchID     string          `json:"batchId,omitempty"`
	ItemIndex   *int            `json:"itemIndex,omitempty"`
	CreatedAt   string          `json:"createdAt,omitempty"`
	UpdatedAt   string          `json:"updatedAt,omitempty"`
}

// Failed reports whether the run ended in error.
func (r RunResponse) Failed() bool {
	return r.Status == string(pipeline.StatusError)
}

// BatchItem is one entry of a batch request.
type BatchItem struct {
	RequestID string         `json:"requestId,omitempty"`
	Pipeline  string         `json:"pipeline,omitempty"`
	Inputs    map[string]any `json:"inputs"`
}

// BatchRequest is the POST /batch body.
type BatchRequest struct {
	Pipeline        string      `json:"pipeline,omitempty"`
	Items           []BatchItem `json:"items"`
	ConcurrencyHint int         `json:"concurrencyHint,omitempty"`
	Providers       []string    `json:"providers,omitempty"`
}

// BatchResponse is the POST /batch result.
type BatchResponse = batch.Result

// InputSummary describes one pipeline input.
type InputSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Default     string `json:"default,omitempty"`
}

// StageSummary describes one pipeline stage.
type StageSummary struct {
	Name        string   `json:"name"`
	OutputKind  string   `json:"outputKind"`
	Cardinality int      `json:"cardinality,omitempty"`
	Keys        []string `json:"keys,omitempty"`
	Requires    []string `json:"requires,omitempty"`
	Inputs      []string `json:"inputs,omitempty"`
}

// PipelineSummary is a catalog listing entry.
type PipelineSummary struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Builtin     bool           `json:"builtin"`
	Inputs      []InputSummary `json:"inputs"`
	Stages      []StageSummary `json:"stages"`
}

// PipelineListResponse wraps the catalog listing.
type PipelineListResponse struct {
	Pipelines []PipelineSummary `json:"pipelines"`
}

// ProviderStatus describes one provider as seen by the daemon.
type ProviderStatus struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	Configured bool   `json:"configured"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool                     `json:"running"`
	PID          int                      `json:"pid"`
	StartedAt    string                   `json:"startedAt,omitempty"`
	LockFilePath string                   `json:"lockFilePath"`
	RunStorePath string                   `json:"runStorePath"`
	Pipelines    []string                 `json:"pipelines"`
	Providers    []ProviderStatus         `json:"providers"`
	ActiveRuns   int                      `json:"activeRuns"`
	Progress     progress.Stats           `json:"progress"`
	Runs         *runstore.HealthSummary  `json:"runs,omitempty"`
	Database     *runstore.DatabaseHealth `json:"database,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
