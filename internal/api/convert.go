package api

import (
	"encoding/json"
	"time"

	"tailor/internal/batch"
	"tailor/internal/catalog"
	"tailor/internal/generation"
	"tailor/internal/pipeline"
	"tailor/internal/runstore"
	"tailor/internal/services"
)

// FromRun converts an orchestrator run to its API representation.
func FromRun(run *pipeline.Run) RunResponse {
	if run == nil {
		return RunResponse{}
	}
	dto := RunResponse{
		RequestID:   run.RequestID,
		Pipeline:    run.Pipeline,
		Status:      string(run.Status),
		Stages:      fromStages(run.Stages),
		Tokens:      run.Tokens,
		DurationMs:  run.Duration.Milliseconds(),
		FailedStage: run.FailedStage,
	}
	if run.Output != nil {
		if raw, err := json.Marshal(run.Output); err == nil {
			dto.Output = raw
		}
	}
	if run.Err != nil {
		dto.Error = run.Err.Error()
		dto.ErrorKind = services.Kind(run.Err)
	}
	return dto
}

// FromRecord converts a persisted run record to its API representation.
func FromRecord(record *runstore.Record) RunResponse {
	if record == nil {
		return RunResponse{}
	}
	dto := RunResponse{
		RequestID:   record.RequestID,
		Pipeline:    record.Pipeline,
		Status:      string(record.Status),
		Output:      record.Output,
		Stages:      fromStages(record.Stages),
		Tokens:      record.Tokens,
		DurationMs:  record.DurationMs,
		FailedStage: record.FailedStage,
		Error:       record.ErrorMessage,
		ErrorKind:   record.ErrorKind,
		BatchID:     record.BatchID,
		ItemIndex:   record.ItemIndex,
		CreatedAt:   FormatTime(record.CreatedAt),
		UpdatedAt:   FormatTime(record.UpdatedAt),
	}
	return dto
}

func fromStages(stages []pipeline.StageResult) []StageResponse {
	out := make([]StageResponse, 0, len(stages))
	for _, stage := range stages {
		out = append(out, StageResponse{
			Name:         stage.Name,
			Index:        stage.Index,
			Status:       string(stage.Status),
			Output:       stage.Parsed,
			ParseOutcome: stage.ParseOutcome,
			Provider:     stage.Provider,
			Tokens:       stage.Tokens,
			DurationMs:   stage.Duration.Milliseconds(),
			Error:        stage.Error,
		})
	}
	return out
}

// FromPipeline converts a catalog definition to a listing entry.
func FromPipeline(def *catalog.Pipeline) PipelineSummary {
	if def == nil {
		return PipelineSummary{}
	}
	summary := PipelineSummary{
		Name:        def.Name,
		Description: def.Description,
		Builtin:     def.Builtin,
		Inputs:      make([]InputSummary, 0, len(def.Inputs)),
		Stages:      make([]StageSummary, 0, len(def.Stages)),
	}
	for _, input := range def.Inputs {
		summary.Inputs = append(summary.Inputs, InputSummary{
			Name:        input.Name,
			Description: input.Description,
			Required:    input.Required,
			Default:     input.Default,
		})
	}
	deps, err := pipeline.Dependencies(def.Specs())
	if err != nil {
		deps = nil
	}
	for _, spec := range def.Specs() {
		stage, _ := def.Stage(spec.Name)
		summary.Stages = append(summary.Stages, StageSummary{
			Name:        spec.Name,
			OutputKind:  string(spec.Output.Kind),
			Cardinality: spec.Output.Cardinality,
			Keys:        spec.Output.Keys,
			Requires:    deps[spec.Name],
			Inputs:      def.InputsUsed(stage),
		})
	}
	return summary
}

// FromStatus converts the generation service status.
func FromStatus(status generation.Status) DaemonStatus {
	dto := DaemonStatus{
		Pipelines:  status.Pipelines,
		ActiveRuns: status.ActiveRuns,
		Progress:   status.Progress,
		Runs:       status.Runs,
		Database:   status.Database,
	}
	for _, provider := range status.Providers {
		dto.Providers = append(dto.Providers, ProviderStatus{
			Name:       provider.Name,
			Model:      provider.Model,
			Configured: provider.Configured,
		})
	}
	return dto
}

// Generation converts the request body for the generation service.
func (r GenerateRequest) Generation() generation.Request {
	return generation.Request{
		RequestID: r.RequestID,
		Pipeline:  r.Pipeline,
		Inputs:    r.Inputs,
		Providers: r.Providers,
	}
}

// Generation converts the request body for the generation service.
func (r BatchRequest) Generation() generation.BatchRequest {
	items := make([]batch.Item, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, batch.Item{
			RequestID: item.RequestID,
			Pipeline:  item.Pipeline,
			Inputs:    item.Inputs,
		})
	}
	return generation.BatchRequest{
		Pipeline:        r.Pipeline,
		Items:           items,
		ConcurrencyHint: r.ConcurrencyHint,
		Providers:       r.Providers,
	}
}

// FormatTime renders ts in the wire timestamp format, or "" when unset.
func FormatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(dateTimeFormat)
}
