package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"tailor/internal/logging"
	"tailor/internal/parse"
	"tailor/internal/progress"
	"tailor/internal/services"
	"tailor/internal/services/llm"
)

// Invoker is the provider adapter surface the orchestrator needs.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, opts llm.Options) (llm.Response, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDefaults sets the sampling parameters used when a stage does not
// override them.
func WithDefaults(temperature float64, maxTokens int) Option {
	return func(o *Orchestrator) {
		o.temperature = temperature
		if maxTokens > 0 {
			o.maxTokens = maxTokens
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator executes pipelines one stage at a time.
type Orchestrator struct {
	invoker     Invoker
	publisher   progress.Publisher
	logger      *slog.Logger
	temperature float64
	maxTokens   int
	now         func() time.Time
}

// New constructs an orchestrator. A nil publisher disables progress events.
func New(invoker Invoker, publisher progress.Publisher, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if publisher == nil {
		publisher = discardPublisher{}
	}
	o := &Orchestrator{
		invoker:     invoker,
		publisher:   publisher,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
		temperature: 0.1,
		maxTokens:   4000,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes every stage of req in declaration order. The returned Run is
// never nil; on failure it carries the failed stage and the error is also
// returned. Exactly one terminal event is published for req.ID.
func (o *Orchestrator) Run(ctx context.Context, req *Request) (*Run, error) {
	if req == nil {
		return nil, services.Wrap(services.ErrValidation, "", "run", "nil request", nil)
	}
	if strings.TrimSpace(req.ID) == "" {
		req.ID = uuid.NewString()
	}
	started := o.now()
	run := &Run{
		RequestID: req.ID,
		Pipeline:  req.Pipeline,
		Status:    StatusRunning,
		Stages:    make([]StageResult, len(req.Stages)),
		StartedAt: started,
	}
	for i, spec := range req.Stages {
		run.Stages[i] = StageResult{Name: spec.Name, Index: i, Status: StatusPending}
	}

	ctx = services.WithRequestID(ctx, req.ID)
	if req.Pipeline != "" {
		ctx = services.WithPipeline(ctx, req.Pipeline)
	}
	logger := logging.WithContext(ctx, o.logger)

	if err := o.validate(req); err != nil {
		return o.fail(logger, run, -1, err), err
	}

	runContext := make(map[string]any, len(req.Context)+len(req.Stages))
	maps.Copy(runContext, req.Context)
	completed := make(map[string]bool, len(req.Stages))
	for _, spec := range req.Stages {
		completed[spec.Name] = false
	}

	logger.Info("pipeline started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.Int("stage_count", len(req.Stages)),
	)

	for i, spec := range req.Stages {
		if err := ctx.Err(); err != nil {
			return o.fail(logger, run, i, services.Wrap(services.ErrTransport, spec.Name, "run", "cancelled", err)), err
		}
		value, err := o.runStage(ctx, req, run, i, runContext, completed)
		if err != nil {
			return o.fail(logger, run, i, err), err
		}
		runContext[spec.Name] = value
		completed[spec.Name] = true
	}

	run.Status = StatusCompleted
	run.Duration = o.now().Sub(started)
	run.Output = make(map[string]any, len(req.Stages))
	for _, stage := range run.Stages {
		run.Output[stage.Name] = stage.Parsed
	}
	tokens := run.Tokens
	o.publisher.Publish(req.ID, progress.Event{
		Type:        progress.EventCompleted,
		StageIndex:  progress.RunLevel,
		TotalStages: len(req.Stages),
		Message:     "pipeline completed",
		Tokens:      &tokens,
		Output:      run.Output,
		DurationMs:  run.Duration.Milliseconds(),
	})
	logger.Info("pipeline completed",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.Duration("pipeline_duration", run.Duration),
		logging.Int("total_tokens", run.Tokens.Total),
	)
	return run, nil
}

func (o *Orchestrator) validate(req *Request) error {
	if o.invoker == nil {
		return services.Wrap(services.ErrConfiguration, "", "run", "no provider adapter configured", nil)
	}
	if err := ValidateStages(req.Stages); err != nil {
		return err
	}
	for _, spec := range req.Stages {
		if _, clash := req.Context[spec.Name]; clash {
			return services.Wrap(services.ErrValidation, spec.Name, "validate", "input key collides with stage name", nil)
		}
	}
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, req *Request, run *Run, index int, runContext map[string]any, completed map[string]bool) (any, error) {
	spec := req.Stages[index]
	result := &run.Stages[index]
	total := len(req.Stages)
	ctx = services.WithStage(ctx, spec.Name)
	stageLogger := logging.WithContext(ctx, o.logger)

	if err := result.transition(StatusRunning); err != nil {
		return nil, err
	}
	stageStart := o.now()
	result.StartedAt = stageStart
	o.publisher.Publish(req.ID, progress.Event{
		Type:        progress.EventStepStart,
		StageIndex:  index,
		Stage:       spec.Name,
		TotalStages: total,
		Message:     fmt.Sprintf("starting %s", spec.Name),
	})
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("stage_index", index),
		logging.Int("total_stages", total),
	)

	promptText, err := resolvePrompt(spec, runContext, completed)
	if err != nil {
		return nil, err
	}

	opts := llm.Options{
		Streaming:     o.publisher.HasSubscribers(req.ID),
		Temperature:   o.temperature,
		MaxTokens:     o.maxTokens,
		SystemPrompt:  spec.SystemPrompt,
		ProviderOrder: req.ProviderOrder,
	}
	if len(spec.Providers) > 0 {
		opts.ProviderOrder = spec.Providers
	}
	if spec.Temperature != nil {
		opts.Temperature = *spec.Temperature
	}
	if spec.MaxTokens > 0 {
		opts.MaxTokens = spec.MaxTokens
	}
	if opts.Streaming {
		opts.OnChunk = func(delta string) {
			o.publisher.Publish(req.ID, progress.Event{
				Type:        progress.EventStepChunk,
				StageIndex:  index,
				Stage:       spec.Name,
				TotalStages: total,
				Chunk:       delta,
			})
		}
	}

	resp, err := o.invoker.Invoke(ctx, promptText, opts)
	if err != nil {
		return nil, err
	}
	result.Raw = resp.Content
	result.Provider = resp.Provider
	result.Tokens = resp.Tokens
	run.Tokens = run.Tokens.Add(resp.Tokens)

	parsed, err := parse.Structured(resp.Content, spec.Output)
	result.ParseOutcome = parsed.Outcome.String()
	if err != nil {
		return nil, services.Wrap(services.ErrParse, spec.Name, "parse", "", err)
	}
	if parsed.Outcome == parse.OutcomeRepaired {
		logging.WarnWithContext(stageLogger, "stage output repaired",
			"parse_repaired",
			logging.String("preview", parse.Preview(resp.Content)),
			logging.String(logging.FieldErrorHint, "provider ignored the requested output format"),
			logging.String(logging.FieldImpact, "output recovered from free text"),
		)
	}

	if err := result.transition(StatusCompleted); err != nil {
		return nil, err
	}
	result.Parsed = parsed.Value
	result.Duration = o.now().Sub(stageStart)
	tokens := resp.Tokens
	o.publisher.Publish(req.ID, progress.Event{
		Type:        progress.EventStepComplete,
		StageIndex:  index,
		Stage:       spec.Name,
		TotalStages: total,
		Message:     fmt.Sprintf("completed %s", spec.Name),
		Tokens:      &tokens,
		Output:      parsed.Value,
		ParseResult: result.ParseOutcome,
		DurationMs:  result.Duration.Milliseconds(),
	})
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String(logging.FieldProvider, resp.Provider),
		logging.String("parse_result", result.ParseOutcome),
		logging.Bool("streamed", resp.Streamed),
		logging.Int("tokens", resp.Tokens.Total),
		logging.Duration("stage_duration", result.Duration),
	)
	return parsed.Value, nil
}

// fail marks the run failed at index (-1 when the request never started) and
// publishes the terminal error event.
func (o *Orchestrator) fail(logger *slog.Logger, run *Run, index int, err error) *Run {
	run.Status = StatusError
	run.Err = err
	run.Output = nil
	// Earlier stages keep status and tokens but drop what they produced.
	for i := range run.Stages {
		run.Stages[i].Raw = ""
		run.Stages[i].Parsed = nil
	}
	run.Duration = o.now().Sub(run.StartedAt)
	stageName := ""
	if index >= 0 && index < len(run.Stages) {
		stage := &run.Stages[index]
		stageName = stage.Name
		run.FailedStage = stage.Name
		if stage.Status == StatusPending {
			_ = stage.transition(StatusRunning)
		}
		_ = stage.transition(StatusError)
		stage.Error = err.Error()
		stage.Duration = o.now().Sub(stage.StartedAt)
		if stage.StartedAt.IsZero() {
			stage.Duration = 0
		}
	}
	tokens := run.Tokens
	kind := services.Kind(err)
	o.publisher.Publish(run.RequestID, progress.Event{
		Type:        progress.EventError,
		StageIndex:  index,
		Stage:       stageName,
		TotalStages: len(run.Stages),
		Message:     err.Error(),
		Tokens:      &tokens,
		ErrorKind:   kind,
		DurationMs:  run.Duration.Milliseconds(),
	})

	attrs := []logging.Attr{
		logging.String("error_kind", kind),
		logging.Error(err),
	}
	if stageName != "" {
		attrs = append(attrs, logging.String(logging.FieldStage, stageName))
	}
	var parseFailure *parse.ParseFailure
	if errors.As(err, &parseFailure) {
		attrs = append(attrs, logging.String("preview", parseFailure.Preview))
	}
	if !services.Retryable(err) {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, "fix the pipeline definition or request inputs"))
	}
	logging.ErrorWithContext(logger, "pipeline failed", "pipeline_failed", attrs...)
	return run
}

type discardPublisher struct{}

func (discardPublisher) Publish(string, progress.Event) {}

func (discardPublisher) HasSubscribers(string) bool { return false }
