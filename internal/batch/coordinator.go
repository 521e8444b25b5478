package batch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tailor/internal/logging"
	"tailor/internal/pipeline"
	"tailor/internal/services"
	"tailor/internal/services/llm"
)

// Item is one batch entry.
type Item struct {
	RequestID string         `json:"requestId,omitempty"`
	Pipeline  string         `json:"pipeline,omitempty"`
	Inputs    map[string]any `json:"inputs"`
}

// ItemResult is the outcome of one item. Exactly one of Output or Error is set.
type ItemResult struct {
	Index       int            `json:"index"`
	RequestID   string         `json:"requestId,omitempty"`
	Status      string         `json:"status"`
	Output      map[string]any `json:"output,omitempty"`
	Tokens      llm.Tokens     `json:"tokens"`
	DurationMs  int64          `json:"durationMs"`
	FailedStage string         `json:"failedStage,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorKind   string         `json:"errorKind,omitempty"`
}

// Summary counts item outcomes.
type Summary struct {
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Tokens     llm.Tokens `json:"tokens"`
	DurationMs int64      `json:"durationMs"`
}

// Result is a completed batch.
type Result struct {
	BatchID string       `json:"batchId,omitempty"`
	Items   []ItemResult `json:"results"`
	Summary Summary      `json:"summary"`
}

// Runner executes one item. index is the item's position in the batch.
type Runner func(ctx context.Context, index int, item Item) (*pipeline.Run, error)

// Coordinator fans a batch out over a Runner.
type Coordinator struct {
	run         Runner
	concurrency func(hint int) int
	logger      *slog.Logger
	now         func() time.Time
}

// New builds a coordinator. concurrency maps a caller hint to the effective
// limit (see config.Config.BatchConcurrency); nil runs items sequentially.
func New(run Runner, concurrency func(hint int) int, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if concurrency == nil {
		concurrency = func(int) int { return 1 }
	}
	return &Coordinator{
		run:         run,
		concurrency: concurrency,
		logger:      logging.NewComponentLogger(logger, "batch"),
		now:         time.Now,
	}
}

// Run executes items and waits for all of them. Cancelling ctx stops items
// that have not started; they are reported as failed.
func (c *Coordinator) Run(ctx context.Context, batchID string, items []Item, concurrencyHint int) Result {
	started := c.now()
	limit := max(c.concurrency(concurrencyHint), 1)
	results := make([]ItemResult, len(items))

	logger := c.logger
	if batchID != "" {
		logger = logger.With(logging.String("batch_id", batchID))
	}
	logger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.Int("items", len(items)),
		logging.Int("concurrency", limit),
	)

	var group errgroup.Group
	group.SetLimit(limit)
	for i, item := range items {
		group.Go(func() error {
			results[i] = c.runItem(ctx, i, item)
			return nil
		})
	}
	_ = group.Wait()

	result := Result{BatchID: batchID, Items: results}
	result.Summary.Total = len(results)
	for _, item := range results {
		if item.Status == string(pipeline.StatusCompleted) {
			result.Summary.Succeeded++
		} else {
			result.Summary.Failed++
		}
		result.Summary.Tokens = result.Summary.Tokens.Add(item.Tokens)
	}
	result.Summary.DurationMs = c.now().Sub(started).Milliseconds()

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("succeeded", result.Summary.Succeeded),
		logging.Int("failed", result.Summary.Failed),
		logging.Int("total_tokens", result.Summary.Tokens.Total),
		logging.Duration("batch_duration", c.now().Sub(started)),
	}
	if result.Summary.Failed > 0 {
		logging.WarnWithContext(logger, "batch completed with failures", "batch_complete",
			append(attrs,
				logging.String(logging.FieldImpact, "failed items have no output"),
				logging.String(logging.FieldErrorHint, "inspect per-item errors"),
			)...)
	} else {
		logger.Info("batch completed", logging.Args(attrs...)...)
	}
	return result
}

func (c *Coordinator) runItem(ctx context.Context, index int, item Item) (result ItemResult) {
	result = ItemResult{Index: index, RequestID: item.RequestID, Status: string(pipeline.StatusError)}
	defer func() {
		if r := recover(); r != nil {
			result.Error = "item panicked"
			result.ErrorKind = "internal"
			logging.ErrorWithContext(c.logger, "batch item panicked", "batch_item_panic",
				logging.Int(logging.FieldItemIndex, index),
				logging.Any("panic", r),
			)
		}
	}()

	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		result.ErrorKind = services.Kind(err)
		return result
	}

	run, err := c.run(services.WithItemIndex(ctx, index), index, item)
	if run != nil {
		result.RequestID = run.RequestID
		result.Tokens = run.Tokens
		result.DurationMs = run.Duration.Milliseconds()
		result.FailedStage = run.FailedStage
	}
	if err != nil {
		result.Error = err.Error()
		result.ErrorKind = services.Kind(err)
		return result
	}
	if run == nil {
		result.Error = "runner returned no run"
		result.ErrorKind = "internal"
		return result
	}
	result.Status = string(pipeline.StatusCompleted)
	result.Output = run.Output
	return result
}
