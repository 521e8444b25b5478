package batch_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tailor/internal/batch"
	"tailor/internal/pipeline"
	"tailor/internal/services"
	"tailor/internal/services/llm"
)

func completedRun(id string, output map[string]any) *pipeline.Run {
	return &pipeline.Run{
		RequestID: id,
		Status:    pipeline.StatusCompleted,
		Output:    output,
		Tokens:    llm.Tokens{Prompt: 4, Completion: 2, Total: 6},
		Duration:  10 * time.Millisecond,
	}
}

func TestRunIsolatesItemFailures(t *testing.T) {
	runner := func(_ context.Context, index int, item batch.Item) (*pipeline.Run, error) {
		if index == 1 {
			err := services.Wrap(services.ErrTransport, "keywords", "invoke", "all providers failed", nil)
			return &pipeline.Run{RequestID: "item-1", Status: pipeline.StatusError, FailedStage: "keywords", Err: err}, err
		}
		return completedRun(fmt.Sprintf("item-%d", index), map[string]any{"keywords": item.Inputs["text"]}), nil
	}
	coord := batch.New(runner, func(int) int { return 1 }, nil)

	items := []batch.Item{
		{Inputs: map[string]any{"text": "a"}},
		{Inputs: map[string]any{"text": "b"}},
		{Inputs: map[string]any{"text": "c"}},
	}
	result := coord.Run(context.Background(), "batch-1", items, 0)

	require.Len(t, result.Items, 3)
	assert.Equal(t, batch.Summary{
		Total:      3,
		Succeeded:  2,
		Failed:     1,
		Tokens:     llm.Tokens{Prompt: 8, Completion: 4, Total: 12},
		DurationMs: result.Summary.DurationMs,
	}, result.Summary)
	assert.Equal(t, result.Summary.Total, result.Summary.Succeeded+result.Summary.Failed)

	assert.Equal(t, "completed", result.Items[0].Status)
	assert.Equal(t, "a", result.Items[0].Output["keywords"])
	assert.Equal(t, "error", result.Items[1].Status)
	assert.Equal(t, "transport", result.Items[1].ErrorKind)
	assert.Equal(t, "keywords", result.Items[1].FailedStage)
	assert.Nil(t, result.Items[1].Output)
	assert.Equal(t, "c", result.Items[2].Output["keywords"])
	for i, item := range result.Items {
		assert.Equal(t, i, item.Index)
	}
}

func TestRunHonoursConcurrencyLimit(t *testing.T) {
	var active, peak atomic.Int32
	runner := func(ctx context.Context, index int, _ batch.Item) (*pipeline.Run, error) {
		current := active.Add(1)
		for {
			prev := peak.Load()
			if current <= prev || peak.CompareAndSwap(prev, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		got, ok := services.ItemIndexFromContext(ctx)
		if !ok || got != index {
			return nil, errors.New("item index missing from context")
		}
		return completedRun(fmt.Sprint(index), map[string]any{}), nil
	}
	var hintSeen int
	coord := batch.New(runner, func(hint int) int {
		hintSeen = hint
		return 2
	}, nil)

	items := make([]batch.Item, 6)
	result := coord.Run(context.Background(), "", items, 9)

	assert.Equal(t, 9, hintSeen)
	assert.Equal(t, 6, result.Summary.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestRunRecoversPanickingItem(t *testing.T) {
	runner := func(_ context.Context, index int, _ batch.Item) (*pipeline.Run, error) {
		if index == 0 {
			panic("boom")
		}
		return completedRun("ok", map[string]any{}), nil
	}
	result := batch.New(runner, nil, nil).Run(context.Background(), "", make([]batch.Item, 2), 0)

	assert.Equal(t, 1, result.Summary.Failed)
	assert.Equal(t, "internal", result.Items[0].ErrorKind)
	assert.Equal(t, "completed", result.Items[1].Status)
}

func TestRunReportsCancelledItemsAsFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	runner := func(context.Context, int, batch.Item) (*pipeline.Run, error) {
		calls.Add(1)
		return completedRun("x", nil), nil
	}
	result := batch.New(runner, nil, nil).Run(ctx, "", make([]batch.Item, 3), 0)

	assert.Zero(t, calls.Load())
	assert.Equal(t, 3, result.Summary.Failed)
	assert.Len(t, result.Items, 3)
}

func TestRunEmptyBatch(t *testing.T) {
	result := batch.New(nil, nil, nil).Run(context.Background(), "", nil, 0)
	assert.Equal(t, 0, result.Summary.Total)
	assert.Empty(t, result.Items)
}
