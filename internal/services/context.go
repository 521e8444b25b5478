package services

import "context"

type contextKey uint8

const (
	requestIDKey contextKey = iota
	pipelineKey
	stageKey
	itemIndexKey
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// WithRequestID tags ctx with the generation request it serves.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}

// WithPipeline tags ctx with the pipeline definition being executed.
func WithPipeline(ctx context.Context, name string) context.Context {
	return withString(ctx, pipelineKey, name)
}

func PipelineFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, pipelineKey)
}

// WithStage tags ctx with the stage currently running.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey)
}

// WithItemIndex tags ctx with a zero-based batch item position. Negative
// indexes are ignored.
func WithItemIndex(ctx context.Context, index int) context.Context {
	if index < 0 {
		return ctx
	}
	return context.WithValue(ctx, itemIndexKey, index)
}

func ItemIndexFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(itemIndexKey).(int)
	return v, ok
}
