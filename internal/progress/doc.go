// Package progress implements the per-request progress channels that carry
// pipeline lifecycle events to live subscribers.
//
// A Registry is created by the daemon, started with a janitor context, and
// injected into both the orchestrator (publisher) and the SSE handler
// (subscriber). Channels appear on the first Subscribe or Publish for a
// request id. Every subscription starts with a synthetic connected event and
// then receives the ordered events published after it joined. Terminal events
// (completed, error) close all subscriptions and are retained so that a late
// subscriber still receives connected followed by the terminal event. Idle
// channels whose run never finished are torn down by the janitor.
//
// Each subscription buffers into an ordered queue. When the queue is full,
// step_chunk events are shed first; lifecycle events are never dropped.
package progress
