// Package services defines shared utilities consumed by the pipeline stages
// and provider integrations.
//
// Key responsibilities:
//   - Context helpers that stamp request IDs, stage names, and batch item
//     indexes for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures into
//     the categories surfaced on progress events and API responses.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
