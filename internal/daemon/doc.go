// Package daemon coordinates the long-running tailord process.
//
// It wires configuration, the run store, and the generation service into a
// single lifecycle with flock-based locking to prevent multiple instances, and
// serves the HTTP API: synchronous and streaming generation, server-sent
// progress events, batches, run records, the pipeline catalog, and status.
//
// Keep orchestration logic here: pipeline execution lives in the pipeline and
// generation packages while the daemon focuses on startup, shutdown, and
// transport.
package daemon
