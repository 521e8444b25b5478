// Package api defines wire-format types, converters, and the HTTP client for
// the tailord API. It translates orchestrator runs, run records, and catalog
// definitions into transport-friendly DTOs so the CLI and other consumers do
// not couple to internal types.
//
// # Key Types
//
// GenerateRequest/RunResponse: the POST /generate body and its synchronous
// result. StreamAccepted is returned instead when the caller asks to stream.
//
// BatchRequest: the POST /batch body. The response is batch.Result as-is.
//
// PipelineSummary: catalog listing entry with inputs and stage dependencies.
//
// DaemonStatus: lock, database, provider, and progress channel state.
//
// # Progress Frames
//
// WriteEvent encodes one progress event as a "data: <json>" frame and
// DecodeEvents reads them back as an iterator. Both ends of GET
// /progress/{requestId} use them.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Error responses carry the error kind reported
// by services.Kind so clients can branch without parsing messages. Timestamps
// use RFC3339 with milliseconds.
package api
