// Package generation exposes pipeline runs as a service.
//
// Service resolves a named pipeline from the catalog, records the run in the
// run store before the first stage and after the terminal event, and drives
// the orchestrator either synchronously (Generate), in the background
// (Start), or across many inputs (Batch). Background runs are bound to the
// service's lifetime context, never to the caller's, so a client that
// disconnects does not cancel the run.
package generation
