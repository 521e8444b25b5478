// Package batch runs many independent pipeline requests with bounded
// concurrency.
//
// Each item gets its own orchestrator run through the injected Runner. Item
// failures are recorded on the item's result and never cancel siblings, so a
// batch always yields exactly one result per input, in input order.
package batch
