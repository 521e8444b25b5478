// Package main hosts the tailor CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP calls
// against tailord: synchronous and streaming generation, live progress
// watching, batches, and run lookups. Catalog inspection, prompt previews,
// provider checks, log reading, and configuration scaffolding work offline from the same
// configuration the daemon reads.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
