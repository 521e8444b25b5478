// Package pipeline drives one multi-stage generation run.
//
// An Orchestrator executes a Request's stages strictly in order. For each
// stage it emits step_start, resolves the prompt bindings from the run's
// cumulative context, renders the template, invokes the provider adapter
// (streaming only while someone is subscribed to the request), parses the
// output into the stage's Shape, and merges the parsed value into the context
// under the stage name before emitting step_complete. The first failure halts
// the run: later stages stay pending, a terminal error event is published,
// and the accumulated context is dropped so nothing downstream observes a
// partial pipeline.
//
// Stage dependencies are inferred from placeholders whose path starts with
// another stage's name (for example {classifier.role_type}). ValidateStages
// checks them against declaration order with a dependency graph before a
// run starts; the orchestrator re-checks at runtime.
package pipeline
