// Package tracker folds progress events into per-stage client state.
//
// A Tracker changes only in response to events. Stages move pending ->
// running -> completed or error; chunks are appended while a stage runs and
// are replaced by the parsed output on step_complete. Events that arrive for
// a stage that already finished, or after the run finished, are ignored.
package tracker
