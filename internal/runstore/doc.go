// Package runstore persists generation run records in SQLite.
//
// The store is touched twice per run: Begin records the request as running
// before the first stage starts, and Finish records the final output or
// error after the terminal event. Nothing is written while stages execute.
// Records left in the running state by a crashed daemon are marked failed by
// ResetInterrupted on startup.
package runstore
