// Package logging configures tailor's structured slog loggers.
//
// The console handler lifts component, pipeline, stage, and request id into
// a readable prefix and clips long values. The JSON handler keeps every
// value intact for tailor.log. Both mask attributes such as api_key.
package logging
