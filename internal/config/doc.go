// Package config loads, normalizes, and validates tailor configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DEEPSEEK_API_KEY and OPENAI_API_KEY. The Config type centralizes every knob
// the daemon and CLI need, so provider credentials, batch limits, and progress
// channel timeouts are discovered in one pass.
//
// Missing provider credentials are deliberately not a validation error: the
// provider adapter reports them as configuration errors when a stage needs one.
package config
