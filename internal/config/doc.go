// Package config loads, normalizes, and validates sage configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a dotenv file, overlays rate budgets
// from an optional rate_limits.yaml, and honours environment fallbacks such as
// OPENROUTER_API_KEY and OPENAI_API_KEY. The Config type centralizes every knob
// the engine and CLI need.
//
// Configuration is read once at process start and never mutated afterwards.
package config
