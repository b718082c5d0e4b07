// Package config loads, normalizes, and validates Verdandi configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VERDANDI_DATABASE_URL. The Config type centralizes every knob the worker and
// CLI need: store location, retry and breaker budgets, reservation TTLs, gate
// thresholds, and archive targets are all discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
