// Package config loads, normalizes, and validates dreamloop configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and applies DREAMLOOP_* environment
// overrides on top. The Config type centralizes every knob the ingest loop,
// the frame server, and the CLI need, so the mailbox directories and the
// external transform command are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
