// Package config loads, normalizes, and validates omrbook configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// book engine and CLI need: step timeouts and parallelism, the binarization
// filter and smoothing radii of the derived-image cache, backup policy, and
// logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
