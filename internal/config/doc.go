// Package config loads, normalizes, and validates storyloom configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// LLM_API_KEY, IMAGE_API_KEY, AUDIO_API_KEY and FORCE_EXECUTE. Environment
// variables are consulted only here, during Load; the rest of the program
// receives explicit values.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
