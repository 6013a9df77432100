// Package config loads, normalizes, and validates scribe's TOML configuration.
package config
