// Package logging provides slog construction and shared structured field
// conventions for the scribe pipeline.
package logging
