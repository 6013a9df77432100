// Package collab wraps the external tools the pipeline delegates to: frame
// extraction, image conversion, and AI description. Each collaborator is
// idempotent per item so an interrupted step can simply run again.
package collab
