// Package classify scans an input root and assigns each media file a stable
// identity and kind. Scanning is a pure read with deterministic ordering so
// resume reconciliation is reproducible.
package classify
