// Package monitor provides a read-only view of a running (or finished)
// pipeline. It polls the run directory's canonical manifest and emits
// consistent snapshots without ever taking a lock or blocking the writer.
package monitor
