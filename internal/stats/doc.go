// Package stats derives timing and throughput summaries from run snapshots.
// Everything here is a pure function over a consistent snapshot, safe against
// a read-mode store at any time, including mid-run.
package stats
