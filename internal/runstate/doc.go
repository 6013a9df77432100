// Package runstate is the durable state store for pipeline runs. It owns the
// RunManifest and ItemRecord model, the single atomic commit path every
// mutation flows through, the writer lock, and corruption recovery from the
// retained backup.
package runstate
