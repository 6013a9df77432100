// Package resume reconciles a run directory after an interrupted or
// completed run so the executor can pick up exactly where the last durable
// commit left off.
package resume
