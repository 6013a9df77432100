// Package executor drives classified items through the pipeline step state
// machine, invoking external collaborators and committing every transition
// durably through the run state store.
package executor
