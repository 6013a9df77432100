// Package steps defines the closed, ordered registry of pipeline steps and
// the applicability rules that drive each item through them.
package steps
