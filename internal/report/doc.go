// Package report renders the final HTML report from a run snapshot. It is a
// pure formatting step over durable state and can be re-run at any time,
// including against a still-running pipeline opened in read mode.
package report
