package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"scribe/internal/runstate"
	"scribe/internal/stats"
)

func progressRow(summary stats.Summary) []string {
	return []string{
		formatCount(summary.Total),
		formatCount(summary.Completed),
		formatCount(summary.Failed),
		formatCount(summary.Skipped),
		formatCount(summary.Remaining),
	}
}

var progressHeaders = []string{"Total", "Completed", "Failed", "Skipped", "Remaining"}

func stepRows(summary stats.Summary) [][]string {
	rows := make([][]string, 0, len(summary.Steps))
	for _, step := range summary.Steps {
		rows = append(rows, []string{
			step.Step,
			formatCount(step.Pending),
			formatCount(step.InProgress),
			formatCount(step.Completed),
			formatCount(step.Failed),
			formatCount(step.Skipped),
		})
	}
	return rows
}

var stepHeaders = []string{"Step", "Pending", "In Progress", "Completed", "Failed", "Skipped"}

func producerRows(summary stats.Summary) [][]string {
	rows := make([][]string, 0, len(summary.Producers))
	for _, producer := range summary.Producers {
		rows = append(rows, []string{
			producer.Producer,
			formatCount(producer.Results),
			formatCount(producer.Cached),
			formatDuration(producer.AvgDuration),
			formatDuration(producer.TotalDuration),
		})
	}
	return rows
}

var producerHeaders = []string{"Producer", "Results", "Cached", "Avg", "Total"}

func printRunHeader(out io.Writer, manifest runstate.RunManifest, summary stats.Summary, stale bool) {
	fmt.Fprintf(out, "Run %s\n", manifest.RunID)
	status := string(summary.Status)
	if stale {
		status += " (no live writer)"
	}
	fmt.Fprintf(out, "Status: %s\n", status)
	fmt.Fprintf(out, "Producer: %s\n", summary.Producer)
	fmt.Fprintf(out, "Input: %s\n", manifest.InputRoot)
	if summary.Elapsed > 0 {
		fmt.Fprintf(out, "Elapsed: %s\n", formatDuration(summary.Elapsed))
	}
	if summary.EstimatedRemaining > 0 {
		fmt.Fprintf(out, "ETA: %s\n", formatDuration(summary.EstimatedRemaining))
	}
}

func printWarnings(out io.Writer, manifest runstate.RunManifest) {
	if len(manifest.Warnings) == 0 {
		return
	}
	fmt.Fprintf(out, "\nWarnings (%d):\n", len(manifest.Warnings))
	for _, warning := range manifest.Warnings {
		fmt.Fprintf(out, "  - %s\n", warning)
	}
}

// failureRows lists terminally failed items with their last recorded error.
func failureRows(items []runstate.ItemRecord) [][]string {
	var rows [][]string
	for _, item := range items {
		if item.Status != runstate.ItemFailed {
			continue
		}
		message := ""
		if item.LastError != nil {
			message = item.LastError.Message
		}
		rows = append(rows, []string{
			filepath.Base(item.SourcePath),
			truncate(message, 80),
		})
	}
	return rows
}

var failureHeaders = []string{"Item", "Last Error"}

// recentResults returns the newest n results across all items, newest first.
func recentResults(items []runstate.ItemRecord, n int) [][]string {
	type produced struct {
		item  string
		entry runstate.ResultEntry
	}
	var all []produced
	for _, item := range items {
		for _, entry := range item.Results {
			all = append(all, produced{item: filepath.Base(item.SourcePath), entry: entry})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].entry.CreatedAt.After(all[j].entry.CreatedAt)
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}

	rows := make([][]string, 0, len(all))
	for _, p := range all {
		cached := ""
		if p.entry.Cached {
			cached = "cached"
		}
		rows = append(rows, []string{
			p.entry.CreatedAt.Local().Format(time.Kitchen),
			p.item,
			p.entry.Step,
			cached,
			truncate(p.entry.Payload, 60),
		})
	}
	return rows
}

var recentHeaders = []string{"Time", "Item", "Step", "", "Result"}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
