package stats

import (
	"sort"
	"time"

	"scribe/internal/runstate"
)

// StepCounts breaks one step's status distribution down across all items.
type StepCounts struct {
	Step       string
	Pending    int
	InProgress int
	Completed  int
	Failed     int
	Skipped    int
}

// ProducerSummary aggregates results by producer identity, which is what
// makes model/provider comparison across resume-with-override runs possible.
type ProducerSummary struct {
	Producer      string
	Results       int
	Cached        int
	TotalDuration time.Duration
	AvgDuration   time.Duration
}

// Summary is the aggregate view of one snapshot.
type Summary struct {
	RunID     string
	Status    runstate.RunStatus
	Producer  string
	Total     int
	Completed int
	Failed    int
	Skipped   int
	Remaining int
	Warnings  int

	Steps     []StepCounts
	Producers []ProducerSummary

	Elapsed            time.Duration
	ItemsPerSecond     float64
	EstimatedRemaining time.Duration
}

// Compute aggregates a snapshot. The step breakdown follows the manifest's
// step order; producers are sorted by identity for stable output.
func Compute(manifest runstate.RunManifest, items []runstate.ItemRecord, now time.Time) Summary {
	summary := Summary{
		RunID:    manifest.RunID,
		Status:   manifest.Status,
		Producer: manifest.Config.Producer(),
		Total:    len(items),
		Warnings: len(manifest.Warnings),
	}

	stepIndex := make(map[string]*StepCounts, len(manifest.Steps))
	summary.Steps = make([]StepCounts, len(manifest.Steps))
	for i, name := range manifest.Steps {
		summary.Steps[i] = StepCounts{Step: name}
		stepIndex[name] = &summary.Steps[i]
	}

	producers := make(map[string]*ProducerSummary)
	var completedDurations time.Duration
	completedWithDuration := 0

	for i := range items {
		item := &items[i]
		switch item.Status {
		case runstate.ItemCompleted:
			summary.Completed++
		case runstate.ItemFailed:
			summary.Failed++
		case runstate.ItemSkipped:
			summary.Skipped++
		default:
			summary.Remaining++
		}

		for step, status := range item.Steps {
			counts, ok := stepIndex[step]
			if !ok {
				continue
			}
			switch status {
			case runstate.StepPending:
				counts.Pending++
			case runstate.StepInProgress:
				counts.InProgress++
			case runstate.StepCompleted:
				counts.Completed++
			case runstate.StepFailed:
				counts.Failed++
			case runstate.StepSkipped:
				counts.Skipped++
			}
		}

		var itemDuration time.Duration
		for _, entry := range item.Results {
			itemDuration += entry.Duration
			p, ok := producers[entry.Producer]
			if !ok {
				p = &ProducerSummary{Producer: entry.Producer}
				producers[entry.Producer] = p
			}
			p.Results++
			if entry.Cached {
				p.Cached++
			}
			p.TotalDuration += entry.Duration
		}
		if item.Status == runstate.ItemCompleted && itemDuration > 0 {
			completedDurations += itemDuration
			completedWithDuration++
		}
	}

	summary.Producers = make([]ProducerSummary, 0, len(producers))
	for _, p := range producers {
		if p.Results > 0 {
			p.AvgDuration = p.TotalDuration / time.Duration(p.Results)
		}
		summary.Producers = append(summary.Producers, *p)
	}
	sort.Slice(summary.Producers, func(i, j int) bool {
		return summary.Producers[i].Producer < summary.Producers[j].Producer
	})

	end := now
	if manifest.Status != runstate.RunStatusRunning && manifest.UpdatedAt.After(manifest.CreatedAt) {
		end = manifest.UpdatedAt
	}
	if elapsed := end.Sub(manifest.CreatedAt); elapsed > 0 {
		summary.Elapsed = elapsed
		processed := summary.Completed + summary.Failed + summary.Skipped
		summary.ItemsPerSecond = float64(processed) / elapsed.Seconds()
	}
	if completedWithDuration > 0 && summary.Remaining > 0 {
		avg := completedDurations / time.Duration(completedWithDuration)
		summary.EstimatedRemaining = avg * time.Duration(summary.Remaining)
	}
	return summary
}
