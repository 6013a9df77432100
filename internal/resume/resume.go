package resume

import (
	"log/slog"

	"scribe/internal/logging"
	"scribe/internal/runstate"
	"scribe/internal/steps"
)

// Plan is the reconciled work list for one executor pass. Work holds item IDs
// in classifier order; Exhausted holds items whose retry budget is spent.
type Plan struct {
	Work       []string
	Exhausted  []string
	Completed  int
	ResetSteps int
	Requeued   int
}

// Reconcile inspects every item record and computes the safe restart
// frontier in one atomic commit:
//
//   - steps left in_progress by a dead writer are reset to pending; the work
//     they may have done is never trusted as complete
//   - completed and skipped steps are excluded from the work list
//   - failed steps are re-queued while their retry budget lasts; beyond it
//     the item is terminally failed
//   - with a non-nil override config, completed describe steps whose results
//     carry no entry from the new producer identity are re-queued, keeping
//     all prior results for comparison
//
// The manifest status is set back to running, ready for the executor.
func Reconcile(store *runstate.Store, registry *steps.Registry, override *runstate.RunConfig, logger *slog.Logger) (Plan, error) {
	log := logging.NewComponentLogger(logger, "resume")

	var plan Plan
	err := store.CommitRun(func(m *runstate.RunManifest) error {
		plan = Plan{}
		if override != nil {
			m.Config = *override
		}
		m.Status = runstate.RunStatusRunning
		producer := m.Config.Producer()

		for _, item := range m.Items {
			if step, ok := item.InFlightStep(); ok {
				if err := item.Transition(step, runstate.StepPending); err != nil {
					return err
				}
				if item.Status == runstate.ItemWorking {
					item.Status = runstate.ItemPending
				}
				plan.ResetSteps++
			}

			if override != nil &&
				item.StepStatus(steps.Describe) == runstate.StepCompleted &&
				!item.HasResultFrom(steps.Describe, producer) {
				item.Requeue(steps.Describe)
				plan.Requeued++
			}

			step, ok := registry.NextApplicableStep(item)
			if !ok {
				// Nothing applies, so settle the item-level status; this is
				// where unsupported files become skipped.
				if item.Status == runstate.ItemPending || item.Status == runstate.ItemWorking {
					item.Status = registry.FinalStatus(item)
				}
				if item.Status == runstate.ItemCompleted {
					plan.Completed++
				}
				continue
			}
			if item.StepStatus(step) == runstate.StepFailed && item.RetryCount(step) >= m.RetryLimit {
				item.Status = runstate.ItemFailed
				plan.Exhausted = append(plan.Exhausted, item.ID)
				continue
			}
			plan.Work = append(plan.Work, item.ID)
		}
		return nil
	})
	if err != nil {
		return Plan{}, err
	}

	log.Info("run reconciled",
		logging.String(logging.FieldEventType, "resume_reconciled"),
		logging.Int("work", len(plan.Work)),
		logging.Int("completed", plan.Completed),
		logging.Int("exhausted", len(plan.Exhausted)),
		logging.Int("reset_steps", plan.ResetSteps),
		logging.Int("requeued", plan.Requeued))
	return plan, nil
}
