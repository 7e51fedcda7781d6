package workflow

import (
	"context"
	"fmt"

	"github.com/dukex/flowstate/pkg/models"
)

// checkCompletion recomputes the instance status after a cascade. With no
// unfinished node-state the instance completes; with only pending or waiting
// ones it moves from active to waiting. It never moves waiting back to active.
func (e *Engine) checkCompletion(ctx context.Context, w *unit) error {
	if w.instance.Status == models.InstanceStatusCompleted {
		return nil
	}

	counts, err := w.tx.NodeStates().Counts(ctx, w.instance.ID)
	if err != nil {
		return fmt.Errorf("failed to count node states: %w", err)
	}

	if counts.Unfinished == 0 {
		return e.finish(ctx, w)
	}

	if counts.Active > 0 {
		return nil
	}

	changed, err := w.tx.Instances().Transition(ctx, w.instance.ID, models.InstanceStatusWaiting, nil, models.InstanceStatusActive)
	if err != nil {
		return err
	}

	if changed {
		w.instance.Status = models.InstanceStatusWaiting

		e.logger.DebugContext(ctx, "Workflow instance waiting", "instance_id", w.instance.ID)
	}

	return nil
}
