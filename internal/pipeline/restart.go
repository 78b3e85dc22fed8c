package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ForceRestart sweeps leads stuck mid-flight. Pause only stops new
// triggers, so a crashed worker leaves its lead parked in scraping or
// analyzing forever; this resets leads older than the stale window back to
// pending and re-queues them.
func (c *Controller) ForceRestart(ctx context.Context, runID string) error {
	cutoff := time.Now().UTC().Add(-c.cfg.StaleAfter)

	ids, err := c.store.ResetStaleLeads(ctx, runID, cutoff)
	if err != nil {
		return eris.Wrapf(err, "pipeline: reset stale leads %s", runID)
	}
	if len(ids) == 0 {
		zap.L().Info("force restart found no stale leads", zap.String("run_id", runID))
		return nil
	}

	sent, err := c.emitResearchBatches(ctx, runID, ids)
	if err != nil {
		return err
	}

	c.logProgress(ctx, runID, "run.force_restarted",
		fmt.Sprintf("reset and re-queued %d stale leads", sent),
		map[string]any{"requeued": sent})
	zap.L().Info("force restart",
		zap.String("run_id", runID),
		zap.Int("requeued", sent))
	return nil
}
