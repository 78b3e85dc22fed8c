package pipeline

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Recompute refreshes a run's derived counters from its leads' current
// states. Idempotent and safe to run concurrently for the same run; the
// aggregate row is purely derived, so last write wins.
func (c *Controller) Recompute(ctx context.Context, runID string) error {
	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: load run %s", runID)
	}

	counts, err := c.store.CountLeadsByGrade(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: count grades %s", runID)
	}

	terminal, err := c.store.CountTerminalLeads(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: count terminal leads %s", runID)
	}

	// Progress is measured against the requested batch size, not the
	// discovered lead count.
	denominator := run.TargetCount
	if denominator <= 0 {
		denominator, err = c.store.CountLeads(ctx, runID)
		if err != nil {
			return eris.Wrapf(err, "pipeline: count leads %s", runID)
		}
	}

	progress := 0
	if denominator > 0 {
		progress = int(math.Round(100 * float64(terminal) / float64(denominator)))
		if progress > 100 {
			progress = 100
		}
	}

	if err := c.store.UpdateRunAggregates(ctx, runID, counts, progress); err != nil {
		return eris.Wrapf(err, "pipeline: update aggregates %s", runID)
	}
	return nil
}

// GradeCountsOf is a convenience for callers that want current counts
// without writing them back.
func (c *Controller) GradeCountsOf(ctx context.Context, runID string) (model.GradeCounts, error) {
	counts, err := c.store.CountLeadsByGrade(ctx, runID)
	return counts, eris.Wrapf(err, "pipeline: count grades %s", runID)
}
