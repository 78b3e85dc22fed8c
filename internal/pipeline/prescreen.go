package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgen-cli/internal/dispatch"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
)

// HandlePrescreen classifies every un-prescreened lead of the run as
// research or skip. Each lead is its own unit of work: one classification
// failing leaves the rest untouched and the lead un-prescreened, so a
// restart-prescreen picks it up again. Once every lead is prescreened the
// run moves to ready.
func (c *Controller) HandlePrescreen(ctx context.Context, evt dispatch.Event) error {
	runID := evt.RunID
	businessType := evt.String("businessType")

	leads, err := c.store.ListUnprescreenedLeads(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: list unprescreened leads %s", runID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.PrescreenConcurrency)
	for _, lead := range leads {
		g.Go(func() error {
			c.prescreenLead(gctx, lead, businessType)
			return nil
		})
	}
	g.Wait()

	// Skip classifications are terminal lead writes; progress must reflect
	// them before research ever starts.
	if err := c.Recompute(ctx, runID); err != nil {
		return err
	}

	remaining, err := c.store.CountUnprescreened(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: count unprescreened %s", runID)
	}
	if remaining > 0 {
		zap.L().Info("prescreen pass incomplete",
			zap.String("run_id", runID),
			zap.Int("remaining", remaining))
		return nil
	}

	ok, err := c.store.CompareAndSetRunStatus(ctx, runID, model.RunStatusPrescreening, model.RunStatusReady)
	if err != nil {
		return eris.Wrapf(err, "pipeline: mark run ready %s", runID)
	}
	if ok {
		c.logProgress(ctx, runID, "run.ready", "all leads prescreened", nil)
		zap.L().Info("run ready for research", zap.String("run_id", runID))
	}
	return nil
}

func (c *Controller) prescreenLead(ctx context.Context, lead model.Lead, businessType string) {
	result, err := resilience.ExecuteVal(ctx, c.breakers.Get("anthropic"),
		func(ctx context.Context) (*anthropic.PrescreenResult, error) {
			return c.analyzer.PrescreenLead(ctx, lead.Name, lead.Website, businessType)
		})
	if err != nil {
		zap.L().Warn("prescreen classification failed",
			zap.String("run_id", lead.RunID),
			zap.String("lead_id", lead.ID),
			zap.String("name", lead.Name),
			zap.Error(err))
		return
	}

	update := store.PrescreenUpdate{
		LeadID:          lead.ID,
		Result:          model.PrescreenResult(result.Result),
		Reason:          result.Reason,
		IsFranchise:     result.IsFranchise,
		IsNationalBrand: result.IsNationalBrand,
		Confidence:      model.PrescreenConfidence(result.Confidence),
	}
	if err := c.store.SavePrescreen(ctx, update); err != nil {
		zap.L().Warn("prescreen save failed",
			zap.String("lead_id", lead.ID),
			zap.Error(err))
		return
	}

	zap.L().Debug("lead prescreened",
		zap.String("lead_id", lead.ID),
		zap.String("result", result.Result),
		zap.String("confidence", result.Confidence))
}
