package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/dispatch"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/scrapingdog"
)

// CreateRun persists a new run and emits the run.created event that starts
// scraping.
func (c *Controller) CreateRun(ctx context.Context, userID string, queries []model.SearchQuery, targetCount int) (*model.Run, error) {
	if len(queries) == 0 {
		return nil, policyErr("create run: at least one search query required")
	}
	if targetCount <= 0 {
		return nil, policyErr("create run: target count must be positive")
	}

	run, err := c.store.CreateRun(ctx, userID, queries, targetCount)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	evt := dispatch.NewEvent(dispatch.EventRunCreated, run.ID)
	evt.UserID = userID
	if err := c.dispatcher.Send(ctx, evt); err != nil {
		return nil, eris.Wrap(err, "pipeline: dispatch run.created")
	}

	zap.L().Info("run created",
		zap.String("run_id", run.ID),
		zap.String("user_id", userID),
		zap.Int("target_count", targetCount),
		zap.Int("queries", len(queries)))
	return run, nil
}

// HandleRunCreated scrapes discovery results into leads and hands the run
// to the prescreen gate. A run with zero discovered leads fails; a single
// bad query does not.
func (c *Controller) HandleRunCreated(ctx context.Context, evt dispatch.Event) error {
	runID := evt.RunID

	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: load run %s", runID)
	}

	// The pending → scraping claim is the idempotency guard: a redelivered
	// or concurrent duplicate of the same event loses it and inserts nothing.
	claimed, err := c.store.CompareAndSetRunStatus(ctx, runID, model.RunStatusPending, model.RunStatusScraping)
	if err != nil {
		return eris.Wrapf(err, "pipeline: mark run scraping %s", runID)
	}
	if !claimed {
		zap.L().Debug("ignoring redelivered run.created",
			zap.String("run_id", runID),
			zap.String("status", string(run.Status)))
		return nil
	}
	c.logProgress(ctx, runID, "run.scraping", "discovery scrape started", nil)

	var leads []model.Lead
	seen := make(map[string]bool)
	for _, q := range run.Queries {
		query := fmt.Sprintf("%s in %s", q.BusinessType, q.Location)
		found, err := c.scrapeQuery(ctx, runID, query, run.TargetCount-len(leads), seen)
		if err != nil {
			// One query failing must not sink the batch.
			zap.L().Warn("discovery query failed",
				zap.String("run_id", runID),
				zap.String("query", query),
				zap.Error(err))
			continue
		}
		leads = append(leads, found...)
		if len(leads) >= run.TargetCount {
			break
		}
	}

	if len(leads) == 0 {
		if err := c.store.FailRun(ctx, runID, "discovery produced no leads"); err != nil {
			return eris.Wrapf(err, "pipeline: fail run %s", runID)
		}
		c.logProgress(ctx, runID, "run.failed", "discovery produced no leads", nil)
		return nil
	}

	n, err := c.store.BulkInsertLeads(ctx, leads)
	if err != nil {
		return eris.Wrapf(err, "pipeline: insert leads for run %s", runID)
	}

	if err := c.store.UpdateRunStatus(ctx, runID, model.RunStatusPrescreening); err != nil {
		return eris.Wrapf(err, "pipeline: mark run prescreening %s", runID)
	}
	c.logProgress(ctx, runID, "run.scraped", fmt.Sprintf("discovered %d leads", n),
		map[string]any{"lead_count": n})

	prescreen := dispatch.NewEvent(dispatch.EventPrescreenTriggered, runID)
	prescreen.Payload = map[string]any{"businessType": run.Queries[0].BusinessType}
	if err := c.dispatcher.Send(ctx, prescreen); err != nil {
		return eris.Wrapf(err, "pipeline: dispatch prescreen for run %s", runID)
	}

	zap.L().Info("run scraped",
		zap.String("run_id", runID),
		zap.Int64("leads", n))
	return nil
}

// scrapeQuery pages through maps results for one query until the remaining
// target is met or results run out.
func (c *Controller) scrapeQuery(ctx context.Context, runID, query string, remaining int, seen map[string]bool) ([]model.Lead, error) {
	if remaining <= 0 {
		return nil, nil
	}

	var leads []model.Lead
	for page := 0; page < c.cfg.MaxSearchPages && len(leads) < remaining; page++ {
		resp, err := resilience.ExecuteVal(ctx, c.breakers.Get("scrapingdog"),
			func(ctx context.Context) (*scrapingdog.MapsResponse, error) {
				return c.scraper.SearchMaps(ctx, query, page)
			})
		if err != nil {
			return leads, err
		}
		if len(resp.Results) == 0 {
			break
		}
		for _, r := range resp.Results {
			if r.Title == "" {
				continue
			}
			key := r.Title + "|" + r.Address
			if seen[key] {
				continue
			}
			seen[key] = true
			leads = append(leads, model.Lead{
				RunID:     runID,
				Name:      r.Title,
				Address:   r.Address,
				Phone:     r.Phone,
				Website:   r.Website,
				Latitude:  r.Coordinates.Latitude,
				Longitude: r.Coordinates.Longitude,
			})
			if len(leads) >= remaining {
				break
			}
		}
	}
	return leads, nil
}

// StartResearch moves a ready run into researching and fans out research
// events. Rejected unless the run finished prescreening.
func (c *Controller) StartResearch(ctx context.Context, runID string) error {
	ok, err := c.store.CompareAndSetRunStatus(ctx, runID, model.RunStatusReady, model.RunStatusResearching)
	if err != nil {
		return eris.Wrapf(err, "pipeline: start research %s", runID)
	}
	if !ok {
		return policyErr("start research: run is not ready")
	}
	c.logProgress(ctx, runID, "run.researching", "research started", nil)

	return c.dispatcher.Send(ctx, dispatch.NewEvent(dispatch.EventResearchAllTriggered, runID))
}

// Pause stops new research triggers for a run. Allowed only while the run
// is researching and not already paused; leads already in flight finish
// normally.
func (c *Controller) Pause(ctx context.Context, runID string) error {
	ok, err := c.store.PauseRun(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: pause run %s", runID)
	}
	if !ok {
		return policyErr("pause: run is not researching or is already paused")
	}
	c.logProgress(ctx, runID, "run.paused", "run paused", nil)
	zap.L().Info("run paused", zap.String("run_id", runID))
	return nil
}

// Resume clears the pause flag and re-queues exactly the leads still
// pending, in batches to bound the event burst.
func (c *Controller) Resume(ctx context.Context, runID string) error {
	ok, err := c.store.ResumeRun(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: resume run %s", runID)
	}
	if !ok {
		return policyErr("resume: run is not paused")
	}

	pending, err := c.store.ListLeadIDsByResearchStatus(ctx, runID, model.ResearchStatusPending)
	if err != nil {
		return eris.Wrapf(err, "pipeline: list pending leads for run %s", runID)
	}

	requeued, err := c.emitResearchBatches(ctx, runID, pending)
	if err != nil {
		return err
	}

	c.logProgress(ctx, runID, "run.resumed", fmt.Sprintf("resumed, re-queued %d leads", requeued),
		map[string]any{"requeued": requeued})
	zap.L().Info("run resumed",
		zap.String("run_id", runID),
		zap.Int("requeued", requeued))
	return nil
}

// emitResearchBatches sends one research event per lead, chunked by the
// resume batch size. The pause flag is re-read at every chunk boundary, so
// a pause landing mid-fan-out stops the burst within one batch.
func (c *Controller) emitResearchBatches(ctx context.Context, runID string, leadIDs []string) (int, error) {
	sent := 0
	for start := 0; start < len(leadIDs); start += c.cfg.ResumeBatchSize {
		if start > 0 {
			run, err := c.store.GetRun(ctx, runID)
			if err != nil {
				return sent, eris.Wrapf(err, "pipeline: load run %s", runID)
			}
			if run.IsPaused {
				zap.L().Info("research fan-out stopped, run paused",
					zap.String("run_id", runID),
					zap.Int("sent", sent),
					zap.Int("remaining", len(leadIDs)-sent))
				break
			}
		}
		end := start + c.cfg.ResumeBatchSize
		if end > len(leadIDs) {
			end = len(leadIDs)
		}
		for _, id := range leadIDs[start:end] {
			evt := dispatch.NewEvent(dispatch.EventResearchTriggered, runID)
			evt.LeadID = id
			if err := c.dispatcher.Send(ctx, evt); err != nil {
				return sent, eris.Wrapf(err, "pipeline: dispatch research for lead %s", id)
			}
			sent++
		}
	}
	return sent, nil
}

// RestartPrescreen re-emits the prescreen event so leads the gate never
// reached get classified.
func (c *Controller) RestartPrescreen(ctx context.Context, runID string) error {
	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: load run %s", runID)
	}

	evt := dispatch.NewEvent(dispatch.EventPrescreenTriggered, runID)
	if len(run.Queries) > 0 {
		evt.Payload = map[string]any{"businessType": run.Queries[0].BusinessType}
	}
	if err := c.dispatcher.Send(ctx, evt); err != nil {
		return eris.Wrapf(err, "pipeline: dispatch prescreen restart for run %s", runID)
	}
	c.logProgress(ctx, runID, "run.prescreen_restarted", "prescreen re-triggered", nil)
	return nil
}

// MarkComplete force-completes a run regardless of lead states.
func (c *Controller) MarkComplete(ctx context.Context, runID string) error {
	if err := c.store.MarkRunCompleted(ctx, runID); err != nil {
		return eris.Wrapf(err, "pipeline: mark complete %s", runID)
	}
	c.logProgress(ctx, runID, "run.completed", "run force-completed", nil)
	return nil
}

// ClearResearch wipes every lead's derived research fields back to pending
// and resets the run to ready with zeroed counters, so the batch can be
// fully redone. Skipped leads stay skipped.
func (c *Controller) ClearResearch(ctx context.Context, runID string) error {
	n, err := c.store.ResetLeadResearch(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: clear research %s", runID)
	}
	if err := c.store.ResetRunForRedo(ctx, runID); err != nil {
		return eris.Wrapf(err, "pipeline: reset run %s", runID)
	}
	c.logProgress(ctx, runID, "run.research_cleared", fmt.Sprintf("cleared research on %d leads", n),
		map[string]any{"reset": n})
	zap.L().Info("run research cleared",
		zap.String("run_id", runID),
		zap.Int64("reset", n))
	return nil
}

// ResetPrescreen wipes prescreen classifications, and with them every
// derived research field, then re-runs the gate. A lead only carries a
// grade while completed, so returning leads to pending must drop their
// grades and reports too.
func (c *Controller) ResetPrescreen(ctx context.Context, runID string) error {
	n, err := c.store.ResetLeadPrescreen(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: reset prescreen %s", runID)
	}
	if err := c.store.UpdateRunStatus(ctx, runID, model.RunStatusPrescreening); err != nil {
		return eris.Wrapf(err, "pipeline: mark run prescreening %s", runID)
	}
	if err := c.Recompute(ctx, runID); err != nil {
		return err
	}
	c.logProgress(ctx, runID, "run.prescreen_reset", fmt.Sprintf("reset prescreen on %d leads", n),
		map[string]any{"reset": n})
	return c.RestartPrescreen(ctx, runID)
}

// maybeCompleteRun transitions researching → completed once every lead is
// terminal. Safe to call concurrently; the CAS makes the transition fire
// once.
func (c *Controller) maybeCompleteRun(ctx context.Context, runID string) error {
	total, err := c.store.CountLeads(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: count leads %s", runID)
	}
	if total == 0 {
		return nil
	}
	terminal, err := c.store.CountTerminalLeads(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: count terminal leads %s", runID)
	}
	if terminal < total {
		return nil
	}

	ok, err := c.store.CompleteRun(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: complete run %s", runID)
	}
	if ok {
		c.logProgress(ctx, runID, "run.completed", "all leads terminal", nil)
		zap.L().Info("run completed", zap.String("run_id", runID))
	}
	return nil
}

// logProgress appends to the run's audit trail. Audit failures are logged,
// never propagated.
func (c *Controller) logProgress(ctx context.Context, runID, eventType, message string, details map[string]any) {
	err := c.store.AppendProgressLog(ctx, model.ProgressLogEntry{
		RunID:     runID,
		EventType: eventType,
		Message:   message,
		Details:   details,
	})
	if err != nil {
		zap.L().Warn("progress log append failed",
			zap.String("run_id", runID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
