package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/dispatch"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
)

// manualFailReasoning is attached when an operator forces a lead to F.
const manualFailReasoning = "Manually marked as not a fit by an operator."

// HandleResearch runs the lead state machine for one lead. The conditional
// pending → scraping claim at the top is the idempotency guard: redelivery
// of the same event, or a concurrent duplicate, loses the claim and returns
// without side effects. Scrape and analysis failures are terminal for the
// lead and recorded, never retried here.
func (c *Controller) HandleResearch(ctx context.Context, evt dispatch.Event) error {
	leadID := evt.LeadID

	claimed, err := c.store.ClaimLeadResearch(ctx, leadID, model.ResearchStatusPending, model.ResearchStatusScraping)
	if err != nil {
		return eris.Wrapf(err, "pipeline: claim lead %s", leadID)
	}
	if !claimed {
		zap.L().Debug("research event ignored, lead not pending",
			zap.String("lead_id", leadID))
		return nil
	}

	lead, err := c.store.GetLead(ctx, leadID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: load lead %s", leadID)
	}

	content, scrapeErr := c.scrapeLead(ctx, lead)
	if scrapeErr != nil {
		// An open breaker means the provider is down, not that this lead
		// is bad. Surface it so the dispatcher retries the event later.
		if errors.Is(scrapeErr, resilience.ErrCircuitOpen) {
			return scrapeErr
		}
		return c.failLead(ctx, lead, scrapeErr.Error())
	}

	// A stale-lead sweep may have reset the lead to pending while the
	// scrape ran. Losing this claim means another event now owns the lead.
	claimed, err = c.store.ClaimLeadResearch(ctx, leadID, model.ResearchStatusScraping, model.ResearchStatusAnalyzing)
	if err != nil {
		return eris.Wrapf(err, "pipeline: mark lead analyzing %s", leadID)
	}
	if !claimed {
		zap.L().Debug("research abandoned, lead no longer scraping",
			zap.String("lead_id", leadID))
		return nil
	}

	result, analyzeErr := resilience.ExecuteVal(ctx, c.breakers.Get("anthropic"),
		func(ctx context.Context) (*anthropic.GradeResult, error) {
			return c.analyzer.GradeLead(ctx, lead.Name, lead.Website, content)
		})
	if analyzeErr != nil {
		if errors.Is(analyzeErr, resilience.ErrCircuitOpen) {
			return analyzeErr
		}
		return c.failLead(ctx, lead, analyzeErr.Error())
	}

	if err := c.store.CompleteLeadResearch(ctx, store.ResearchCompletion{
		LeadID:    leadID,
		Grade:     model.Grade(result.Grade),
		Reasoning: result.Reasoning,
		Report:    result.Report,
	}); err != nil {
		return eris.Wrapf(err, "pipeline: complete lead %s", leadID)
	}

	// Email enrichment is best effort; a provider outage never fails the lead.
	if err := c.EnrichLeadEmails(ctx, lead); err != nil {
		zap.L().Warn("email enrichment failed",
			zap.String("lead_id", leadID),
			zap.Error(err))
	}

	zap.L().Info("lead researched",
		zap.String("run_id", lead.RunID),
		zap.String("lead_id", leadID),
		zap.String("grade", result.Grade))
	return c.afterLeadWrite(ctx, lead.RunID)
}

func (c *Controller) scrapeLead(ctx context.Context, lead *model.Lead) (string, error) {
	if lead.Website == "" {
		return "", eris.New("lead has no website to scrape")
	}
	content, err := resilience.ExecuteVal(ctx, c.breakers.Get("scrapingdog"),
		func(ctx context.Context) (string, error) {
			return c.scraper.Scrape(ctx, lead.Website)
		})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return "", err
		}
		return "", eris.Wrapf(err, "scrape %s", lead.Website)
	}
	return content, nil
}

// failLead records a terminal provider failure on the lead. Sibling leads
// and the run are unaffected.
func (c *Controller) failLead(ctx context.Context, lead *model.Lead, msg string) error {
	if err := c.store.FailLeadResearch(ctx, lead.ID, msg); err != nil {
		return eris.Wrapf(err, "pipeline: fail lead %s", lead.ID)
	}
	zap.L().Warn("lead research failed",
		zap.String("run_id", lead.RunID),
		zap.String("lead_id", lead.ID),
		zap.String("reason", msg))
	return c.afterLeadWrite(ctx, lead.RunID)
}

// afterLeadWrite recomputes run aggregates and checks for run completion
// after any lead state change.
func (c *Controller) afterLeadWrite(ctx context.Context, runID string) error {
	if err := c.Recompute(ctx, runID); err != nil {
		return err
	}
	return c.maybeCompleteRun(ctx, runID)
}

// HandleResearchAll fans out one research event per pending lead. Skipped
// leads are already terminal and never re-triggered.
func (c *Controller) HandleResearchAll(ctx context.Context, evt dispatch.Event) error {
	runID := evt.RunID

	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: load run %s", runID)
	}
	if run.IsPaused {
		zap.L().Info("research fan-out skipped, run paused", zap.String("run_id", runID))
		return nil
	}

	pending, err := c.store.ListLeadIDsByResearchStatus(ctx, runID, model.ResearchStatusPending)
	if err != nil {
		return eris.Wrapf(err, "pipeline: list pending leads %s", runID)
	}

	sent, err := c.emitResearchBatches(ctx, runID, pending)
	if err != nil {
		return err
	}
	zap.L().Info("research fan-out",
		zap.String("run_id", runID),
		zap.Int("events", sent))

	// A run whose every lead was skipped at prescreen has nothing to
	// research and completes immediately.
	if sent == 0 {
		return c.afterLeadWrite(ctx, runID)
	}
	return nil
}

// HandleDeepResearch produces a supplementary report for a lead that
// already completed research. The grade and completion state are left
// untouched.
func (c *Controller) HandleDeepResearch(ctx context.Context, evt dispatch.Event) error {
	leadID := evt.LeadID

	lead, err := c.store.GetLead(ctx, leadID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: load lead %s", leadID)
	}
	if lead.ResearchStatus != model.ResearchStatusCompleted {
		zap.L().Debug("deep research ignored, lead not completed",
			zap.String("lead_id", leadID),
			zap.String("status", string(lead.ResearchStatus)))
		return nil
	}

	content, err := c.scrapeLead(ctx, lead)
	if err != nil {
		zap.L().Warn("deep research scrape failed",
			zap.String("lead_id", leadID),
			zap.Error(err))
		return nil
	}

	report, err := resilience.ExecuteVal(ctx, c.breakers.Get("anthropic"),
		func(ctx context.Context) (string, error) {
			return c.analyzer.DeepResearch(ctx, lead.Name, content, lead.Report)
		})
	if err != nil {
		zap.L().Warn("deep research analysis failed",
			zap.String("lead_id", leadID),
			zap.Error(err))
		return nil
	}

	if err := c.store.SaveDeepReport(ctx, leadID, report); err != nil {
		return eris.Wrapf(err, "pipeline: save deep report %s", leadID)
	}
	zap.L().Info("deep research saved",
		zap.String("run_id", lead.RunID),
		zap.String("lead_id", leadID))
	return nil
}

// HandleDeepResearchMultiple fans out deep research over either an explicit
// lead list or all completed leads with a given grade.
func (c *Controller) HandleDeepResearchMultiple(ctx context.Context, evt dispatch.Event) error {
	runID := evt.RunID

	leadIDs := evt.Strings("leadIds")
	if len(leadIDs) == 0 {
		grade := model.Grade(evt.String("filterGrade"))
		if !model.ValidGrade(grade) {
			return policyErr("deep research fan-out: leadIds or a valid filterGrade required")
		}
		var err error
		leadIDs, err = c.store.ListLeadIDsByGrade(ctx, runID, grade)
		if err != nil {
			return eris.Wrapf(err, "pipeline: list leads by grade %s", runID)
		}
	}

	for _, id := range leadIDs {
		deep := dispatch.NewEvent(dispatch.EventDeepResearch, runID)
		deep.LeadID = id
		if err := c.dispatcher.Send(ctx, deep); err != nil {
			return eris.Wrapf(err, "pipeline: dispatch deep research for lead %s", id)
		}
	}
	zap.L().Info("deep research fan-out",
		zap.String("run_id", runID),
		zap.Int("events", len(leadIDs)))
	return nil
}

// OverrideGrade sets a lead's grade directly, bypassing the state machine.
// Forcing F attaches a fixed reasoning; research_status is never touched.
func (c *Controller) OverrideGrade(ctx context.Context, leadID string, grade model.Grade) error {
	if !model.ValidGrade(grade) {
		return policyErr("override grade: grade must be one of A, B, C, D, F")
	}

	lead, err := c.store.GetLead(ctx, leadID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: load lead %s", leadID)
	}

	reasoning := lead.GradeReasoning
	if grade == model.GradeF {
		reasoning = manualFailReasoning
	}
	if err := c.store.SetLeadGradeOverride(ctx, leadID, grade, reasoning); err != nil {
		return eris.Wrapf(err, "pipeline: override grade %s", leadID)
	}
	zap.L().Info("grade overridden",
		zap.String("lead_id", leadID),
		zap.String("grade", string(grade)))
	return c.Recompute(ctx, lead.RunID)
}
