package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/dispatch"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
	"github.com/sells-group/leadgen-cli/pkg/hunter"
)

func researchEvent(runID, leadID string) dispatch.Event {
	evt := dispatch.NewEvent(dispatch.EventResearchTriggered, runID)
	evt.LeadID = leadID
	return evt
}

func TestHandleResearch_CompletesLead(t *testing.T) {
	tc := newTestController()
	run, ids := tc.seedRun(model.RunStatusResearching, 1, model.ResearchStatusPending)

	lead, _ := tc.store.GetLead(context.Background(), ids[0])
	tc.scraper.content[lead.Website] = "<html>family owned</html>"
	tc.analyzer.grades[lead.Name] = &anthropic.GradeResult{
		Grade: "A", Reasoning: "great fit", Report: "full report",
	}

	err := tc.ctrl.HandleResearch(context.Background(), researchEvent(run.ID, ids[0]))
	require.NoError(t, err)

	got, _ := tc.store.GetLead(context.Background(), ids[0])
	assert.Equal(t, model.ResearchStatusCompleted, got.ResearchStatus)
	assert.Equal(t, model.GradeA, got.CompatibilityGrade)
	assert.Equal(t, "full report", got.Report)
	assert.NotNil(t, got.ResearchedAt)

	// Only lead terminal, so the run completes and aggregates refresh.
	gotRun, _ := tc.store.GetRun(context.Background(), run.ID)
	assert.Equal(t, model.RunStatusCompleted, gotRun.Status)
	assert.Equal(t, 1, gotRun.GradeACount)
	assert.Equal(t, 100, gotRun.Progress)
}

func TestHandleResearch_IdempotentOnRedelivery(t *testing.T) {
	tc := newTestController()
	run, ids := tc.seedRun(model.RunStatusResearching, 2,
		model.ResearchStatusPending, model.ResearchStatusPending)

	lead, _ := tc.store.GetLead(context.Background(), ids[0])
	tc.scraper.content[lead.Website] = "content"

	require.NoError(t, tc.ctrl.HandleResearch(context.Background(), researchEvent(run.ID, ids[0])))
	first, _ := tc.store.GetLead(context.Background(), ids[0])

	// Redelivery: no field changes, no extra provider calls.
	require.NoError(t, tc.ctrl.HandleResearch(context.Background(), researchEvent(run.ID, ids[0])))
	second, _ := tc.store.GetLead(context.Background(), ids[0])

	assert.Equal(t, first, second)
	assert.Equal(t, 1, tc.scraper.scrapeHits[lead.Website])
	assert.Equal(t, 1, tc.analyzer.calls["grade:"+lead.Name])
}

func TestHandleResearch_SweptLeadAbandonsMidFlight(t *testing.T) {
	tc := newTestController()
	run, ids := tc.seedRun(model.RunStatusResearching, 1, model.ResearchStatusPending)

	lead, _ := tc.store.GetLead(context.Background(), ids[0])
	tc.scraper.content[lead.Website] = "content"
	// The stale sweep fires while the scrape is in flight and hands the
	// lead back to pending for a re-queued event.
	tc.scraper.onScrape = func(string) {
		_, _ = tc.store.ClaimLeadResearch(context.Background(), ids[0],
			model.ResearchStatusScraping, model.ResearchStatusPending)
	}

	err := tc.ctrl.HandleResearch(context.Background(), researchEvent(run.ID, ids[0]))
	require.NoError(t, err)

	// The losing handler never analyzes or completes the lead.
	got, _ := tc.store.GetLead(context.Background(), ids[0])
	assert.Equal(t, model.ResearchStatusPending, got.ResearchStatus)
	assert.Empty(t, string(got.CompatibilityGrade))
	assert.Equal(t, 0, tc.analyzer.calls["grade:"+lead.Name])
}

func TestHandleResearch_ScrapeFailureIsTerminal(t *testing.T) {
	tc := newTestController()
	run, ids := tc.seedRun(model.RunStatusResearching, 2,
		model.ResearchStatusPending, model.ResearchStatusPending)

	lead, _ := tc.store.GetLead(context.Background(), ids[0])
	tc.scraper.scrapeErr[lead.Website] = eris.New("connection refused")

	err := tc.ctrl.HandleResearch(context.Background(), researchEvent(run.ID, ids[0]))
	require.NoError(t, err) // business failure, not a handler error

	got, _ := tc.store.GetLead(context.Background(), ids[0])
	assert.Equal(t, model.ResearchStatusFailed, got.ResearchStatus)
	assert.Contains(t, got.ErrorMessage, "connection refused")

	// Sibling lead and run are unaffected.
	sibling, _ := tc.store.GetLead(context.Background(), ids[1])
	assert.Equal(t, model.ResearchStatusPending, sibling.ResearchStatus)
	gotRun, _ := tc.store.GetRun(context.Background(), run.ID)
	assert.Equal(t, model.RunStatusResearching, gotRun.Status)
}

func TestHandleResearch_NoWebsiteFails(t *testing.T) {
	tc := newTestController()
	run, _ := tc.store.CreateRun(context.Background(), "user-1",
		[]model.SearchQuery{{BusinessType: "hvac", Location: "Austin, TX"}}, 1)
	_ = tc.store.UpdateRunStatus(context.Background(), run.ID, model.RunStatusResearching)
	_, _ = tc.store.BulkInsertLeads(context.Background(), []model.Lead{
		{ID: "lead-nosite", RunID: run.ID, Name: "No Site Co", Prescreened: true},
	})

	err := tc.ctrl.HandleResearch(context.Background(), researchEvent(run.ID, "lead-nosite"))
	require.NoError(t, err)

	got, _ := tc.store.GetLead(context.Background(), "lead-nosite")
	assert.Equal(t, model.ResearchStatusFailed, got.ResearchStatus)
	assert.Contains(t, got.ErrorMessage, "no website")
}

func TestHandleResearch_AnalyzeFailureIsTerminal(t *testing.T) {
	tc := newTestController()
	run, ids := tc.seedRun(model.RunStatusResearching, 1, model.ResearchStatusPending)

	lead, _ := tc.store.GetLead(context.Background(), ids[0])
	tc.scraper.content[lead.Website] = "content"
	tc.analyzer.failFor[lead.Name] = eris.New("model overloaded")

	require.NoError(t, tc.ctrl.HandleResearch(context.Background(), researchEvent(run.ID, ids[0])))

	got, _ := tc.store.GetLead(context.Background(), ids[0])
	assert.Equal(t, model.ResearchStatusFailed, got.ResearchStatus)
	assert.Contains(t, got.ErrorMessage, "model overloaded")
}

func TestHandleResearch_EnrichesEmails(t *testing.T) {
	tc := newTestController()
	run, _ := tc.store.CreateRun(context.Background(), "user-1",
		[]model.SearchQuery{{BusinessType: "hvac", Location: "Austin, TX"}}, 1)
	_ = tc.store.UpdateRunStatus(context.Background(), run.ID, model.RunStatusResearching)
	_, _ = tc.store.BulkInsertLeads(context.Background(), []model.Lead{
		{ID: "lead-1", RunID: run.ID, Name: "Acme HVAC", Website: "https://acmehvac.com", Prescreened: true},
	})

	tc.scraper.content["https://acmehvac.com"] = "content"
	tc.hunter.emails["acmehvac.com"] = []hunter.Email{
		{Value: "info@acmehvac.com", Type: "generic", Confidence: 90},
	}

	require.NoError(t, tc.ctrl.HandleResearch(context.Background(), researchEvent(run.ID, "lead-1")))

	records, _ := tc.store.ListEmailRecords(context.Background(), "lead-1")
	require.Len(t, records, 1)
	assert.Equal(t, "info@acmehvac.com", records[0].Email)
	assert.Equal(t, model.ProviderHunter, records[0].Provider)
}

func TestHandleDeepResearch_RequiresCompleted(t *testing.T) {
	tc := newTestController()
	run, ids := tc.seedRun(model.RunStatusResearching, 1, model.ResearchStatusPending)

	evt := dispatch.NewEvent(dispatch.EventDeepResearch, run.ID)
	evt.LeadID = ids[0]
	require.NoError(t, tc.ctrl.HandleDeepResearch(context.Background(), evt))

	got, _ := tc.store.GetLead(context.Background(), ids[0])
	assert.Empty(t, got.DeepReport)
	assert.Equal(t, model.ResearchStatusPending, got.ResearchStatus)
}

func TestHandleDeepResearch_SavesReportWithoutTouchingGrade(t *testing.T) {
	tc := newTestController()
	run, ids := tc.seedRun(model.RunStatusResearching, 1, model.ResearchStatusCompleted)
	_ = tc.store.CompleteLeadResearch(context.Background(), completionFor(ids[0], model.GradeB))

	lead, _ := tc.store.GetLead(context.Background(), ids[0])
	tc.scraper.content[lead.Website] = "content"
	tc.analyzer.deep = "much deeper report"

	evt := dispatch.NewEvent(dispatch.EventDeepResearch, run.ID)
	evt.LeadID = ids[0]
	require.NoError(t, tc.ctrl.HandleDeepResearch(context.Background(), evt))

	got, _ := tc.store.GetLead(context.Background(), ids[0])
	assert.Equal(t, "much deeper report", got.DeepReport)
	assert.Equal(t, model.GradeB, got.CompatibilityGrade)
	assert.Equal(t, model.ResearchStatusCompleted, got.ResearchStatus)
}

func TestHandleResearchAll_FansOutPendingOnly(t *testing.T) {
	tc := newTestController()
	run, ids := tc.seedRun(model.RunStatusResearching, 4,
		model.ResearchStatusPending,
		model.ResearchStatusPending,
		model.ResearchStatusSkipped,
		model.ResearchStatusCompleted,
	)

	require.NoError(t, tc.ctrl.HandleResearchAll(context.Background(),
		dispatch.NewEvent(dispatch.EventResearchAllTriggered, run.ID)))

	events := tc.dispatcher.byName(dispatch.EventResearchTriggered)
	require.Len(t, events, 2)
	assert.Equal(t, ids[0], events[0].LeadID)
	assert.Equal(t, ids[1], events[1].LeadID)
}

func TestHandleResearchAll_PausedRunEmitsNothing(t *testing.T) {
	tc := newTestController()
	run, _ := tc.seedRun(model.RunStatusResearching, 2, model.ResearchStatusPending)
	require.NoError(t, tc.ctrl.Pause(context.Background(), run.ID))
	tc.dispatcher.reset()

	require.NoError(t, tc.ctrl.HandleResearchAll(context.Background(),
		dispatch.NewEvent(dispatch.EventResearchAllTriggered, run.ID)))
	assert.Empty(t, tc.dispatcher.byName(dispatch.EventResearchTriggered))
}

func TestHandleResearchAll_AllSkippedCompletesRun(t *testing.T) {
	tc := newTestController()
	run, _ := tc.seedRun(model.RunStatusResearching, 2,
		model.ResearchStatusSkipped, model.ResearchStatusSkipped)

	require.NoError(t, tc.ctrl.HandleResearchAll(context.Background(),
		dispatch.NewEvent(dispatch.EventResearchAllTriggered, run.ID)))

	got, _ := tc.store.GetRun(context.Background(), run.ID)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
}

func TestHandleDeepResearchMultiple_ByGrade(t *testing.T) {
	tc := newTestController()
	run, ids := tc.seedRun(model.RunStatusCompleted, 3,
		model.ResearchStatusCompleted,
		model.ResearchStatusCompleted,
		model.ResearchStatusCompleted,
	)
	_ = tc.store.CompleteLeadResearch(context.Background(), completionFor(ids[0], model.GradeA))
	_ = tc.store.CompleteLeadResearch(context.Background(), completionFor(ids[1], model.GradeC))
	_ = tc.store.CompleteLeadResearch(context.Background(), completionFor(ids[2], model.GradeA))

	evt := dispatch.NewEvent(dispatch.EventDeepResearchMultiple, run.ID)
	evt.Payload = map[string]any{"filterGrade": "A"}
	require.NoError(t, tc.ctrl.HandleDeepResearchMultiple(context.Background(), evt))

	events := tc.dispatcher.byName(dispatch.EventDeepResearch)
	require.Len(t, events, 2)
}

func TestHandleDeepResearchMultiple_ExplicitIDs(t *testing.T) {
	tc := newTestController()
	run, ids := tc.seedRun(model.RunStatusCompleted, 2,
		model.ResearchStatusCompleted, model.ResearchStatusCompleted)

	evt := dispatch.NewEvent(dispatch.EventDeepResearchMultiple, run.ID)
	evt.Payload = map[string]any{"leadIds": []any{ids[1]}}
	require.NoError(t, tc.ctrl.HandleDeepResearchMultiple(context.Background(), evt))

	events := tc.dispatcher.byName(dispatch.EventDeepResearch)
	require.Len(t, events, 1)
	assert.Equal(t, ids[1], events[0].LeadID)
}

func TestHandleDeepResearchMultiple_NoFilterRejected(t *testing.T) {
	tc := newTestController()
	run, _ := tc.seedRun(model.RunStatusCompleted, 1, model.ResearchStatusCompleted)

	evt := dispatch.NewEvent(dispatch.EventDeepResearchMultiple, run.ID)
	err := tc.ctrl.HandleDeepResearchMultiple(context.Background(), evt)
	require.Error(t, err)
	assert.True(t, IsPolicy(err))
}

func TestHandleResearch_OpenBreakerIsRetryableNotTerminal(t *testing.T) {
	tc := newTestController()
	states := make([]model.ResearchStatus, 6)
	for i := range states {
		states[i] = model.ResearchStatusPending
	}
	run, ids := tc.seedRun(model.RunStatusResearching, 6, states...)

	for _, id := range ids {
		lead, _ := tc.store.GetLead(context.Background(), id)
		tc.scraper.scrapeErr[lead.Website] = eris.New("scrapingdog outage")
	}

	// Five consecutive scrape failures trip the provider breaker.
	for i := 0; i < 5; i++ {
		require.NoError(t, tc.ctrl.HandleResearch(context.Background(), researchEvent(run.ID, ids[i])))
	}

	// With the breaker open the next event errors for redelivery instead of
	// burning the lead.
	err := tc.ctrl.HandleResearch(context.Background(), researchEvent(run.ID, ids[5]))
	require.Error(t, err)

	got, _ := tc.store.GetLead(context.Background(), ids[5])
	assert.NotEqual(t, model.ResearchStatusFailed, got.ResearchStatus)
	assert.Empty(t, got.ErrorMessage)
	assert.Zero(t, tc.scraper.scrapeHits[got.Website])
}

func TestOverrideGrade_ForceFAttachesFixedReasoning(t *testing.T) {
	tc := newTestController()
	run, ids := tc.seedRun(model.RunStatusResearching, 1, model.ResearchStatusPending)

	require.NoError(t, tc.ctrl.OverrideGrade(context.Background(), ids[0], model.GradeF))

	got, _ := tc.store.GetLead(context.Background(), ids[0])
	assert.Equal(t, model.GradeF, got.CompatibilityGrade)
	assert.Equal(t, manualFailReasoning, got.GradeReasoning)
	// research_status is never touched by the override path.
	assert.Equal(t, model.ResearchStatusPending, got.ResearchStatus)

	gotRun, _ := tc.store.GetRun(context.Background(), run.ID)
	assert.Equal(t, 1, gotRun.GradeFCount)
}

func TestOverrideGrade_NonFKeepsReasoning(t *testing.T) {
	tc := newTestController()
	_, ids := tc.seedRun(model.RunStatusCompleted, 1, model.ResearchStatusCompleted)
	_ = tc.store.CompleteLeadResearch(context.Background(), completionFor(ids[0], model.GradeC))

	require.NoError(t, tc.ctrl.OverrideGrade(context.Background(), ids[0], model.GradeB))

	got, _ := tc.store.GetLead(context.Background(), ids[0])
	assert.Equal(t, model.GradeB, got.CompatibilityGrade)
	assert.Equal(t, "reasoning", got.GradeReasoning)
}

func TestOverrideGrade_InvalidGrade(t *testing.T) {
	tc := newTestController()
	_, ids := tc.seedRun(model.RunStatusCompleted, 1, model.ResearchStatusCompleted)

	err := tc.ctrl.OverrideGrade(context.Background(), ids[0], model.Grade("E"))
	require.Error(t, err)
	assert.True(t, IsPolicy(err))
}
