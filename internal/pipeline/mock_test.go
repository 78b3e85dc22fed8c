package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/dispatch"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
	"github.com/sells-group/leadgen-cli/pkg/hunter"
	"github.com/sells-group/leadgen-cli/pkg/scrapingdog"
	"github.com/sells-group/leadgen-cli/pkg/tomba"
)

// memStore is an in-memory store.Store with the same conditional-update
// semantics as the SQL implementations.
type memStore struct {
	mu          sync.Mutex
	runs        map[string]*model.Run
	leads       map[string]*model.Lead
	leadOrder   []string
	leadUpdated map[string]time.Time
	emails      map[string][]model.EmailRecord // key: leadID|provider
	suppression map[string]model.SuppressionEntry
	tracking    map[string]model.ContactTracking
	log         []model.ProgressLogEntry
}

func newMemStore() *memStore {
	return &memStore{
		runs:        map[string]*model.Run{},
		leads:       map[string]*model.Lead{},
		leadUpdated: map[string]time.Time{},
		emails:      map[string][]model.EmailRecord{},
		suppression: map[string]model.SuppressionEntry{},
		tracking:    map[string]model.ContactTracking{},
	}
}

func (m *memStore) CreateRun(_ context.Context, userID string, queries []model.SearchQuery, targetCount int) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := &model.Run{
		ID:          uuid.New().String(),
		UserID:      userID,
		Queries:     queries,
		TargetCount: targetCount,
		Status:      model.RunStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	m.runs[run.ID] = run
	return run, nil
}

func (m *memStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	cp := *run
	return &cp, nil
}

func (m *memStore) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var runs []model.Run
	for _, r := range m.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && r.UserID != filter.UserID {
			continue
		}
		runs = append(runs, *r)
	}
	return runs, nil
}

func (m *memStore) UpdateRunStatus(_ context.Context, runID string, status model.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	run.Status = status
	return nil
}

func (m *memStore) CompareAndSetRunStatus(_ context.Context, runID string, from, to model.RunStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || run.Status != from {
		return false, nil
	}
	run.Status = to
	return true, nil
}

func (m *memStore) PauseRun(_ context.Context, runID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || run.Status != model.RunStatusResearching || run.IsPaused {
		return false, nil
	}
	now := time.Now().UTC()
	run.IsPaused = true
	run.PausedAt = &now
	return true, nil
}

func (m *memStore) ResumeRun(_ context.Context, runID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || !run.IsPaused {
		return false, nil
	}
	now := time.Now().UTC()
	run.IsPaused = false
	run.ResumedAt = &now
	return true, nil
}

func (m *memStore) CompleteRun(_ context.Context, runID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || run.Status != model.RunStatusResearching {
		return false, nil
	}
	now := time.Now().UTC()
	run.Status = model.RunStatusCompleted
	run.CompletedAt = &now
	return true, nil
}

func (m *memStore) FailRun(_ context.Context, runID string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	run.Status = model.RunStatusFailed
	run.ErrorMessage = errMsg
	return nil
}

func (m *memStore) MarkRunCompleted(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	now := time.Now().UTC()
	run.Status = model.RunStatusCompleted
	run.Progress = 100
	run.CompletedAt = &now
	return nil
}

func (m *memStore) UpdateRunAggregates(_ context.Context, runID string, counts model.GradeCounts, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	run.GradeACount = counts.A
	run.GradeBCount = counts.B
	run.GradeCCount = counts.C
	run.GradeDCount = counts.D
	run.GradeFCount = counts.F
	run.Progress = progress
	return nil
}

func (m *memStore) ResetRunForRedo(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	run.Status = model.RunStatusReady
	run.IsPaused = false
	run.GradeACount, run.GradeBCount, run.GradeCCount, run.GradeDCount, run.GradeFCount = 0, 0, 0, 0, 0
	run.Progress = 0
	run.ErrorMessage = ""
	run.CompletedAt = nil
	return nil
}

func (m *memStore) BulkInsertLeads(_ context.Context, leads []model.Lead) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, l := range leads {
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		if l.ResearchStatus == "" {
			l.ResearchStatus = model.ResearchStatusPending
		}
		if l.EmailDomain == "" {
			l.EmailDomain = model.DomainFromWebsite(l.Website)
		}
		l.CreatedAt = now
		cp := l
		m.leads[l.ID] = &cp
		m.leadOrder = append(m.leadOrder, l.ID)
		m.leadUpdated[l.ID] = now
	}
	return int64(len(leads)), nil
}

func (m *memStore) GetLead(_ context.Context, leadID string) (*model.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[leadID]
	if !ok {
		return nil, eris.Errorf("lead not found: %s", leadID)
	}
	cp := *lead
	return &cp, nil
}

func (m *memStore) ListLeads(_ context.Context, runID string) ([]model.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var leads []model.Lead
	for _, id := range m.leadOrder {
		if l := m.leads[id]; l.RunID == runID {
			leads = append(leads, *l)
		}
	}
	return leads, nil
}

func (m *memStore) ListLeadIDsByResearchStatus(_ context.Context, runID string, status model.ResearchStatus) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, id := range m.leadOrder {
		if l := m.leads[id]; l.RunID == runID && l.ResearchStatus == status {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) ListLeadIDsByGrade(_ context.Context, runID string, grade model.Grade) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, id := range m.leadOrder {
		if l := m.leads[id]; l.RunID == runID && l.CompatibilityGrade == grade {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) ListUnprescreenedLeads(_ context.Context, runID string) ([]model.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var leads []model.Lead
	for _, id := range m.leadOrder {
		if l := m.leads[id]; l.RunID == runID && !l.Prescreened {
			leads = append(leads, *l)
		}
	}
	return leads, nil
}

func (m *memStore) CountLeads(_ context.Context, runID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.leads {
		if l.RunID == runID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountLeadsByGrade(_ context.Context, runID string) (model.GradeCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var counts model.GradeCounts
	for _, l := range m.leads {
		if l.RunID != runID {
			continue
		}
		switch l.CompatibilityGrade {
		case model.GradeA:
			counts.A++
		case model.GradeB:
			counts.B++
		case model.GradeC:
			counts.C++
		case model.GradeD:
			counts.D++
		case model.GradeF:
			counts.F++
		}
	}
	return counts, nil
}

func (m *memStore) CountTerminalLeads(_ context.Context, runID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.leads {
		if l.RunID == runID && l.ResearchStatus.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountUnprescreened(_ context.Context, runID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.leads {
		if l.RunID == runID && !l.Prescreened {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ClaimLeadResearch(_ context.Context, leadID string, from, to model.ResearchStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[leadID]
	if !ok || lead.ResearchStatus != from {
		return false, nil
	}
	lead.ResearchStatus = to
	m.leadUpdated[leadID] = time.Now().UTC()
	return true, nil
}

func (m *memStore) CompleteLeadResearch(_ context.Context, c store.ResearchCompletion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[c.LeadID]
	if !ok {
		return eris.Errorf("lead not found: %s", c.LeadID)
	}
	now := time.Now().UTC()
	lead.ResearchStatus = model.ResearchStatusCompleted
	lead.CompatibilityGrade = c.Grade
	lead.GradeReasoning = c.Reasoning
	lead.Report = c.Report
	lead.ErrorMessage = ""
	lead.ResearchedAt = &now
	m.leadUpdated[c.LeadID] = now
	return nil
}

func (m *memStore) FailLeadResearch(_ context.Context, leadID string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[leadID]
	if !ok {
		return eris.Errorf("lead not found: %s", leadID)
	}
	lead.ResearchStatus = model.ResearchStatusFailed
	lead.ErrorMessage = errMsg
	m.leadUpdated[leadID] = time.Now().UTC()
	return nil
}

func (m *memStore) SavePrescreen(_ context.Context, u store.PrescreenUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[u.LeadID]
	if !ok {
		return eris.Errorf("lead not found: %s", u.LeadID)
	}
	now := time.Now().UTC()
	lead.Prescreened = true
	lead.PrescreenResult = u.Result
	lead.PrescreenReason = u.Reason
	lead.IsFranchise = u.IsFranchise
	lead.IsNationalBrand = u.IsNationalBrand
	lead.PrescreenConfidence = u.Confidence
	lead.PrescreenedAt = &now
	if u.Result == model.PrescreenSkip {
		lead.ResearchStatus = model.ResearchStatusSkipped
	}
	m.leadUpdated[u.LeadID] = now
	return nil
}

func (m *memStore) SetLeadGradeOverride(_ context.Context, leadID string, grade model.Grade, reasoning string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[leadID]
	if !ok {
		return eris.Errorf("lead not found: %s", leadID)
	}
	lead.CompatibilityGrade = grade
	lead.GradeReasoning = reasoning
	m.leadUpdated[leadID] = time.Now().UTC()
	return nil
}

func (m *memStore) SaveDeepReport(_ context.Context, leadID string, report string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[leadID]
	if !ok {
		return eris.Errorf("lead not found: %s", leadID)
	}
	lead.DeepReport = report
	m.leadUpdated[leadID] = time.Now().UTC()
	return nil
}

func (m *memStore) ResetLeadResearch(_ context.Context, runID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, l := range m.leads {
		if l.RunID != runID || l.ResearchStatus == model.ResearchStatusSkipped {
			continue
		}
		l.ResearchStatus = model.ResearchStatusPending
		l.CompatibilityGrade = ""
		l.GradeReasoning = ""
		l.Report = ""
		l.DeepReport = ""
		l.ErrorMessage = ""
		l.ResearchedAt = nil
		n++
	}
	return n, nil
}

func (m *memStore) ResetLeadPrescreen(_ context.Context, runID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, l := range m.leads {
		if l.RunID != runID {
			continue
		}
		l.ResearchStatus = model.ResearchStatusPending
		l.Prescreened = false
		l.PrescreenResult = ""
		l.PrescreenReason = ""
		l.IsFranchise = false
		l.IsNationalBrand = false
		l.PrescreenConfidence = ""
		l.PrescreenedAt = nil
		l.CompatibilityGrade = ""
		l.GradeReasoning = ""
		l.Report = ""
		l.DeepReport = ""
		l.ErrorMessage = ""
		l.ResearchedAt = nil
		n++
	}
	return n, nil
}

func (m *memStore) ResetStaleLeads(_ context.Context, runID string, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, id := range m.leadOrder {
		l := m.leads[id]
		if l.RunID != runID {
			continue
		}
		if l.ResearchStatus != model.ResearchStatusScraping && l.ResearchStatus != model.ResearchStatusAnalyzing {
			continue
		}
		if !m.leadUpdated[id].Before(cutoff) {
			continue
		}
		l.ResearchStatus = model.ResearchStatusPending
		m.leadUpdated[id] = time.Now().UTC()
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) ReplaceProviderEmails(_ context.Context, leadID string, provider model.EmailProvider, records []model.EmailRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails[leadID+"|"+string(provider)] = append([]model.EmailRecord(nil), records...)
	return nil
}

func (m *memStore) ListEmailRecords(_ context.Context, leadID string) ([]model.EmailRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EmailRecord
	for key, records := range m.emails {
		if strings.HasPrefix(key, leadID+"|") {
			out = append(out, records...)
		}
	}
	return out, nil
}

func (m *memStore) UpsertSuppressionEntries(_ context.Context, entries []model.SuppressionEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.suppression[e.Value] = e
	}
	return int64(len(entries)), nil
}

func (m *memStore) LookupSuppression(_ context.Context, email, domain string) (*model.SuppressionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.suppression[email]; ok {
		return &e, nil
	}
	if e, ok := m.suppression[domain]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *memStore) GetContactTracking(_ context.Context, domain string) (*model.ContactTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tracking[domain]; ok {
		return &t, nil
	}
	return nil, nil
}

func (m *memStore) AppendProgressLog(_ context.Context, entry model.ProgressLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.CreatedAt = time.Now().UTC()
	m.log = append(m.log, entry)
	return nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

var _ store.Store = (*memStore)(nil)

// recordingDispatcher captures events without executing them.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []dispatch.Event
}

func (d *recordingDispatcher) Send(_ context.Context, evt dispatch.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
	return nil
}

func (d *recordingDispatcher) byName(name string) []dispatch.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []dispatch.Event
	for _, e := range d.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (d *recordingDispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
}

// fakeScraper serves canned maps pages and page content. onScrape, when
// set, runs during each Scrape call so tests can interleave store writes
// with an in-flight scrape.
type fakeScraper struct {
	mu         sync.Mutex
	pages      map[string][][]scrapingdog.MapsResult // query → pages
	content    map[string]string                     // url → content
	scrapeErr  map[string]error                      // url → error
	scrapeHits map[string]int
	onScrape   func(url string)
}

func newFakeScraper() *fakeScraper {
	return &fakeScraper{
		pages:      map[string][][]scrapingdog.MapsResult{},
		content:    map[string]string{},
		scrapeErr:  map[string]error{},
		scrapeHits: map[string]int{},
	}
}

func (f *fakeScraper) SearchMaps(_ context.Context, query string, page int) (*scrapingdog.MapsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pages := f.pages[query]
	if page >= len(pages) {
		return &scrapingdog.MapsResponse{}, nil
	}
	return &scrapingdog.MapsResponse{Results: pages[page]}, nil
}

func (f *fakeScraper) Scrape(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	f.scrapeHits[url]++
	hook := f.onScrape
	err := f.scrapeErr[url]
	content := f.content[url]
	f.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	if err != nil {
		return "", err
	}
	return content, nil
}

var _ scrapingdog.Client = (*fakeScraper)(nil)

// fakeAnalyzer returns scripted prescreen and grade outcomes keyed by name.
type fakeAnalyzer struct {
	mu         sync.Mutex
	prescreens map[string]*anthropic.PrescreenResult
	grades     map[string]*anthropic.GradeResult
	deep       string
	failFor    map[string]error
	calls      map[string]int
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		prescreens: map[string]*anthropic.PrescreenResult{},
		grades:     map[string]*anthropic.GradeResult{},
		failFor:    map[string]error{},
		calls:      map[string]int{},
	}
}

func (f *fakeAnalyzer) PrescreenLead(_ context.Context, name, _, _ string) (*anthropic.PrescreenResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["prescreen:"+name]++
	if err := f.failFor[name]; err != nil {
		return nil, err
	}
	if r, ok := f.prescreens[name]; ok {
		return r, nil
	}
	return &anthropic.PrescreenResult{Result: "research", Reason: "independent", Confidence: "medium"}, nil
}

func (f *fakeAnalyzer) GradeLead(_ context.Context, name, _, _ string) (*anthropic.GradeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["grade:"+name]++
	if err := f.failFor[name]; err != nil {
		return nil, err
	}
	if r, ok := f.grades[name]; ok {
		return r, nil
	}
	return &anthropic.GradeResult{Grade: "B", Reasoning: "solid", Report: "report"}, nil
}

func (f *fakeAnalyzer) DeepResearch(_ context.Context, name, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["deep:"+name]++
	if err := f.failFor[name]; err != nil {
		return "", err
	}
	if f.deep != "" {
		return f.deep, nil
	}
	return "deep report", nil
}

var _ Analyzer = (*fakeAnalyzer)(nil)

// fakeHunter and fakeTomba serve fixed domain-search results.
type fakeHunter struct {
	emails map[string][]hunter.Email
	err    error
}

func (f *fakeHunter) DomainSearch(_ context.Context, domain string) (*hunter.DomainSearchResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &hunter.DomainSearchResponse{Data: hunter.DomainSearchData{
		Domain: domain,
		Emails: f.emails[domain],
	}}, nil
}

var _ hunter.Client = (*fakeHunter)(nil)

type fakeTomba struct {
	emails map[string][]tomba.Email
	err    error
}

func (f *fakeTomba) DomainSearch(_ context.Context, domain string) (*tomba.DomainSearchResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &tomba.DomainSearchResponse{Data: tomba.DomainSearchData{
		Emails: f.emails[domain],
	}}, nil
}

var _ tomba.Client = (*fakeTomba)(nil)

// testController wires a controller over fresh fakes.
type testController struct {
	ctrl       *Controller
	store      *memStore
	dispatcher *recordingDispatcher
	scraper    *fakeScraper
	analyzer   *fakeAnalyzer
	hunter     *fakeHunter
	tomba      *fakeTomba
}

func newTestController() *testController {
	tc := &testController{
		store:      newMemStore(),
		dispatcher: &recordingDispatcher{},
		scraper:    newFakeScraper(),
		analyzer:   newFakeAnalyzer(),
		hunter:     &fakeHunter{emails: map[string][]hunter.Email{}},
		tomba:      &fakeTomba{emails: map[string][]tomba.Email{}},
	}
	tc.ctrl = New(Config{}, tc.store, tc.dispatcher, tc.scraper, tc.analyzer, tc.hunter, tc.tomba)
	return tc
}

func completionFor(leadID string, grade model.Grade) store.ResearchCompletion {
	return store.ResearchCompletion{
		LeadID:    leadID,
		Grade:     grade,
		Reasoning: "reasoning",
		Report:    "report",
	}
}

// seedRun inserts a run with leads in the given research states.
func (tc *testController) seedRun(status model.RunStatus, targetCount int, leadStates ...model.ResearchStatus) (*model.Run, []string) {
	run, _ := tc.store.CreateRun(context.Background(), "user-1",
		[]model.SearchQuery{{BusinessType: "hvac", Location: "Austin, TX"}}, targetCount)
	_ = tc.store.UpdateRunStatus(context.Background(), run.ID, status)
	run.Status = status

	var leads []model.Lead
	for i, state := range leadStates {
		leads = append(leads, model.Lead{
			ID:             uuid.New().String(),
			RunID:          run.ID,
			Name:           "Lead " + string(rune('A'+i)),
			Website:        "https://lead" + string(rune('a'+i)) + ".example.com",
			ResearchStatus: state,
			Prescreened:    true,
			PrescreenResult: func() model.PrescreenResult {
				if state == model.ResearchStatusSkipped {
					return model.PrescreenSkip
				}
				return model.PrescreenResearch
			}(),
		})
	}
	_, _ = tc.store.BulkInsertLeads(context.Background(), leads)

	ids := make([]string, len(leads))
	for i, l := range leads {
		ids[i] = l.ID
	}
	return run, ids
}
