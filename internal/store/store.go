package store

import (
	"context"
	"time"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	UserID string          `json:"user_id,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// PrescreenUpdate carries the prescreen outcome for one lead. When Result is
// skip, the lead's research_status moves to skipped in the same write.
type PrescreenUpdate struct {
	LeadID          string
	Result          model.PrescreenResult
	Reason          string
	IsFranchise     bool
	IsNationalBrand bool
	Confidence      model.PrescreenConfidence
}

// ResearchCompletion carries the research outputs written atomically when a
// lead finishes analysis.
type ResearchCompletion struct {
	LeadID    string
	Grade     model.Grade
	Reasoning string
	Report    string
}

// Store defines the persistence interface for the lead pipeline. The
// relational store is the single source of truth; components communicate
// through it rather than through direct calls to one another.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, userID string, queries []model.SearchQuery, targetCount int) (*model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	// CompareAndSetRunStatus transitions status only when the run is still in
	// from; reports whether the row was updated.
	CompareAndSetRunStatus(ctx context.Context, runID string, from, to model.RunStatus) (bool, error)
	// PauseRun succeeds only while status is researching and not yet paused.
	PauseRun(ctx context.Context, runID string) (bool, error)
	// ResumeRun succeeds only while the run is paused.
	ResumeRun(ctx context.Context, runID string) (bool, error)
	// CompleteRun moves researching to completed and stamps completed_at.
	CompleteRun(ctx context.Context, runID string) (bool, error)
	FailRun(ctx context.Context, runID string, errMsg string) error
	// MarkRunCompleted force-completes a run regardless of lead state.
	MarkRunCompleted(ctx context.Context, runID string) error
	// UpdateRunAggregates writes derived counters; last write wins.
	UpdateRunAggregates(ctx context.Context, runID string, counts model.GradeCounts, progress int) error
	// ResetRunForRedo zeroes counters/progress and returns the run to ready.
	ResetRunForRedo(ctx context.Context, runID string) error

	// Leads
	BulkInsertLeads(ctx context.Context, leads []model.Lead) (int64, error)
	GetLead(ctx context.Context, leadID string) (*model.Lead, error)
	ListLeads(ctx context.Context, runID string) ([]model.Lead, error)
	ListLeadIDsByResearchStatus(ctx context.Context, runID string, status model.ResearchStatus) ([]string, error)
	ListLeadIDsByGrade(ctx context.Context, runID string, grade model.Grade) ([]string, error)
	ListUnprescreenedLeads(ctx context.Context, runID string) ([]model.Lead, error)
	CountLeads(ctx context.Context, runID string) (int, error)
	CountLeadsByGrade(ctx context.Context, runID string) (model.GradeCounts, error)
	CountTerminalLeads(ctx context.Context, runID string) (int, error)
	CountUnprescreened(ctx context.Context, runID string) (int, error)
	// ClaimLeadResearch is the conditional-write concurrency boundary: the
	// transition happens only when research_status is still from.
	ClaimLeadResearch(ctx context.Context, leadID string, from, to model.ResearchStatus) (bool, error)
	CompleteLeadResearch(ctx context.Context, c ResearchCompletion) error
	FailLeadResearch(ctx context.Context, leadID string, errMsg string) error
	SavePrescreen(ctx context.Context, u PrescreenUpdate) error
	SetLeadGradeOverride(ctx context.Context, leadID string, grade model.Grade, reasoning string) error
	SaveDeepReport(ctx context.Context, leadID string, report string) error
	// ResetLeadResearch wipes derived research fields for a run back to pending.
	ResetLeadResearch(ctx context.Context, runID string) (int64, error)
	// ResetLeadPrescreen wipes prescreen fields for a run back to un-prescreened.
	ResetLeadPrescreen(ctx context.Context, runID string) (int64, error)
	// ResetStaleLeads returns scraping/analyzing leads untouched since cutoff
	// to pending and reports their ids.
	ResetStaleLeads(ctx context.Context, runID string, cutoff time.Time) ([]string, error)

	// Emails
	ReplaceProviderEmails(ctx context.Context, leadID string, provider model.EmailProvider, records []model.EmailRecord) error
	ListEmailRecords(ctx context.Context, leadID string) ([]model.EmailRecord, error)

	// Suppression + cadence
	UpsertSuppressionEntries(ctx context.Context, entries []model.SuppressionEntry) (int64, error)
	LookupSuppression(ctx context.Context, email, domain string) (*model.SuppressionEntry, error)
	GetContactTracking(ctx context.Context, domain string) (*model.ContactTracking, error)

	// Audit trail
	AppendProgressLog(ctx context.Context, entry model.ProgressLogEntry) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
