// Package model defines the persisted types shared across the lead pipeline.
package model

import "time"

// RunStatus represents the lifecycle state of a discovery run.
type RunStatus string

const (
	RunStatusPending      RunStatus = "pending"
	RunStatusScraping     RunStatus = "scraping"
	RunStatusPrescreening RunStatus = "prescreening"
	RunStatusReady        RunStatus = "ready"
	RunStatusResearching  RunStatus = "researching"
	RunStatusCompleted    RunStatus = "completed"
	RunStatusFailed       RunStatus = "failed"
	RunStatusArchived     RunStatus = "archived"
)

// IsTerminal reports whether the run can no longer progress.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusArchived:
		return true
	default:
		return false
	}
}

// SearchQuery is one business-type/location query a run discovers leads for.
type SearchQuery struct {
	BusinessType string `json:"business_type"`
	Location     string `json:"location"`
}

// Run represents one discovery batch of leads.
type Run struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	Queries     []SearchQuery `json:"queries"`
	TargetCount int           `json:"target_count"`
	Status      RunStatus     `json:"status"`
	IsPaused    bool          `json:"is_paused"`

	// Derived aggregates, recomputed from leads; never a source of truth.
	GradeACount int `json:"grade_a_count"`
	GradeBCount int `json:"grade_b_count"`
	GradeCCount int `json:"grade_c_count"`
	GradeDCount int `json:"grade_d_count"`
	GradeFCount int `json:"grade_f_count"`
	Progress    int `json:"progress"`

	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	PausedAt     *time.Time `json:"paused_at,omitempty"`
	ResumedAt    *time.Time `json:"resumed_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// GradeCounts is the per-grade aggregate written by the progress aggregator.
type GradeCounts struct {
	A int `json:"a"`
	B int `json:"b"`
	C int `json:"c"`
	D int `json:"d"`
	F int `json:"f"`
}

// Total returns the number of graded leads across all grades.
func (g GradeCounts) Total() int {
	return g.A + g.B + g.C + g.D + g.F
}
