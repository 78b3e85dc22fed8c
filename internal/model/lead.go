package model

import (
	"strings"
	"time"
)

// ResearchStatus represents the lifecycle state of a single lead.
type ResearchStatus string

const (
	ResearchStatusPending      ResearchStatus = "pending"
	ResearchStatusPrescreening ResearchStatus = "prescreening"
	ResearchStatusScraping     ResearchStatus = "scraping"
	ResearchStatusAnalyzing    ResearchStatus = "analyzing"
	ResearchStatusCompleted    ResearchStatus = "completed"
	ResearchStatusFailed       ResearchStatus = "failed"
	ResearchStatusSkipped      ResearchStatus = "skipped"
)

// IsTerminal reports whether the lead requires no further research work.
func (s ResearchStatus) IsTerminal() bool {
	switch s {
	case ResearchStatusCompleted, ResearchStatusFailed, ResearchStatusSkipped:
		return true
	default:
		return false
	}
}

// Grade is the A-F qualification outcome of deep research.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// ValidGrade reports whether g is one of the five allowed grades.
func ValidGrade(g Grade) bool {
	switch g {
	case GradeA, GradeB, GradeC, GradeD, GradeF:
		return true
	default:
		return false
	}
}

// PrescreenResult classifies a lead before expensive research runs.
type PrescreenResult string

const (
	PrescreenResearch PrescreenResult = "research"
	PrescreenSkip     PrescreenResult = "skip"
)

// PrescreenConfidence expresses how sure the classifier is.
type PrescreenConfidence string

const (
	ConfidenceHigh   PrescreenConfidence = "high"
	ConfidenceMedium PrescreenConfidence = "medium"
	ConfidenceLow    PrescreenConfidence = "low"
)

// Lead represents one candidate business within a run.
type Lead struct {
	ID    string `json:"id"`
	RunID string `json:"run_id"`

	// Scraped identity, retained across research resets.
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Phone     string  `json:"phone"`
	Website   string  `json:"website"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	ResearchStatus ResearchStatus `json:"research_status"`

	Prescreened         bool                `json:"prescreened"`
	PrescreenResult     PrescreenResult     `json:"prescreen_result,omitempty"`
	PrescreenReason     string              `json:"prescreen_reason,omitempty"`
	IsFranchise         bool                `json:"is_franchise"`
	IsNationalBrand     bool                `json:"is_national_brand"`
	PrescreenConfidence PrescreenConfidence `json:"prescreen_confidence,omitempty"`
	PrescreenedAt       *time.Time          `json:"prescreened_at,omitempty"`

	CompatibilityGrade Grade  `json:"compatibility_grade,omitempty"`
	GradeReasoning     string `json:"grade_reasoning,omitempty"`
	Report             string `json:"report,omitempty"`
	DeepReport         string `json:"deep_report,omitempty"`
	ErrorMessage       string `json:"error_message,omitempty"`

	EmailDomain string `json:"email_domain,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	ResearchedAt *time.Time `json:"researched_at,omitempty"`
}

// DomainFromWebsite derives the bare lowercase domain from a website URL.
// Returns "" when the input has no usable host.
func DomainFromWebsite(website string) string {
	s := strings.TrimSpace(strings.ToLower(website))
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	if !strings.Contains(s, ".") {
		return ""
	}
	return s
}
