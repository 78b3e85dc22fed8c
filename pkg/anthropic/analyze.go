package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Analyzer wraps the message API with the typed calls the pipeline makes:
// cheap prescreen classification and full compatibility grading.
type Analyzer struct {
	client         Client
	prescreenModel string
	gradeModel     string
	maxTokens      int64
}

// NewAnalyzer builds an Analyzer. The prescreen model should be a cheap,
// fast model; the grade model carries the expensive research calls.
func NewAnalyzer(client Client, prescreenModel, gradeModel string, maxTokens int64) *Analyzer {
	return &Analyzer{
		client:         client,
		prescreenModel: prescreenModel,
		gradeModel:     gradeModel,
		maxTokens:      maxTokens,
	}
}

// PrescreenResult is the classification for one lead before research.
type PrescreenResult struct {
	Result          string `json:"result"` // "research" or "skip"
	Reason          string `json:"reason"`
	IsFranchise     bool   `json:"is_franchise"`
	IsNationalBrand bool   `json:"is_national_brand"`
	Confidence      string `json:"confidence"` // "high", "medium", "low"
}

const prescreenSystem = `You classify local businesses before expensive research.
Given a business name, website, and business type, decide whether it is an
independent local business worth researching ("research") or a franchise
location / national brand outlet to skip ("skip").
Respond with a single JSON object:
{"result":"research"|"skip","reason":"...","is_franchise":bool,"is_national_brand":bool,"confidence":"high"|"medium"|"low"}`

// PrescreenLead classifies one lead as research or skip.
func (a *Analyzer) PrescreenLead(ctx context.Context, name, website, businessType string) (*PrescreenResult, error) {
	prompt := fmt.Sprintf("Business name: %s\nWebsite: %s\nBusiness type: %s", name, website, businessType)

	resp, err := a.client.CreateMessage(ctx, MessageRequest{
		Model:     a.prescreenModel,
		MaxTokens: 1024,
		System: []SystemBlock{
			{Text: prescreenSystem, CacheControl: &CacheControl{TTL: "5m"}},
		},
		Messages: []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "anthropic: prescreen %s", name)
	}
	resp.Usage.LogCost(a.prescreenModel, "prescreen")

	var result PrescreenResult
	if err := unmarshalResponse(resp.Text(), &result); err != nil {
		return nil, eris.Wrapf(err, "anthropic: parse prescreen for %s", name)
	}
	if result.Result != "research" && result.Result != "skip" {
		return nil, eris.Errorf("anthropic: unexpected prescreen result %q for %s", result.Result, name)
	}
	return &result, nil
}

// GradeResult is the outcome of a full compatibility analysis.
type GradeResult struct {
	Grade     string `json:"grade"` // A..F
	Reasoning string `json:"reasoning"`
	Report    string `json:"report"`
}

const gradeSystem = `You evaluate local businesses as acquisition candidates.
Given a business's scraped website content, assign a compatibility grade
from A (excellent fit) to F (not a fit), explain the grade, and write a
short research report covering ownership, services, scale, and web presence.
Respond with a single JSON object:
{"grade":"A"|"B"|"C"|"D"|"F","reasoning":"...","report":"..."}`

// GradeLead analyzes scraped website content and returns a grade with a
// research report.
func (a *Analyzer) GradeLead(ctx context.Context, name, website, content string) (*GradeResult, error) {
	prompt := fmt.Sprintf("Business name: %s\nWebsite: %s\n\nScraped content:\n%s", name, website, content)

	resp, err := a.client.CreateMessage(ctx, MessageRequest{
		Model:     a.gradeModel,
		MaxTokens: a.maxTokens,
		System: []SystemBlock{
			{Text: gradeSystem, CacheControl: &CacheControl{TTL: "5m"}},
		},
		Messages: []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "anthropic: grade %s", name)
	}
	resp.Usage.LogCost(a.gradeModel, "grade")

	var result GradeResult
	if err := unmarshalResponse(resp.Text(), &result); err != nil {
		return nil, eris.Wrapf(err, "anthropic: parse grade for %s", name)
	}
	switch result.Grade {
	case "A", "B", "C", "D", "F":
	default:
		return nil, eris.Errorf("anthropic: unexpected grade %q for %s", result.Grade, name)
	}
	return &result, nil
}

const deepResearchSystem = `You expand an existing business research report.
Given a business's scraped website content and its prior report, produce a
deeper report: competitive landscape, growth signals, succession risk, and
anything material the first pass missed. Respond with the report text only.`

// DeepResearch produces a supplementary report for an already-graded lead.
func (a *Analyzer) DeepResearch(ctx context.Context, name, content, priorReport string) (string, error) {
	prompt := fmt.Sprintf("Business name: %s\n\nPrior report:\n%s\n\nScraped content:\n%s", name, priorReport, content)

	resp, err := a.client.CreateMessage(ctx, MessageRequest{
		Model:     a.gradeModel,
		MaxTokens: a.maxTokens,
		System:    []SystemBlock{{Text: deepResearchSystem}},
		Messages:  []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", eris.Wrapf(err, "anthropic: deep research %s", name)
	}
	resp.Usage.LogCost(a.gradeModel, "deep_research")

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.Errorf("anthropic: empty deep research response for %s", name)
	}
	return text, nil
}

// unmarshalResponse parses a JSON object from a model response, tolerating
// markdown code fences and prose around the object.
func unmarshalResponse(text string, out any) error {
	cleaned := extractJSON(text)
	if cleaned == "" {
		return eris.New("no JSON object in response")
	}
	return eris.Wrap(json.Unmarshal([]byte(cleaned), out), "unmarshal model response")
}

func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip a markdown code fence if present.
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		} else {
			text = rest
		}
		text = strings.TrimSpace(text)
	}

	// Fall back to the outermost braces.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
