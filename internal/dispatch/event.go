package dispatch

import (
	"time"

	"github.com/google/uuid"
)

// Event names understood by the pipeline controller.
const (
	EventRunCreated           = "run.created"
	EventPrescreenTriggered   = "lead/prescreen.triggered"
	EventResearchTriggered    = "lead/research.triggered"
	EventResearchAllTriggered = "lead/research-all.triggered"
	EventDeepResearch         = "lead/deep-research.triggered"
	EventDeepResearchMultiple = "lead/deep-research-multiple.triggered"
)

// Event is the unit of work flowing through a Dispatcher. RunID is set on
// every event; LeadID only on per-lead events. Payload carries event-specific
// parameters such as businessType or filterGrade.
type Event struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	RunID     string         `json:"run_id"`
	LeadID    string         `json:"lead_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEvent builds an event with a fresh ID and timestamp.
func NewEvent(name, runID string) Event {
	return Event{
		ID:        uuid.New().String(),
		Name:      name,
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
	}
}

// String returns a payload value as a string, or "" when absent.
func (e Event) String(key string) string {
	v, ok := e.Payload[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Strings returns a payload value as a string slice. JSON round-trips
// deliver []any, so both forms are accepted.
func (e Event) Strings(key string) []string {
	v, ok := e.Payload[key]
	if !ok {
		return nil
	}
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Int returns a payload value as an int, tolerating the float64 that JSON
// decoding produces.
func (e Event) Int(key string) int {
	v, ok := e.Payload[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
