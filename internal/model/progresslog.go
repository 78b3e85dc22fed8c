package model

import "time"

// ProgressLogEntry is one append-only audit record for a run.
type ProgressLogEntry struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	EventType string         `json:"event_type"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
