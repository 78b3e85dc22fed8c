package dispatch

import (
	"sync"
	"time"

	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// DeadLetterEntry records an event that exhausted its retries, so an
// operator can inspect and replay it.
type DeadLetterEntry struct {
	Event      Event     `json:"event"`
	Error      string    `json:"error"`
	ErrorType  string    `json:"error_type"` // "transient" or "permanent"
	Attempts   int       `json:"attempts"`
	FailedAt   time.Time `json:"failed_at"`
}

// DeadLetter is an in-memory queue of failed events.
type DeadLetter struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
}

func NewDeadLetter() *DeadLetter {
	return &DeadLetter{}
}

func (q *DeadLetter) Push(evt Event, err error, attempts int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, DeadLetterEntry{
		Event:     evt,
		Error:     err.Error(),
		ErrorType: resilience.ClassifyError(err),
		Attempts:  attempts,
		FailedAt:  time.Now().UTC(),
	})
}

// Drain returns all entries and empties the queue.
func (q *DeadLetter) Drain() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := q.entries
	q.entries = nil
	return entries
}

// Len returns the number of queued entries.
func (q *DeadLetter) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
