package dispatch

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// Handler processes one event. A returned error signals an infrastructure
// failure worth retrying; business-logic outcomes (failed leads, skipped
// prescreens) are recorded in the store and do not surface here.
type Handler func(ctx context.Context, evt Event) error

// Dispatcher delivers events to their registered handlers, possibly
// asynchronously.
type Dispatcher interface {
	Send(ctx context.Context, evt Event) error
}

// Registry maps event names to handlers. Registration happens once at
// startup; lookups are concurrent.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Handler returns the handler for name, or an error for unknown events.
func (r *Registry) Handler(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, eris.Errorf("dispatch: no handler registered for event %q", name)
	}
	return h, nil
}

// Names returns the registered event names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
