package transport

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

// Router maps inbound event names to handlers. Subscribers register by name
// with Handle; the Hub publishes every decoded frame through Dispatch.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for event, replacing any previous handler.
func (r *Router) Handle(event string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = fn
}

// Events returns the registered event names, sorted.
func (r *Router) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]string, 0, len(r.handlers))
	for e := range r.handlers {
		events = append(events, e)
	}
	slices.Sort(events)
	return events
}

// Dispatch runs the handler registered for f.Event. It returns an error
// wrapping ErrUnknownEvent when none is registered, or the handler's error.
func (r *Router) Dispatch(ctx context.Context, c Client, f Frame) error {
	r.mu.RLock()
	fn, ok := r.handlers[f.Event]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
	return fn(ctx, c, f.Payload)
}
