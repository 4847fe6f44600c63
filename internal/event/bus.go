package event

import (
	"context"
	"log/slog"
	"sync"
)

// Handler processes one delivered envelope. Returning an error logs
// the failure; delivery to other subscribers is unaffected.
type Handler func(ctx context.Context, env *Envelope) error

// Bus routes envelopes from publishers to subscribers.
type Bus interface {
	// Publish delivers the envelope to all subscribers of its type.
	Publish(ctx context.Context, env *Envelope) error

	// Subscribe registers a handler for an event type.
	Subscribe(eventType string, handler Handler)

	// Close stops delivery. Publish after Close is a no-op.
	Close() error
}

// InMemoryBus is a synchronous in-process bus. Handlers run on the
// publisher's goroutine in subscription order; a handler error is
// logged and does not stop delivery to the remaining handlers.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool
}

var _ Bus = (*InMemoryBus)(nil)

// NewInMemoryBus creates an empty bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for an event type.
func (b *InMemoryBus) Subscribe(eventType string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish delivers the envelope to all subscribers of its type.
func (b *InMemoryBus) Publish(ctx context.Context, env *Envelope) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	handlers := make([]Handler, len(b.handlers[env.EventType]))
	copy(handlers, b.handlers[env.EventType])
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, env); err != nil {
			slog.Error("event handler failed",
				slog.String("event_type", env.EventType),
				slog.String("event_id", env.EventID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// Close stops delivery. Idempotent.
func (b *InMemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
