// Package events provides an in-process bus for claim domain events.
package events

import (
	"sync"

	domain "github.com/proffesor-for-testing/agentic-qe-sub013/internal/domain/claims"
)

// Handler is invoked synchronously on Emit, in registration order. A
// handler that must not block the emitter should hand off internally.
type Handler func(event domain.Event)

// Bus fans claim domain events out to handlers and subscriber channels.
// Handlers are the reliable path; channel delivery is best effort (a full
// subscriber buffer drops, so delivery overall is at-least-once only for
// handlers and dashboards must treat the stream as lossy and idempotent).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[domain.EventKind][]chan domain.Event
	handlers    map[domain.EventKind][]Handler
	bufferSize  int
	closed      bool
}

// wildcard receives every event kind.
const wildcard domain.EventKind = "*"

// Option configures the Bus.
type Option func(*Bus)

// WithBufferSize sets the subscriber channel buffer size.
func WithBufferSize(size int) Option {
	return func(b *Bus) {
		b.bufferSize = size
	}
}

// New creates a new Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscribers: make(map[domain.EventKind][]chan domain.Event),
		handlers:    make(map[domain.EventKind][]Handler),
		bufferSize:  100,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe creates a channel receiving events of the given kind.
func (b *Bus) Subscribe(kind domain.EventKind) <-chan domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan domain.Event, b.bufferSize)
	b.subscribers[kind] = append(b.subscribers[kind], ch)
	return ch
}

// SubscribeAll creates a channel receiving every event.
func (b *Bus) SubscribeAll() <-chan domain.Event {
	return b.Subscribe(wildcard)
}

// On registers a handler for events of the given kind.
func (b *Bus) On(kind domain.EventKind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], handler)
}

// OnAll registers a handler for every event.
func (b *Bus) OnAll(handler Handler) {
	b.On(wildcard, handler)
}

// Emit publishes an event to all handlers and subscribers.
func (b *Bus) Emit(event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subscribers[event.Kind] {
		select {
		case ch <- event:
		default:
			// subscriber buffer full, drop
		}
	}
	for _, ch := range b.subscribers[wildcard] {
		select {
		case ch <- event:
		default:
		}
	}

	for _, handler := range b.handlers[event.Kind] {
		handler(event)
	}
	for _, handler := range b.handlers[wildcard] {
		handler(event)
	}
}

// Close closes all subscriber channels and stops the bus.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	b.subscribers = make(map[domain.EventKind][]chan domain.Event)
	b.handlers = make(map[domain.EventKind][]Handler)
}
