// Package bus provides the in-process publish/subscribe channel that the
// hook controller routes lifecycle events through. Each controller owns its
// own Bus instance; nothing here is process-global, so multiple controllers
// in one process stay isolated.
package bus

import (
	"context"
	"sync"
)

// Event is one named occurrence with its payload.
type Event struct {
	Name    string
	Payload map[string]any
}

// Handler receives an event. Handlers may perform blocking work; Emit waits
// for every handler of one emission before returning.
type Handler func(ctx context.Context, evt Event)

// Logger is the minimal interface the bus reports isolated handler
// failures through.
type Logger interface {
	Printf(format string, v ...any)
}

// Subscription identifies one registered handler for Unsubscribe.
type Subscription struct {
	event string
	id    uint64
}

type subscriber struct {
	id uint64
	fn Handler
}

// Bus routes emitted events to subscribers synchronously, in subscription
// order. A panicking handler is recovered and reported so it cannot prevent
// later handlers from running.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscriber
	closed bool
	logger Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger handler failures are reported to.
func WithLogger(l Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{subs: make(map[string][]subscriber)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for the named event and returns its
// subscription handle. Subscribing to a closed bus returns a handle that is
// never invoked.
func (b *Bus) Subscribe(event string, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := Subscription{event: event, id: b.nextID}
	if !b.closed {
		b.subs[event] = append(b.subs[event], subscriber{id: sub.id, fn: fn})
	}
	return sub
}

// Unsubscribe removes the handler registered under sub. Unknown handles are
// ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.event]
	for i, s := range subs {
		if s.id == sub.id {
			b.subs[sub.event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit delivers evt to all current subscribers of evt.Name in subscription
// order and returns once every handler has run. Zero subscribers is a no-op.
// The subscriber snapshot is taken up front, so handlers may subscribe or
// unsubscribe without deadlocking, and unrelated emissions are never
// blocked.
func (b *Bus) Emit(ctx context.Context, evt Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]subscriber, len(b.subs[evt.Name]))
	copy(subs, b.subs[evt.Name])
	b.mu.RUnlock()

	for _, s := range subs {
		b.invoke(ctx, s, evt)
	}
}

func (b *Bus) invoke(ctx context.Context, s subscriber, evt Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Printf("bus: handler panic on %s: %v", evt.Name, r)
		}
	}()
	s.fn(ctx, evt)
}

// Close drops all subscribers and rejects further emissions. Safe to call
// more than once. Emissions already in flight finish with the snapshot they
// took; nothing new is delivered after Close returns.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subs = make(map[string][]subscriber)
}
