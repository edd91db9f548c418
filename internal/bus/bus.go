package bus

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Bus is an in-process publish/subscribe event bus with namespace-prefix
// filtering. Delivery is non-blocking: a subscriber whose buffer is full
// misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscriber
	next int
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if strings.HasPrefix(evt.Kind, s.prefix) {
			select {
			case s.ch <- evt:
			default:
				// Subscriber buffer full, drop.
			}
		}
	}
}

// Emit is shorthand for Publish with the current timestamp.
func (b *Bus) Emit(kind string, payload any) {
	b.Publish(Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// Subscribe registers a subscriber for event kinds starting with prefix.
// Returns the receive channel and an unsubscribe function.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscriber{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Waiter is a scoped subscription for expecting specific events. Cancel
// tears the subscription down; once canceled, later events can never
// reach the waiter. This replaces manual one-shot listener registration
// where a forgotten teardown leaks listeners.
type Waiter struct {
	C      <-chan Event
	cancel func()
}

// Wait blocks for the next event or until ctx expires.
func (w *Waiter) Wait(ctx context.Context) (Event, bool) {
	select {
	case evt := <-w.C:
		return evt, true
	case <-ctx.Done():
		return Event{}, false
	}
}

// Cancel removes the subscription. Safe to call more than once.
func (w *Waiter) Cancel() {
	w.cancel()
}

// Expect subscribes for events matching prefix before the caller triggers
// the action that produces them, closing the race between emit and
// subscribe.
func (b *Bus) Expect(prefix string) *Waiter {
	ch, unsub := b.Subscribe(prefix, 4)
	return &Waiter{C: ch, cancel: unsub}
}

// WaitFor blocks until one event matching prefix arrives or ctx expires.
// The subscription exists only for the duration of the call.
func (b *Bus) WaitFor(ctx context.Context, prefix string) (Event, bool) {
	w := b.Expect(prefix)
	defer w.Cancel()
	return w.Wait(ctx)
}
