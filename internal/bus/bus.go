package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus is an in-process publish/subscribe event bus. Subscriptions are
// keyed by a namespace prefix ("gw.", "message.", "" for everything);
// delivery is non-blocking and events to a full subscriber are dropped.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Publish delivers evt to every subscriber whose prefix matches
// evt.Kind. A zero At is stamped with the current time.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !strings.HasPrefix(evt.Kind, s.prefix) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			// Slow subscriber; drop rather than block publishers.
		}
	}
}

// Emit is shorthand for Publish with just a kind and payload.
func (b *Bus) Emit(kind string, payload any) {
	b.Publish(Event{Kind: kind, Payload: payload})
}

// Subscribe registers a subscriber for all events whose kind starts
// with prefix. It returns the delivery channel and a cancel function;
// cancel is idempotent, closes the channel, and is safe to call
// concurrently with Publish.
func (b *Bus) Subscribe(prefix string, buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscriber{prefix: prefix, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			// No publisher can hold a reference past the delete, so
			// closing here lets range loops over ch terminate.
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}
