package typing

import (
	"sync"
	"time"

	"github.com/komsan13/chat-center-sub000/internal/bus"
)

// DefaultExpiry is how long a remote typing entry lives without a
// refresh. It covers a counterparty that disconnects mid-type and
// never sends "stopped".
const DefaultExpiry = 3 * time.Second

// Remote tracks who is typing in each conversation. At most one entry
// exists per conversation; explicit "stopped" and timer expiry are
// equivalent and race-free because removal is idempotent.
type Remote struct {
	expiry time.Duration
	bus    *bus.Bus

	mu      sync.Mutex
	entries map[string]string // conversation id -> display name
	timers  map[string]*time.Timer
}

// NewRemote creates the remote typing map. A non-positive expiry
// selects the default. The bus may be nil in tests.
func NewRemote(expiry time.Duration, b *bus.Bus) *Remote {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Remote{
		expiry:  expiry,
		bus:     b,
		entries: make(map[string]string),
		timers:  make(map[string]*time.Timer),
	}
}

// Apply ingests a typing event from the live channel. A "started"
// inserts or refreshes the entry and re-arms its expiry; a "stopped"
// removes it.
func (r *Remote) Apply(conversationID, displayName string, typing bool) {
	if typing {
		r.mu.Lock()
		r.entries[conversationID] = displayName
		if t, ok := r.timers[conversationID]; ok {
			t.Stop()
		}
		r.timers[conversationID] = time.AfterFunc(r.expiry, func() {
			r.remove(conversationID)
		})
		r.mu.Unlock()
		r.notify(conversationID)
		return
	}
	r.remove(conversationID)
}

// ActiveIn returns the display name typing in a conversation, if any.
func (r *Remote) ActiveIn(conversationID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.entries[conversationID]
	return name, ok
}

// Snapshot returns a copy of all active typing entries.
func (r *Remote) Snapshot() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// Close cancels every pending expiry timer.
func (r *Remote) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	r.entries = make(map[string]string)
}

// remove deletes an entry. Expiry firing right after an explicit
// "stopped" hits an absent entry and does nothing.
func (r *Remote) remove(conversationID string) {
	r.mu.Lock()
	if t, ok := r.timers[conversationID]; ok {
		t.Stop()
		delete(r.timers, conversationID)
	}
	_, existed := r.entries[conversationID]
	delete(r.entries, conversationID)
	r.mu.Unlock()

	if existed {
		r.notify(conversationID)
	}
}

func (r *Remote) notify(conversationID string) {
	if r.bus != nil {
		r.bus.Emit(bus.KindTypingChanged, conversationID)
	}
}
