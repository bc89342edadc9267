package chat

import (
	"sort"
	"sync"
)

// Cache is the per-conversation message cache. Entries are ordered by
// creation timestamp, with insertion order breaking ties, and message
// identities are unique within a conversation regardless of whether an
// entry arrived via seed page, full history load, or live push.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]entry
	seen    map[string]map[string]struct{}
	nextSeq uint64
}

type entry struct {
	msg Message
	seq uint64
}

// NewCache creates an empty message cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string][]entry),
		seen:    make(map[string]map[string]struct{}),
	}
}

// Seed loads the small recent-message page delivered inline with the
// conversation list. Messages already cached are skipped, so seeding
// after a live push never duplicates or reorders anything.
func (c *Cache) Seed(conversationID string, msgs []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		c.insert(conversationID, m)
	}
}

// Append adds one message, from either an optimistic local send or a
// live push. It is a no-op when the identity is already cached.
// Returns true when the message was inserted.
func (c *Cache) Append(conversationID string, msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insert(conversationID, msg)
}

// ReconcileHistory applies the result of a full history fetch. The
// fetched page replaces the cache only when it is strictly larger than
// what is cached, so a stale server page never discards a fresher
// local append. Cached messages missing from the page (a live push
// that raced the fetch) are carried over. Returns true when the cache
// was replaced.
func (c *Cache) ReconcileHistory(conversationID string, msgs []Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.entries[conversationID]
	if len(msgs) <= len(current) {
		return false
	}

	inPage := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		inPage[m.ID] = struct{}{}
	}

	c.entries[conversationID] = nil
	c.seen[conversationID] = make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		c.insert(conversationID, m)
	}
	for _, e := range current {
		if _, ok := inPage[e.msg.ID]; !ok {
			c.insert(conversationID, e.msg)
		}
	}
	return true
}

// ReplacePlaceholder swaps a placeholder for its server-confirmed
// message in a single in-place update: same slot, no remove-reinsert,
// so the rendering layer never observes a flicker or reorder. The
// temporary identity is retired and never reused. Returns false when
// the placeholder is no longer present.
func (c *Cache) ReplacePlaceholder(conversationID, placeholderID string, confirmed Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, ok := c.seen[conversationID]
	if !ok {
		return false
	}
	if _, ok := ids[placeholderID]; !ok {
		return false
	}
	if _, dup := ids[confirmed.ID]; dup && confirmed.ID != placeholderID {
		// A live echo of the confirmed message already landed; the
		// placeholder is redundant and simply goes away.
		c.removeLocked(conversationID, placeholderID)
		return true
	}

	list := c.entries[conversationID]
	for i := range list {
		if list[i].msg.ID == placeholderID {
			list[i].msg = confirmed
			delete(ids, placeholderID)
			ids[confirmed.ID] = struct{}{}
			return true
		}
	}
	return false
}

// Remove deletes a message by identity. Used to discard a placeholder
// after a failed send. Returns false when the id is not cached.
func (c *Cache) Remove(conversationID, msgID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(conversationID, msgID)
}

// Contains reports whether the identity is cached for a conversation.
func (c *Cache) Contains(conversationID, msgID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.seen[conversationID][msgID]
	return ok
}

// Len returns the number of cached messages for a conversation.
func (c *Cache) Len(conversationID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries[conversationID])
}

// Messages returns an ordered snapshot of a conversation's messages.
func (c *Cache) Messages(conversationID string) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := c.entries[conversationID]
	out := make([]Message, len(list))
	for i, e := range list {
		out[i] = e.msg
	}
	return out
}

// insert adds msg unless its identity is already present, keeping the
// slice ordered by (timestamp, insertion order). Callers hold c.mu.
func (c *Cache) insert(conversationID string, msg Message) bool {
	ids := c.seen[conversationID]
	if ids == nil {
		ids = make(map[string]struct{})
		c.seen[conversationID] = ids
	}
	if _, ok := ids[msg.ID]; ok {
		return false
	}
	ids[msg.ID] = struct{}{}

	c.nextSeq++
	list := append(c.entries[conversationID], entry{msg: msg, seq: c.nextSeq})
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].msg.Timestamp != list[j].msg.Timestamp {
			return list[i].msg.Timestamp < list[j].msg.Timestamp
		}
		return list[i].seq < list[j].seq
	})
	c.entries[conversationID] = list
	return true
}

func (c *Cache) removeLocked(conversationID, msgID string) bool {
	ids, ok := c.seen[conversationID]
	if !ok {
		return false
	}
	if _, ok := ids[msgID]; !ok {
		return false
	}
	delete(ids, msgID)
	list := c.entries[conversationID]
	for i := range list {
		if list[i].msg.ID == msgID {
			c.entries[conversationID] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}
