package chat

import (
	"sort"
	"sync"
)

// Store holds the ordered conversation list and the mirror of the
// currently-open conversation. It is the only writer of unread
// counters; the rendering layer sees copies only.
type Store struct {
	mu     sync.RWMutex
	order  []*Conversation
	byID   map[string]*Conversation
	active string
}

// NewStore creates an empty conversation store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*Conversation)}
}

// UpsertFromList replaces the whole list, as after a filtered or
// searched fetch. Unread counters and pinned flags come from the
// server payload. The active conversation keeps a zero counter even
// if the server still reports unread for it.
func (s *Store) UpsertFromList(convs []Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = s.order[:0]
	s.byID = make(map[string]*Conversation, len(convs))
	for i := range convs {
		c := cloneConversation(&convs[i])
		if c.ID == s.active {
			c.Unread = 0
		}
		s.order = append(s.order, c)
		s.byID[c.ID] = c
	}
	s.resort()
}

// ApplyNewConversation inserts a conversation discovered from a live
// event. Existing entries are left untouched.
func (s *Store) ApplyNewConversation(conv Conversation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[conv.ID]; ok {
		return false
	}
	c := cloneConversation(&conv)
	s.order = append(s.order, c)
	s.byID[c.ID] = c
	s.resort()
	return true
}

// ApplyInboundMessage updates the last-message snapshot and the unread
// counter for a message that arrived over the live channel, then
// resorts so the conversation jumps to the top. The counter increments
// only for remote-counterparty messages in a non-open conversation;
// if the conversation is the open one it is forced read instead.
// Returns true when the message landed in the open conversation.
func (s *Store) ApplyInboundMessage(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[msg.ConversationID]
	if !ok {
		// First discovery via live message.
		c = &Conversation{
			ID:        msg.ConversationID,
			Status:    StatusActive,
			CreatedAt: msg.Timestamp,
		}
		s.order = append(s.order, c)
		s.byID[c.ID] = c
	}

	snap := msg
	c.LastMessage = &snap
	c.LastActivity = msg.Timestamp

	open := c.ID == s.active
	if open {
		c.Unread = 0
	} else if msg.Origin == OriginRemote {
		c.Unread++
	}
	s.resort()
	return open
}

// ApplyOutboundMessage updates the last-message snapshot for a locally
// originated message (optimistic placeholder or its confirmation) and
// resorts. Unread is never touched on this path.
func (s *Store) ApplyOutboundMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[msg.ConversationID]
	if !ok {
		return
	}
	snap := msg
	c.LastMessage = &snap
	c.LastActivity = msg.Timestamp
	s.resort()
}

// MarkConversationRead zeroes the unread counter.
func (s *Store) MarkConversationRead(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[id]; ok {
		c.Unread = 0
	}
}

// SetActive records the currently-open conversation and forces its
// counter to zero. An empty id means no conversation is open.
func (s *Store) SetActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = id
	if c, ok := s.byID[id]; ok {
		c.Unread = 0
	}
}

// ActiveID returns the currently-open conversation id, or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Get returns a copy of one conversation.
func (s *Store) Get(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return Conversation{}, false
	}
	return *cloneConversation(c), true
}

// List returns a sorted snapshot of all conversations.
func (s *Store) List() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conversation, 0, len(s.order))
	for _, c := range s.order {
		out = append(out, *cloneConversation(c))
	}
	return out
}

// resort applies the display order: pinned before unpinned, then
// descending last activity. The sort is stable, so re-applying it to
// an already-sorted list changes nothing. Callers hold s.mu.
func (s *Store) resort() {
	sort.SliceStable(s.order, func(i, j int) bool {
		a, b := s.order[i], s.order[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		return activityOf(a) > activityOf(b)
	})
}

func activityOf(c *Conversation) int64 {
	if c.LastActivity != 0 {
		return c.LastActivity
	}
	return c.CreatedAt
}

func cloneConversation(c *Conversation) *Conversation {
	out := *c
	if c.LastMessage != nil {
		snap := *c.LastMessage
		out.LastMessage = &snap
	}
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	return &out
}
