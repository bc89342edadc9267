package chat

import "testing"

func TestSortPinnedBeforeUnpinned(t *testing.T) {
	s := NewStore()
	s.UpsertFromList([]Conversation{
		{ID: "a", LastActivity: 3000},
		{ID: "b", Pinned: true, LastActivity: 1000},
		{ID: "c", LastActivity: 2000},
		{ID: "d", Pinned: true, LastActivity: 2000},
	})

	got := s.List()
	want := []string{"d", "b", "a", "c"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("order[%d] = %q, want %q (full: %v)", i, got[i].ID, id, ids(got))
		}
	}
}

func TestSortIdempotent(t *testing.T) {
	s := NewStore()
	s.UpsertFromList([]Conversation{
		{ID: "a", LastActivity: 2000},
		{ID: "b", LastActivity: 2000},
		{ID: "c", LastActivity: 1000},
	})

	first := ids(s.List())
	// A read-only mutation pass should not shuffle equal-key entries.
	s.MarkConversationRead("a")
	second := ids(s.List())
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("sort not stable: %v then %v", first, second)
		}
	}
}

func TestCreatedAtFallbackWhenNoMessage(t *testing.T) {
	s := NewStore()
	s.UpsertFromList([]Conversation{
		{ID: "old", LastActivity: 1000},
		{ID: "fresh", CreatedAt: 5000}, // no message yet
	})
	got := s.List()
	if got[0].ID != "fresh" {
		t.Errorf("order = %v, want fresh first (created-at fallback)", ids(got))
	}
}

func TestInboundIncrementsUnreadForRemoteOnly(t *testing.T) {
	s := NewStore()
	s.UpsertFromList([]Conversation{{ID: "a"}, {ID: "b"}})

	s.ApplyInboundMessage(Message{ID: "m1", ConversationID: "b", Origin: OriginRemote, Timestamp: 1000})
	s.ApplyInboundMessage(Message{ID: "m2", ConversationID: "b", Origin: OriginLocal, Timestamp: 2000})
	s.ApplyInboundMessage(Message{ID: "m3", ConversationID: "b", Origin: OriginSystem, Timestamp: 3000})

	b, _ := s.Get("b")
	if b.Unread != 1 {
		t.Errorf("unread = %d, want 1 (only remote increments)", b.Unread)
	}
	a, _ := s.Get("a")
	if a.Unread != 0 {
		t.Errorf("conversation a unread = %d, want 0", a.Unread)
	}
}

func TestInboundWhileOpenStaysRead(t *testing.T) {
	s := NewStore()
	s.UpsertFromList([]Conversation{{ID: "a", Unread: 4}})
	s.SetActive("a")

	a, _ := s.Get("a")
	if a.Unread != 0 {
		t.Fatalf("unread after open = %d, want 0", a.Unread)
	}

	open := s.ApplyInboundMessage(Message{ID: "m1", ConversationID: "a", Origin: OriginRemote, Timestamp: 1000})
	if !open {
		t.Error("ApplyInboundMessage should report the conversation as open")
	}
	a, _ = s.Get("a")
	if a.Unread != 0 {
		t.Errorf("unread = %d, want 0 (open conversation never accumulates)", a.Unread)
	}
}

func TestInboundReordersToTop(t *testing.T) {
	s := NewStore()
	s.UpsertFromList([]Conversation{
		{ID: "a", LastActivity: 3000},
		{ID: "b", LastActivity: 1000},
	})

	s.ApplyInboundMessage(Message{ID: "m1", ConversationID: "b", Origin: OriginRemote, Timestamp: 9000})

	got := s.List()
	if got[0].ID != "b" {
		t.Errorf("order = %v, want b first after new activity", ids(got))
	}
	if got[0].LastMessage == nil || got[0].LastMessage.ID != "m1" {
		t.Error("last-message snapshot not updated")
	}
}

func TestInboundAutoCreatesUnknownConversation(t *testing.T) {
	s := NewStore()
	s.ApplyInboundMessage(Message{ID: "m1", ConversationID: "new", Origin: OriginRemote, Timestamp: 1000})

	c, ok := s.Get("new")
	if !ok {
		t.Fatal("conversation not auto-created")
	}
	if c.Unread != 1 {
		t.Errorf("unread = %d, want 1", c.Unread)
	}
}

func TestApplyNewConversationDoesNotClobber(t *testing.T) {
	s := NewStore()
	s.UpsertFromList([]Conversation{{ID: "a", Name: "Alice", Unread: 2}})

	if s.ApplyNewConversation(Conversation{ID: "a", Name: "other"}) {
		t.Error("existing conversation reported as inserted")
	}
	a, _ := s.Get("a")
	if a.Name != "Alice" || a.Unread != 2 {
		t.Errorf("existing conversation mutated: %+v", a)
	}

	if !s.ApplyNewConversation(Conversation{ID: "b", Name: "Bob"}) {
		t.Error("new conversation not inserted")
	}
}

func TestOutboundNeverTouchesUnread(t *testing.T) {
	s := NewStore()
	s.UpsertFromList([]Conversation{{ID: "a", Unread: 3, LastActivity: 1000}})

	s.ApplyOutboundMessage(Message{ID: "p1", ConversationID: "a", Origin: OriginLocal, Timestamp: 2000})

	a, _ := s.Get("a")
	if a.Unread != 3 {
		t.Errorf("unread = %d, want 3 (outbound path leaves the counter alone)", a.Unread)
	}
	if a.LastMessage == nil || a.LastMessage.ID != "p1" {
		t.Error("snapshot not updated by outbound message")
	}
}

func TestUpsertFromListKeepsActiveRead(t *testing.T) {
	s := NewStore()
	s.SetActive("a")
	s.UpsertFromList([]Conversation{{ID: "a", Unread: 7}})

	a, _ := s.Get("a")
	if a.Unread != 0 {
		t.Errorf("unread = %d, want 0 for the open conversation after refetch", a.Unread)
	}
}

func ids(convs []Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}
