package typing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/komsan13/chat-center-sub000/internal/bus"
)

// recordingEmitter records typing intents in order.
type recordingEmitter struct {
	mu    sync.Mutex
	calls []intentCall
}

type intentCall struct {
	ConversationID string
	Name           string
	Typing         bool
}

func (e *recordingEmitter) SendTypingState(_ context.Context, conversationID, name string, typing bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, intentCall{conversationID, name, typing})
	return nil
}

func (e *recordingEmitter) snapshot() []intentCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]intentCall(nil), e.calls...)
}

// Typing "h", "he", "hel" in quick succession, then pausing past the
// quiet period, emits exactly one started and one stopped intent.
func TestLocalDebounce(t *testing.T) {
	e := &recordingEmitter{}
	l := NewLocal(e, "op", 150*time.Millisecond, nil)

	for _, content := range []string{"h", "he", "hel"} {
		l.InputChanged("c1", content)
		time.Sleep(30 * time.Millisecond)
	}

	time.Sleep(300 * time.Millisecond)

	calls := e.snapshot()
	if len(calls) != 2 {
		t.Fatalf("got %d intents, want 2: %v", len(calls), calls)
	}
	if !calls[0].Typing || calls[0].ConversationID != "c1" || calls[0].Name != "op" {
		t.Errorf("first intent = %+v, want started", calls[0])
	}
	if calls[1].Typing {
		t.Errorf("second intent = %+v, want stopped", calls[1])
	}
}

func TestLocalEmptyInputDoesNotStart(t *testing.T) {
	e := &recordingEmitter{}
	l := NewLocal(e, "op", 50*time.Millisecond, nil)

	l.InputChanged("c1", "   ")
	time.Sleep(120 * time.Millisecond)

	if calls := e.snapshot(); len(calls) != 0 {
		t.Errorf("got intents for empty content: %v", calls)
	}
}

func TestLocalStopBypassesTimer(t *testing.T) {
	e := &recordingEmitter{}
	l := NewLocal(e, "op", time.Hour, nil)

	l.InputChanged("c1", "hello")
	l.Stop("c1") // send happens now

	calls := e.snapshot()
	if len(calls) != 2 || !calls[0].Typing || calls[1].Typing {
		t.Fatalf("intents = %v, want started then stopped", calls)
	}

	// A later quiet-timer fire or second Stop must not re-emit.
	l.Stop("c1")
	time.Sleep(50 * time.Millisecond)
	if calls := e.snapshot(); len(calls) != 2 {
		t.Errorf("extra intents after idempotent stop: %v", calls)
	}
}

func TestLocalNewBurstAfterStop(t *testing.T) {
	e := &recordingEmitter{}
	l := NewLocal(e, "op", time.Hour, nil)

	l.InputChanged("c1", "first")
	l.Stop("c1")
	l.InputChanged("c1", "second")
	l.StopAll()

	calls := e.snapshot()
	want := []bool{true, false, true, false}
	if len(calls) != len(want) {
		t.Fatalf("got %d intents, want %d: %v", len(calls), len(want), calls)
	}
	for i, typing := range want {
		if calls[i].Typing != typing {
			t.Errorf("intent[%d].Typing = %v, want %v", i, calls[i].Typing, typing)
		}
	}
}

func TestLocalPerConversationState(t *testing.T) {
	e := &recordingEmitter{}
	l := NewLocal(e, "op", time.Hour, nil)

	l.InputChanged("c1", "a")
	l.InputChanged("c2", "b")
	l.Stop("c1")

	calls := e.snapshot()
	if len(calls) != 3 {
		t.Fatalf("intents = %v", calls)
	}
	if calls[2].ConversationID != "c1" || calls[2].Typing {
		t.Errorf("stop intent = %+v, want c1 stopped", calls[2])
	}
}

func TestRemoteEntryExpires(t *testing.T) {
	r := NewRemote(80*time.Millisecond, nil)
	defer r.Close()

	r.Apply("c1", "Alice", true)
	if name, ok := r.ActiveIn("c1"); !ok || name != "Alice" {
		t.Fatalf("ActiveIn = %q,%v", name, ok)
	}

	time.Sleep(160 * time.Millisecond)
	if _, ok := r.ActiveIn("c1"); ok {
		t.Error("entry did not auto-expire")
	}
}

func TestRemoteRefreshResetsExpiry(t *testing.T) {
	r := NewRemote(120*time.Millisecond, nil)
	defer r.Close()

	r.Apply("c1", "Alice", true)
	time.Sleep(80 * time.Millisecond)
	r.Apply("c1", "Alice", true) // refresh
	time.Sleep(80 * time.Millisecond)

	if _, ok := r.ActiveIn("c1"); !ok {
		t.Error("entry expired despite refresh")
	}
}

func TestRemoteExplicitStopAndExpiryDoNotRace(t *testing.T) {
	b := bus.New()
	ch, cancel := b.Subscribe("typing.", 16)
	defer cancel()

	r := NewRemote(60*time.Millisecond, b)
	defer r.Close()

	r.Apply("c1", "Alice", true)
	r.Apply("c1", "Alice", false) // explicit stop
	time.Sleep(120 * time.Millisecond) // any stale expiry fires into an absent entry

	// One started notification, one stopped notification, nothing more.
	var notifications int
	for {
		select {
		case <-ch:
			notifications++
		case <-time.After(50 * time.Millisecond):
			if notifications != 2 {
				t.Errorf("got %d typing.changed notifications, want 2", notifications)
			}
			return
		}
	}
}

func TestRemoteSingleEntryPerConversation(t *testing.T) {
	r := NewRemote(time.Hour, nil)
	defer r.Close()

	r.Apply("c1", "Alice", true)
	r.Apply("c1", "Bob", true) // later event replaces, never accumulates

	snap := r.Snapshot()
	if len(snap) != 1 || snap["c1"] != "Bob" {
		t.Errorf("snapshot = %v", snap)
	}
}
