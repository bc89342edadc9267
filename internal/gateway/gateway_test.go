package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/komsan13/chat-center-sub000/internal/bus"
	"github.com/komsan13/chat-center-sub000/internal/chat"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// testServer accepts one live-channel connection, pushes canned
// envelopes, and records intents written by the client.
type testServer struct {
	*httptest.Server
	push    chan []byte
	intents chan []byte
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		push:    make(chan []byte, 16),
		intents: make(chan []byte, 16),
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		go func() {
			for data := range ts.push {
				if c.Write(ctx, websocket.MessageText, data) != nil {
					return
				}
			}
		}()
		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			ts.intents <- data
		}
	}))
	t.Cleanup(ts.Server.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return strings.Replace(ts.URL, "http://", "ws://", 1)
}

func connect(t *testing.T, ts *testServer, b *bus.Bus) *Gateway {
	t.Helper()
	g := New(ts.wsURL(), "tok", b, zap.NewNop())
	if err := g.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(g.Disconnect)
	return g
}

func TestConnectPublishesState(t *testing.T) {
	b := bus.New()
	ch, cancel := b.Subscribe("conn.", 8)
	defer cancel()

	g := connect(t, newTestServer(t), b)

	select {
	case evt := <-ch:
		change := evt.Payload.(StateChange)
		if change.To != Connected {
			t.Errorf("state change to %q, want connected", change.To)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for conn.state_changed")
	}
	if g.State() != Connected {
		t.Errorf("State() = %q, want connected", g.State())
	}
}

func TestConnectIdempotent(t *testing.T) {
	g := connect(t, newTestServer(t), bus.New())
	if err := g.Connect(context.Background()); err != nil {
		t.Errorf("second Connect() error = %v", err)
	}
	if err := g.Reconnect(context.Background()); err != nil {
		t.Errorf("Reconnect() while connected error = %v", err)
	}
}

func TestInboundMessageDecoded(t *testing.T) {
	ts := newTestServer(t)
	b := bus.New()
	ch, cancel := b.Subscribe("gw.", 8)
	defer cancel()

	connect(t, ts, b)

	ts.push <- []byte(`{"type":"message.new","payload":{"id":"m1","conversationId":"c1","content":"hi","origin":"remote-counterparty","timestamp":1000}}`)

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindGatewayMessage {
			t.Fatalf("kind = %q, want gw.message", evt.Kind)
		}
		msg := evt.Payload.(chat.Message)
		if msg.ID != "m1" || msg.ConversationID != "c1" || msg.Origin != chat.OriginRemote {
			t.Errorf("decoded message = %+v", msg)
		}
		if msg.Type != chat.TypeText {
			t.Errorf("content type = %q, want text default", msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for gw.message")
	}
}

func TestInboundTypingAndReadDecoded(t *testing.T) {
	ts := newTestServer(t)
	b := bus.New()
	ch, cancel := b.Subscribe("gw.", 8)
	defer cancel()

	connect(t, ts, b)

	ts.push <- []byte(`{"type":"typing.changed","payload":{"conversationId":"c1","displayName":"Alice","isTyping":true}}`)
	ts.push <- []byte(`{"type":"conversation.read","payload":{"conversationId":"c1"}}`)

	var kinds []string
	for len(kinds) < 2 {
		select {
		case evt := <-ch:
			kinds = append(kinds, evt.Kind)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout, got kinds %v", kinds)
		}
	}
	if kinds[0] != bus.KindGatewayTyping || kinds[1] != bus.KindGatewayRead {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestMalformedEventsIgnored(t *testing.T) {
	ts := newTestServer(t)
	b := bus.New()
	ch, cancel := b.Subscribe("gw.", 8)
	defer cancel()

	connect(t, ts, b)

	ts.push <- []byte(`not json`)
	ts.push <- []byte(`{"type":"message.new","payload":{"content":"no id"}}`)
	ts.push <- []byte(`{"type":"something.else","payload":{}}`)
	ts.push <- []byte(`{"type":"message.new","payload":{"id":"ok","conversationId":"c1"}}`)

	select {
	case evt := <-ch:
		if evt.Payload.(chat.Message).ID != "ok" {
			t.Errorf("unexpected event: %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid event after garbage never arrived")
	}
}

func TestOutboundIntents(t *testing.T) {
	ts := newTestServer(t)
	g := connect(t, ts, bus.New())
	ctx := context.Background()

	if err := g.JoinConversation(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if err := g.SendTypingState(ctx, "c1", "op", true); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkRead(ctx, "c1", []string{"m1", "m2"}); err != nil {
		t.Fatal(err)
	}
	if err := g.BroadcastRead(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	want := []string{"conversation.join", "typing.changed", "conversation.mark_read", "conversation.read_broadcast"}
	for _, kind := range want {
		select {
		case data := <-ts.intents:
			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatal(err)
			}
			if env.Type != kind {
				t.Errorf("intent type = %q, want %q", env.Type, kind)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %q intent", kind)
		}
	}
}

func TestIntentWhileDisconnectedDropped(t *testing.T) {
	g := New("ws://127.0.0.1:0", "", bus.New(), zap.NewNop())
	if err := g.JoinConversation(context.Background(), "c1"); err != ErrNotConnected {
		t.Errorf("error = %v, want ErrNotConnected", err)
	}
}

func TestDisconnectIsFinal(t *testing.T) {
	ts := newTestServer(t)
	b := bus.New()
	g := connect(t, ts, b)

	ch, cancel := b.Subscribe("conn.", 8)
	defer cancel()

	g.Disconnect()

	select {
	case evt := <-ch:
		if evt.Payload.(StateChange).To != Disconnected {
			t.Errorf("state = %+v, want disconnected", evt.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for disconnect state")
	}
	if g.State() != Disconnected {
		t.Errorf("State() = %q", g.State())
	}
}
