// Package gateway owns the live-event channel. It hides every
// transport detail behind typed bus events and outbound intents;
// nothing else in the daemon touches the WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/komsan13/chat-center-sub000/internal/bus"
	"github.com/komsan13/chat-center-sub000/internal/metrics"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ErrNotConnected is returned for intents issued while the channel is
// down. Intents are not queued: the UI reconnects and the user retries.
var ErrNotConnected = errors.New("live channel not connected")

// Gateway maintains the WebSocket to the back office, decodes inbound
// envelopes into typed bus events, and carries outbound intents.
// Reconnection with backoff is automatic; Reconnect is the manual
// escape hatch.
type Gateway struct {
	url    string
	token  string
	bus    *bus.Bus
	logger *zap.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	state       State
	intentional bool
	cancel      context.CancelFunc

	recon *reconnector
}

// New creates a gateway for the given live-channel URL.
func New(url, token string, b *bus.Bus, logger *zap.Logger) *Gateway {
	return &Gateway{
		url:    url,
		token:  token,
		bus:    b,
		logger: logger,
		state:  Disconnected,
		recon:  newReconnector(),
	}
}

// State returns the current connection state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Connect dials the live channel and starts the read loop. Calling it
// while connected is a no-op.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	if g.conn != nil {
		g.mu.Unlock()
		return nil
	}
	g.intentional = false
	g.mu.Unlock()

	hdr := http.Header{}
	if g.token != "" {
		hdr.Set("Authorization", "Bearer "+g.token)
	}
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.Dial(dialCtx, g.url, &websocket.DialOptions{HTTPHeader: hdr})
	cancel()
	if err != nil {
		return fmt.Errorf("dial live channel: %w", err)
	}
	// Historic conversations can carry large media payloads.
	conn.SetReadLimit(1 << 20)

	loopCtx, loopCancel := context.WithCancel(context.Background())
	g.mu.Lock()
	g.conn = conn
	g.cancel = loopCancel
	g.mu.Unlock()

	g.recon.markConnected()
	g.setState(Connected)
	g.logger.Info("live channel connected", zap.String("url", g.url))

	go g.readLoop(loopCtx, conn)
	return nil
}

// Reconnect forces a fresh connection attempt. Safe to call while
// already connected (no-op) and while the automatic loop is running
// (resets the backoff and dials immediately).
func (g *Gateway) Reconnect(ctx context.Context) error {
	g.mu.Lock()
	if g.conn != nil {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	g.recon.reset()
	return g.Connect(ctx)
}

// Disconnect tears the channel down for good. Used on daemon stop.
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	g.intentional = true
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	conn := g.conn
	g.conn = nil
	g.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "daemon stopping")
	}
	g.setState(Disconnected)
	g.logger.Info("live channel disconnected")
}

// JoinConversation subscribes this session to a conversation's events.
func (g *Gateway) JoinConversation(ctx context.Context, conversationID string) error {
	return g.send(ctx, command{Type: wireJoin, Payload: map[string]string{
		"conversationId": conversationID,
	}})
}

// MarkRead tells the server which messages this session has read.
func (g *Gateway) MarkRead(ctx context.Context, conversationID string, messageIDs []string) error {
	return g.send(ctx, command{Type: wireMarkRead, Payload: map[string]any{
		"conversationId": conversationID,
		"messageIds":     messageIDs,
	}})
}

// SendTypingState emits the local typing indicator.
func (g *Gateway) SendTypingState(ctx context.Context, conversationID, displayName string, typing bool) error {
	metrics.TypingEventsTotal.WithLabelValues("outbound").Inc()
	return g.send(ctx, command{Type: wireTyping, Payload: TypingEvent{
		ConversationID: conversationID,
		DisplayName:    displayName,
		Typing:         typing,
	}})
}

// BroadcastRead propagates a local read action to sibling sessions of
// the same operator.
func (g *Gateway) BroadcastRead(ctx context.Context, conversationID string) error {
	return g.send(ctx, command{Type: wireReadBroadcast, Payload: ReadEvent{
		ConversationID: conversationID,
	}})
}

func (g *Gateway) send(ctx context.Context, cmd command) error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write intent: %w", err)
	}
	return nil
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			g.mu.Lock()
			intentional := g.intentional
			if g.conn == conn {
				g.conn = nil
			}
			g.mu.Unlock()

			if intentional || ctx.Err() != nil {
				return
			}
			g.logger.Warn("live channel dropped", zap.Error(err))
			g.setState(Reconnecting)
			g.reconnectLoop(ctx)
			return
		}
		g.dispatch(data)
	}
}

// reconnectLoop retries with backoff until the channel is back or the
// gateway is torn down.
func (g *Gateway) reconnectLoop(ctx context.Context) {
	for {
		delay := g.recon.nextDelay()
		g.logger.Info("reconnecting live channel",
			zap.Duration("delay", delay),
			zap.Int("attempt", g.recon.attempt))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		metrics.ReconnectsTotal.Inc()
		if err := g.Connect(context.Background()); err == nil {
			return
		}

		g.mu.Lock()
		intentional := g.intentional
		g.mu.Unlock()
		if intentional {
			return
		}
	}
}

func (g *Gateway) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		g.logger.Warn("undecodable live event", zap.Error(err))
		return
	}

	switch env.Type {
	case wireMessageNew:
		var m wireMessage
		if json.Unmarshal(env.Payload, &m) != nil || m.ID == "" {
			return
		}
		g.bus.Emit(bus.KindGatewayMessage, m.toMessage())
	case wireConversationNew:
		var c wireConversation
		if json.Unmarshal(env.Payload, &c) != nil || c.ID == "" {
			return
		}
		g.bus.Emit(bus.KindGatewayConversation, c.toConversation())
	case wireTypingChanged:
		var t TypingEvent
		if json.Unmarshal(env.Payload, &t) != nil || t.ConversationID == "" {
			return
		}
		metrics.TypingEventsTotal.WithLabelValues("inbound").Inc()
		g.bus.Emit(bus.KindGatewayTyping, t)
	case wireConversationRead:
		var r ReadEvent
		if json.Unmarshal(env.Payload, &r) != nil || r.ConversationID == "" {
			return
		}
		g.bus.Emit(bus.KindGatewayRead, r)
	default:
		// Unknown kinds are forward-compatible noise.
	}
}

func (g *Gateway) setState(to State) {
	g.mu.Lock()
	from := g.state
	g.state = to
	g.mu.Unlock()
	if from == to {
		return
	}
	g.bus.Emit(bus.KindConnStateChanged, StateChange{From: from, To: to})
}
