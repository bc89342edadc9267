// Package sync ties the live channel, the REST backend, and the local
// state together. The engine is the only writer that reacts to gateway
// events; everything downstream observes the bus.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/komsan13/chat-center-sub000/internal/bus"
	"github.com/komsan13/chat-center-sub000/internal/chat"
	"github.com/komsan13/chat-center-sub000/internal/gateway"
	"github.com/komsan13/chat-center-sub000/internal/metrics"
	"github.com/komsan13/chat-center-sub000/internal/notify"
	"github.com/komsan13/chat-center-sub000/internal/typing"
	"go.uber.org/zap"
)

// Backend is the slice of the REST client the engine needs.
type Backend interface {
	ListConversations(ctx context.Context, filter, search string) ([]chat.Conversation, map[string][]chat.Message, error)
	FetchHistory(ctx context.Context, conversationID string) ([]chat.Message, error)
}

// Intents is the slice of the gateway the engine needs.
type Intents interface {
	JoinConversation(ctx context.Context, conversationID string) error
}

// Reader marks conversations read and fans the state out.
type Reader interface {
	MarkRead(ctx context.Context, conversationID string) error
}

// Selection persists which conversation the operator has open.
type Selection interface {
	SaveSelectedConversation(id string) error
}

// Engine drives conversation and message state from gateway events and
// exposes the operator-facing operations: refresh, open, close.
type Engine struct {
	convs     *chat.Store
	cache     *chat.Cache
	backend   Backend
	intents   Intents
	reader    Reader
	remote    *typing.Remote
	local     *typing.Local
	notifier  *notify.Controller
	selection Selection
	bus       *bus.Bus
	logger    *zap.Logger

	mu     sync.Mutex
	cancel func()
	done   chan struct{}
}

// Params collects the engine's collaborators; all are required except
// local typing, notifier, and selection, which may be nil in tests.
type Params struct {
	Conversations *chat.Store
	Cache         *chat.Cache
	Backend       Backend
	Intents       Intents
	Reader        Reader
	RemoteTyping  *typing.Remote
	LocalTyping   *typing.Local
	Notifier      *notify.Controller
	Selection     Selection
	Bus           *bus.Bus
	Logger        *zap.Logger
}

func New(p Params) *Engine {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Engine{
		convs:     p.Conversations,
		cache:     p.Cache,
		backend:   p.Backend,
		intents:   p.Intents,
		reader:    p.Reader,
		remote:    p.RemoteTyping,
		local:     p.LocalTyping,
		notifier:  p.Notifier,
		selection: p.Selection,
		bus:       p.Bus,
		logger:    p.Logger,
	}
}

// Start begins consuming gateway events. Safe to call once; Stop tears
// the loop down.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	events, cancel := e.bus.Subscribe("", 64)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.loop(events, e.done)
}

func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (e *Engine) loop(events <-chan bus.Event, done chan struct{}) {
	defer close(done)
	for evt := range events {
		switch evt.Kind {
		case bus.KindGatewayMessage:
			if msg, ok := evt.Payload.(chat.Message); ok {
				e.handleMessage(msg)
			}
		case bus.KindGatewayConversation:
			if conv, ok := evt.Payload.(chat.Conversation); ok {
				e.handleConversation(conv)
			}
		case bus.KindGatewayTyping:
			if t, ok := evt.Payload.(gateway.TypingEvent); ok && e.remote != nil {
				e.remote.Apply(t.ConversationID, t.DisplayName, t.Typing)
			}
		case bus.KindConnStateChanged:
			if sc, ok := evt.Payload.(gateway.StateChange); ok {
				e.handleStateChange(sc)
			}
		default:
			// gw.read is consumed by the read-sync loop; our own
			// emissions come back around here and are ignored.
		}
	}
}

// handleStateChange recovers from a reconnect: events missed during the
// outage are not replayed by the server, so the list is re-fetched and
// the open conversation re-joined.
func (e *Engine) handleStateChange(sc gateway.StateChange) {
	if sc.To != gateway.Connected || sc.From != gateway.Reconnecting {
		return
	}
	active := e.convs.ActiveID()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if active != "" {
			if err := e.intents.JoinConversation(ctx, active); err != nil {
				e.logger.Debug("rejoin intent not delivered", zap.Error(err))
			}
		}
		if err := e.Refresh(ctx, "", ""); err != nil {
			e.logger.Warn("post-reconnect refresh failed", zap.Error(err))
		}
	}()
}

func (e *Engine) handleMessage(msg chat.Message) {
	if !e.cache.Append(msg.ConversationID, msg) {
		// Duplicate delivery, typically the echo of our own send.
		return
	}
	metrics.MessagesIngested.WithLabelValues("live").Inc()

	open := e.convs.ApplyInboundMessage(msg)
	e.bus.Emit(bus.KindMessageUpserted, msg)
	e.bus.Emit(bus.KindConversationUpdated, msg.ConversationID)

	if open {
		// Operator is looking at it; keep the read state in sync
		// rather than letting a badge flash on siblings.
		if err := e.reader.MarkRead(context.Background(), msg.ConversationID); err != nil {
			e.logger.Warn("auto mark-read failed", zap.Error(err))
		}
		return
	}
	if msg.Origin != chat.OriginRemote {
		return
	}
	if conv, ok := e.convs.Get(msg.ConversationID); ok && conv.Muted {
		return
	}
	if e.notifier != nil {
		e.notifier.Play()
	}
}

func (e *Engine) handleConversation(conv chat.Conversation) {
	if !e.convs.ApplyNewConversation(conv) {
		return
	}
	e.logger.Info("new conversation", zap.String("conversation", conv.ID))
	e.bus.Emit(bus.KindConversationUpdated, conv.ID)
}

// Refresh replaces the conversation list from the backend and seeds
// the message cache from the payload's recent messages. On error the
// previous state stays untouched.
func (e *Engine) Refresh(ctx context.Context, filter, search string) error {
	convs, seeds, err := e.backend.ListConversations(ctx, filter, search)
	if err != nil {
		return err
	}
	e.convs.UpsertFromList(convs)
	for id, msgs := range seeds {
		e.cache.Seed(id, msgs)
		metrics.MessagesIngested.WithLabelValues("seed").Add(float64(len(msgs)))
	}
	e.bus.Emit(bus.KindConversationUpdated, "")
	return nil
}

// Open selects a conversation: activates it, persists the selection,
// joins its live events, pulls the full history, and marks it read.
// A failed history fetch keeps the seeded preview; everything else
// still happens.
func (e *Engine) Open(ctx context.Context, conversationID string) error {
	e.convs.SetActive(conversationID)
	if e.notifier != nil {
		// Opening a conversation is the first user gesture we see.
		e.notifier.Unlock()
	}
	if e.selection != nil {
		if err := e.selection.SaveSelectedConversation(conversationID); err != nil {
			e.logger.Warn("selection not persisted", zap.Error(err))
		}
	}
	if err := e.intents.JoinConversation(ctx, conversationID); err != nil {
		e.logger.Debug("join intent not delivered", zap.Error(err))
	}

	history, err := e.backend.FetchHistory(ctx, conversationID)
	if err != nil {
		e.logger.Warn("history fetch failed, keeping seeded preview",
			zap.String("conversation", conversationID), zap.Error(err))
	} else if e.cache.ReconcileHistory(conversationID, history) {
		metrics.MessagesIngested.WithLabelValues("history").Add(float64(len(history)))
		e.bus.Emit(bus.KindConversationUpdated, conversationID)
	}

	return e.reader.MarkRead(ctx, conversationID)
}

// Close deselects the active conversation. Any typing burst in it ends
// immediately and the persisted selection is cleared.
func (e *Engine) Close() {
	id := e.convs.ActiveID()
	if id == "" {
		return
	}
	if e.local != nil {
		e.local.Stop(id)
	}
	e.convs.SetActive("")
	if e.selection != nil {
		if err := e.selection.SaveSelectedConversation(""); err != nil {
			e.logger.Warn("selection not cleared", zap.Error(err))
		}
	}
}
