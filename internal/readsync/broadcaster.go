// Package readsync keeps read state aligned across the backend and
// every connected console session.
package readsync

import (
	"context"
	"sync"

	"github.com/komsan13/chat-center-sub000/internal/bus"
	"github.com/komsan13/chat-center-sub000/internal/chat"
	"github.com/komsan13/chat-center-sub000/internal/gateway"
	"go.uber.org/zap"
)

// Backend is the mark-read endpoint of the REST client.
type Backend interface {
	MarkRead(ctx context.Context, conversationID string) error
}

// Intents are the live-channel commands the broadcaster issues.
type Intents interface {
	MarkRead(ctx context.Context, conversationID string, messageIDs []string) error
	BroadcastRead(ctx context.Context, conversationID string) error
}

// Broadcaster propagates "conversation was read" in both directions:
// outward when this session reads one, inward when a sibling session
// announces a read over the live channel.
type Broadcaster struct {
	convs   *chat.Store
	cache   *chat.Cache
	backend Backend
	intents Intents
	bus     *bus.Bus
	logger  *zap.Logger

	mu     sync.Mutex
	cancel func()
	done   chan struct{}
}

func New(convs *chat.Store, cache *chat.Cache, backend Backend, intents Intents, b *bus.Bus, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		convs:   convs,
		cache:   cache,
		backend: backend,
		intents: intents,
		bus:     b,
		logger:  logger,
	}
}

// MarkRead zeroes the local counter, persists the read state on the
// backend, and announces it to sibling sessions. Local state changes
// first so the console never shows a stale badge while the network
// calls run; the live-channel intents are best effort.
func (r *Broadcaster) MarkRead(ctx context.Context, conversationID string) error {
	r.convs.MarkConversationRead(conversationID)
	r.bus.Emit(bus.KindConversationUpdated, conversationID)

	if err := r.backend.MarkRead(ctx, conversationID); err != nil {
		return err
	}

	var ids []string
	for _, m := range r.cache.Messages(conversationID) {
		if m.Origin == chat.OriginRemote {
			ids = append(ids, m.ID)
		}
	}
	if err := r.intents.MarkRead(ctx, conversationID, ids); err != nil {
		r.logger.Debug("mark_read intent not delivered", zap.Error(err))
	}
	if err := r.intents.BroadcastRead(ctx, conversationID); err != nil {
		r.logger.Debug("read broadcast not delivered", zap.Error(err))
	}
	return nil
}

// Start consumes read announcements from sibling sessions and zeroes
// the matching local counter. Returns immediately; Stop tears the
// loop down.
func (r *Broadcaster) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	events, cancel := r.bus.Subscribe(bus.KindGatewayRead, 16)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(events, r.done)
}

func (r *Broadcaster) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Broadcaster) loop(events <-chan bus.Event, done chan struct{}) {
	defer close(done)
	for evt := range events {
		read, ok := evt.Payload.(gateway.ReadEvent)
		if !ok {
			continue
		}
		r.convs.MarkConversationRead(read.ConversationID)
		r.logger.Debug("read state synced from sibling session",
			zap.String("conversation", read.ConversationID))
		r.bus.Emit(bus.KindConversationUpdated, read.ConversationID)
	}
}
