// Package outbox owns the optimistic send lifecycle: placeholder in,
// confirmed message or discard out. Exactly one of the two happens for
// every send.
package outbox

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/komsan13/chat-center-sub000/internal/bus"
	"github.com/komsan13/chat-center-sub000/internal/chat"
	"github.com/komsan13/chat-center-sub000/internal/metrics"
	"github.com/komsan13/chat-center-sub000/internal/typing"
	"go.uber.org/zap"
)

// ErrEmptyMessage is returned when the trimmed content is empty.
var ErrEmptyMessage = errors.New("empty message")

// Backend is the send endpoint of the REST client.
type Backend interface {
	SendMessage(ctx context.Context, conversationID string, contentType chat.ContentType, content string) (*chat.Message, error)
}

// SendAck is the bus payload for message.send_ack events.
type SendAck struct {
	PlaceholderID string
	Message       chat.Message
}

// SendFailure is the bus payload for message.send_failed events.
type SendFailure struct {
	ConversationID string
	PlaceholderID  string
	Reason         string
}

// Sender runs send attempts. Sends may overlap freely; every attempt
// carries its own placeholder identity.
type Sender struct {
	cache   *chat.Cache
	convs   *chat.Store
	backend Backend
	typing  *typing.Local
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewSender creates a sender. typing may be nil in tests.
func NewSender(cache *chat.Cache, convs *chat.Store, backend Backend, t *typing.Local, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		cache:   cache,
		convs:   convs,
		backend: backend,
		typing:  t,
		bus:     b,
		logger:  logger,
	}
}

// Send submits one message. The placeholder is visible in the cache
// and the conversation snapshot before any network round-trip starts;
// on success it is swapped in place for the confirmed message, on
// failure it is removed from the cache (the snapshot is intentionally
// left alone — the next update corrects it). The placeholder id is
// returned so callers can correlate ack/failure events.
func (s *Sender) Send(ctx context.Context, conversationID string, contentType chat.ContentType, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyMessage
	}

	// Submitting the composer ends the typing burst immediately.
	if s.typing != nil {
		s.typing.Stop(conversationID)
	}

	placeholder := chat.Message{
		ID:             chat.NewPlaceholderID(),
		ConversationID: conversationID,
		Type:           contentType,
		Content:        content,
		Origin:         chat.OriginLocal,
		State:          chat.StateSending,
		Timestamp:      time.Now().UnixMilli(),
	}
	s.cache.Append(conversationID, placeholder)
	s.convs.ApplyOutboundMessage(placeholder)
	s.bus.Emit(bus.KindMessageUpserted, placeholder)

	confirmed, err := s.backend.SendMessage(ctx, conversationID, contentType, content)
	if err != nil {
		s.cache.Remove(conversationID, placeholder.ID)
		metrics.SendsTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("send failed, placeholder discarded",
			zap.String("conversation", conversationID),
			zap.String("placeholder", placeholder.ID),
			zap.Error(err))
		s.bus.Emit(bus.KindMessageSendFailed, SendFailure{
			ConversationID: conversationID,
			PlaceholderID:  placeholder.ID,
			Reason:         err.Error(),
		})
		return placeholder.ID, err
	}

	s.cache.ReplacePlaceholder(conversationID, placeholder.ID, *confirmed)
	// Second snapshot update covers a server-assigned timestamp.
	s.convs.ApplyOutboundMessage(*confirmed)
	metrics.SendsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("message sent",
		zap.String("conversation", conversationID),
		zap.String("placeholder", placeholder.ID),
		zap.String("server_id", confirmed.ID))
	s.bus.Emit(bus.KindMessageSendAck, SendAck{
		PlaceholderID: placeholder.ID,
		Message:       *confirmed,
	})
	return placeholder.ID, nil
}
