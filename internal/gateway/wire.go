package gateway

import (
	"encoding/json"

	"github.com/komsan13/chat-center-sub000/internal/chat"
)

// Inbound event kinds on the live channel.
const (
	wireMessageNew       = "message.new"
	wireConversationNew  = "conversation.new"
	wireTypingChanged    = "typing.changed"
	wireConversationRead = "conversation.read"
)

// Outbound intent kinds.
const (
	wireJoin          = "conversation.join"
	wireMarkRead      = "conversation.mark_read"
	wireTyping        = "typing.changed"
	wireReadBroadcast = "conversation.read_broadcast"
)

// envelope is the wire format for both directions of the live channel.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type command struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type wireMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Type           string `json:"type"`
	Content        string `json:"content"`
	Origin         string `json:"origin"`
	State          string `json:"state"`
	ReplyTo        string `json:"replyTo"`
	Timestamp      int64  `json:"timestamp"`
}

type wireConversation struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Avatar       string   `json:"avatar"`
	Pinned       bool     `json:"pinned"`
	Muted        bool     `json:"muted"`
	Tags         []string `json:"tags"`
	Status       string   `json:"status"`
	CreatedAt    int64    `json:"createdAt"`
	LastActivity int64    `json:"lastActivity"`
}

// TypingEvent is the bus payload for gw.typing events.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	DisplayName    string `json:"displayName"`
	Typing         bool   `json:"isTyping"`
}

// ReadEvent is the bus payload for gw.read events: a sibling session
// of the same operator marked the conversation read.
type ReadEvent struct {
	ConversationID string `json:"conversationId"`
}

func (m *wireMessage) toMessage() chat.Message {
	msg := chat.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Type:           chat.ContentType(m.Type),
		Content:        m.Content,
		Origin:         chat.Origin(m.Origin),
		State:          chat.DeliveryState(m.State),
		ReplyTo:        m.ReplyTo,
		Timestamp:      m.Timestamp,
	}
	if msg.Type == "" {
		msg.Type = chat.TypeText
	}
	if msg.Origin == "" {
		msg.Origin = chat.OriginRemote
	}
	return msg
}

func (c *wireConversation) toConversation() chat.Conversation {
	conv := chat.Conversation{
		ID:           c.ID,
		Name:         c.Name,
		Avatar:       c.Avatar,
		Pinned:       c.Pinned,
		Muted:        c.Muted,
		Tags:         c.Tags,
		Status:       chat.ConversationStatus(c.Status),
		CreatedAt:    c.CreatedAt,
		LastActivity: c.LastActivity,
	}
	if conv.Status == "" {
		conv.Status = chat.StatusActive
	}
	return conv
}
