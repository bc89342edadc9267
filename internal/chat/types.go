package chat

import (
	"strings"

	"github.com/google/uuid"
)

// ConversationStatus is the lifecycle status of a conversation.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusArchived ConversationStatus = "archived"
	StatusBlocked  ConversationStatus = "blocked"
)

// ContentType identifies the payload kind of a message.
type ContentType string

const (
	TypeText     ContentType = "text"
	TypeImage    ContentType = "image"
	TypeSticker  ContentType = "sticker"
	TypeVideo    ContentType = "video"
	TypeAudio    ContentType = "audio"
	TypeFile     ContentType = "file"
	TypeLocation ContentType = "location"
)

// Origin identifies who produced a message.
type Origin string

const (
	OriginLocal  Origin = "local-user"
	OriginRemote Origin = "remote-counterparty"
	OriginSystem Origin = "system"
)

// DeliveryState is the delivery state of a message.
type DeliveryState string

const (
	StateSending   DeliveryState = "sending"
	StateSent      DeliveryState = "sent"
	StateDelivered DeliveryState = "delivered"
	StateRead      DeliveryState = "read"
	StateFailed    DeliveryState = "failed"
)

// Conversation is one ongoing exchange with an external counterparty.
type Conversation struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Avatar       string             `json:"avatar,omitempty"`
	Pinned       bool               `json:"pinned"`
	Muted        bool               `json:"muted"`
	Tags         []string           `json:"tags,omitempty"`
	Status       ConversationStatus `json:"status,omitempty"`
	LastMessage  *Message           `json:"lastMessage,omitempty"`
	LastActivity int64              `json:"lastActivity"` // unix millis; falls back to CreatedAt when no message yet
	CreatedAt    int64              `json:"createdAt"`
	Unread       int                `json:"unread"`
}

// Message is a single message within a conversation.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	Type           ContentType   `json:"type"`
	Content        string        `json:"content"`
	Origin         Origin        `json:"origin"`
	State          DeliveryState `json:"state"`
	ReplyTo        string        `json:"replyTo,omitempty"`
	Timestamp      int64         `json:"timestamp"` // unix millis
}

// placeholderPrefix is reserved for client-generated ids. A server id
// never carries it, so placeholders are distinguishable at a glance.
const placeholderPrefix = "pending-"

// NewPlaceholderID generates a temporary id for an optimistic send.
func NewPlaceholderID() string {
	return placeholderPrefix + uuid.NewString()
}

// IsPlaceholderID reports whether id is a client-generated temporary id.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, placeholderPrefix)
}
