// Package backend is the client for the back-office REST API the sync
// core depends on. The CRUD surface of the dashboard is owned
// elsewhere; only the four conversation endpoints live here.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/komsan13/chat-center-sub000/internal/chat"
)

// ErrSendRejected is returned when the send endpoint answers with
// anything other than a confirmed message. For lifecycle purposes a
// malformed success payload is a failure too.
var ErrSendRejected = errors.New("send rejected by server")

// Client talks to the back-office REST API.
type Client struct {
	http *resty.Client
}

// New creates a client rooted at baseURL. The token is attached as a
// bearer credential on every request.
func New(baseURL, token string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &Client{http: c}
}

type conversationPayload struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Avatar         string           `json:"avatar"`
	Pinned         bool             `json:"pinned"`
	Muted          bool             `json:"muted"`
	Tags           []string         `json:"tags"`
	Status         string           `json:"status"`
	CreatedAt      int64            `json:"createdAt"`
	LastActivity   int64            `json:"lastActivity"`
	Unread         int              `json:"unread"`
	LastMessage    *messagePayload  `json:"lastMessage"`
	RecentMessages []messagePayload `json:"recentMessages"`
}

type messagePayload struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Type           string `json:"type"`
	Content        string `json:"content"`
	Origin         string `json:"origin"`
	State          string `json:"state"`
	ReplyTo        string `json:"replyTo"`
	Timestamp      int64  `json:"timestamp"`
}

type listResponse struct {
	Conversations []conversationPayload `json:"conversations"`
}

type historyResponse struct {
	Messages []messagePayload `json:"messages"`
}

type sendRequest struct {
	ConversationID string `json:"conversationId"`
	ContentType    string `json:"contentType"`
	Content        string `json:"content"`
}

type sendResponse struct {
	Success bool            `json:"success"`
	Message *messagePayload `json:"message"`
	Error   string          `json:"error"`
}

// ListConversations fetches the conversation list for the given filter
// and search terms. The second return value maps conversation ids to
// the recent-message seed page delivered inline with the list.
func (c *Client) ListConversations(ctx context.Context, filter, search string) ([]chat.Conversation, map[string][]chat.Message, error) {
	var body listResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"filter": filter, "search": search}).
		SetResult(&body).
		Get("/conversations")
	if err != nil {
		return nil, nil, fmt.Errorf("list conversations: %w", err)
	}
	if resp.IsError() {
		return nil, nil, fmt.Errorf("list conversations: HTTP %d", resp.StatusCode())
	}

	convs := make([]chat.Conversation, 0, len(body.Conversations))
	seeds := make(map[string][]chat.Message)
	for _, p := range body.Conversations {
		convs = append(convs, p.toConversation())
		if len(p.RecentMessages) > 0 {
			page := make([]chat.Message, 0, len(p.RecentMessages))
			for _, m := range p.RecentMessages {
				page = append(page, m.toMessage(p.ID))
			}
			seeds[p.ID] = page
		}
	}
	return convs, seeds, nil
}

// FetchHistory fetches the complete ordered message history for one
// conversation.
func (c *Client) FetchHistory(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var body historyResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get(fmt.Sprintf("/conversations/%s/messages", conversationID))
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch history: HTTP %d", resp.StatusCode())
	}

	msgs := make([]chat.Message, 0, len(body.Messages))
	for _, m := range body.Messages {
		msgs = append(msgs, m.toMessage(conversationID))
	}
	return msgs, nil
}

// MarkRead marks a conversation read server-side. Idempotent.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/conversations/%s/messages", conversationID))
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("mark read: HTTP %d", resp.StatusCode())
	}
	return nil
}

// SendMessage submits a message and returns the server-confirmed
// message. Every non-success outcome, including a success-shaped
// payload without a message, maps to ErrSendRejected so callers handle
// failure exhaustively.
func (c *Client) SendMessage(ctx context.Context, conversationID string, contentType chat.ContentType, content string) (*chat.Message, error) {
	var body sendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sendRequest{
			ConversationID: conversationID,
			ContentType:    string(contentType),
			Content:        content,
		}).
		SetResult(&body).
		Post("/messages/send")
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: HTTP %d", ErrSendRejected, resp.StatusCode())
	}
	if !body.Success || body.Message == nil {
		if body.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrSendRejected, body.Error)
		}
		return nil, ErrSendRejected
	}
	msg := body.Message.toMessage(conversationID)
	return &msg, nil
}

func (p *conversationPayload) toConversation() chat.Conversation {
	conv := chat.Conversation{
		ID:           p.ID,
		Name:         p.Name,
		Avatar:       p.Avatar,
		Pinned:       p.Pinned,
		Muted:        p.Muted,
		Tags:         p.Tags,
		Status:       chat.ConversationStatus(p.Status),
		CreatedAt:    p.CreatedAt,
		LastActivity: p.LastActivity,
		Unread:       p.Unread,
	}
	if conv.Status == "" {
		conv.Status = chat.StatusActive
	}
	if p.LastMessage != nil {
		m := p.LastMessage.toMessage(p.ID)
		conv.LastMessage = &m
		if conv.LastActivity == 0 {
			conv.LastActivity = m.Timestamp
		}
	}
	return conv
}

func (p *messagePayload) toMessage(conversationID string) chat.Message {
	m := chat.Message{
		ID:             p.ID,
		ConversationID: p.ConversationID,
		Type:           chat.ContentType(p.Type),
		Content:        p.Content,
		Origin:         chat.Origin(p.Origin),
		State:          chat.DeliveryState(p.State),
		ReplyTo:        p.ReplyTo,
		Timestamp:      p.Timestamp,
	}
	if m.ConversationID == "" {
		m.ConversationID = conversationID
	}
	if m.Type == "" {
		m.Type = chat.TypeText
	}
	return m
}
