package bus

import "time"

// Event kinds published on the bus. Subscribers filter by namespace
// prefix, so "gw." matches every inbound gateway event and "message."
// matches every cache mutation.
const (
	// Inbound, decoded from the live-event channel by the gateway.
	KindGatewayMessage      = "gw.message"
	KindGatewayConversation = "gw.conversation"
	KindGatewayTyping       = "gw.typing"
	KindGatewayRead         = "gw.read"

	// Connection lifecycle.
	KindConnStateChanged = "conn.state_changed"

	// Store mutations, consumed by the rendering layer.
	KindConversationUpdated = "chat.updated"
	KindMessageUpserted     = "message.upserted"
	KindMessageSendAck      = "message.send_ack"
	KindMessageSendFailed   = "message.send_failed"
	KindTypingChanged       = "typing.changed"
)

// Event is a domain event carried on the bus.
type Event struct {
	Kind    string
	At      time.Time
	Payload any
}
