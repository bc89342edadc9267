package gateway

// State is the live-channel connection state, exposed both as a
// readable value and as conn.state_changed events on the bus.
type State string

const (
	Connected    State = "connected"
	Reconnecting State = "reconnecting"
	Disconnected State = "disconnected"
)

// StateChange is the bus payload for conn.state_changed events.
type StateChange struct {
	From State
	To   State
}
