// Package state provides the finite state machine for client readiness.
package state

// State represents a readiness status of the avatar client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsConnected returns true if the transport is open in this state.
func (s State) IsConnected() bool {
	return s == StateConnecting || s == StateReady
}

// IsOperational returns true if actions that need a live connection and a
// loaded conversation may run.
func (s State) IsOperational() bool {
	return s == StateReady
}
