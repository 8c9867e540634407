package state

// Trigger represents an event that causes a state transition.
type Trigger string

const (
	TriggerTransportOpened Trigger = "transport_opened"
	TriggerTransportClosed Trigger = "transport_closed"
	TriggerHistoryReady    Trigger = "history_ready"
	TriggerHistoryCleared  Trigger = "history_cleared"
	// TriggerResumed fires when the transport opens while a history is
	// already selected, so readiness is reached in one step.
	TriggerResumed Trigger = "resumed"
)

// String returns the string representation of the trigger.
func (t Trigger) String() string {
	return string(t)
}

// TriggerFor returns the trigger that moves the machine from one derived
// status to another. ok is false when the pair is not an edge of the machine.
func TriggerFor(from, to State) (trigger Trigger, ok bool) {
	switch {
	case from == StateDisconnected && to == StateConnecting:
		return TriggerTransportOpened, true
	case from == StateDisconnected && to == StateReady:
		return TriggerResumed, true
	case from == StateConnecting && to == StateReady:
		return TriggerHistoryReady, true
	case from == StateReady && to == StateConnecting:
		return TriggerHistoryCleared, true
	case to == StateDisconnected && from != StateDisconnected:
		return TriggerTransportClosed, true
	default:
		return "", false
	}
}
