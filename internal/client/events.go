package client

import (
	"time"

	"github.com/ihiteshgupta/avatar-client/internal/protocol"
	"github.com/ihiteshgupta/avatar-client/internal/readiness"
	"github.com/ihiteshgupta/avatar-client/internal/state"
)

// EventType represents the type of client event.
type EventType int

const (
	EventConnectionChange EventType = iota
	EventStatusChange
	EventHistoryList
	EventHistoryCreated
	EventHistoryData
	EventHistoryDeleted
	EventText
	EventControl
	EventError
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventConnectionChange:
		return "connection_change"
	case EventStatusChange:
		return "status_change"
	case EventHistoryList:
		return "history_list"
	case EventHistoryCreated:
		return "history_created"
	case EventHistoryData:
		return "history_data"
	case EventHistoryDeleted:
		return "history_deleted"
	case EventText:
		return "text"
	case EventControl:
		return "control"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event represents a client event.
type Event struct {
	Type      EventType
	Payload   interface{}
	Timestamp time.Time
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(t EventType, payload interface{}) Event {
	return Event{
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// ConnectionPayload contains data for transport state events.
type ConnectionPayload struct {
	State string
	URL   string
}

// StatusPayload contains data for readiness status events.
type StatusPayload struct {
	From     state.State
	To       state.State
	Snapshot readiness.Snapshot
}

// HistoryListPayload contains the histories pushed by the backend.
type HistoryListPayload struct {
	Histories []protocol.HistoryInfo
	CurrentID string
}

// HistoryPayload identifies a single history.
type HistoryPayload struct {
	UID     string
	Success bool
}

// HistoryDataPayload contains the messages of a loaded history.
type HistoryDataPayload struct {
	UID      string
	Messages []protocol.HistoryMessage
}

// TextPayload contains free text from the backend.
type TextPayload struct {
	Text string
}
