// Package protocol defines the JSON messages exchanged with the avatar backend.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Outbound message types.
const (
	TypeFetchHistoryList   = "fetch-history-list"
	TypeFetchAndSetHistory = "fetch-and-set-history"
	TypeCreateNewHistory   = "create-new-history"
	TypeDeleteHistory      = "delete-history"
	TypeTextInput          = "text-input"
	TypeInterruptSignal    = "interrupt-signal"
)

// Inbound message types.
const (
	TypeHistoryList       = "history-list"
	TypeNewHistoryCreated = "new-history-created"
	TypeHistoryData       = "history-data"
	TypeHistoryDeleted    = "history-deleted"
	TypeFullText          = "full-text"
	TypeControl           = "control"
	TypeError             = "error"
)

// LatestMessage is the preview of the newest message of a history.
type LatestMessage struct {
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

// HistoryInfo describes one stored conversation on the backend.
type HistoryInfo struct {
	UID           string         `json:"uid"`
	LatestMessage *LatestMessage `json:"latest_message"`
	Timestamp     *string        `json:"timestamp"`
}

// HistoryMessage is one entry of a loaded conversation.
type HistoryMessage struct {
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

// Outbound is a message sent to the backend.
type Outbound struct {
	Type       string `json:"type"`
	HistoryUID string `json:"history_uid,omitempty"`
	Text       string `json:"text,omitempty"`
}

// FetchHistoryList asks the backend for the list of histories.
func FetchHistoryList() Outbound {
	return Outbound{Type: TypeFetchHistoryList}
}

// FetchAndSetHistory asks the backend to load and activate a history.
func FetchAndSetHistory(uid string) Outbound {
	return Outbound{Type: TypeFetchAndSetHistory, HistoryUID: uid}
}

// CreateNewHistory asks the backend to start a new history.
func CreateNewHistory() Outbound {
	return Outbound{Type: TypeCreateNewHistory}
}

// DeleteHistory asks the backend to delete a history.
func DeleteHistory(uid string) Outbound {
	return Outbound{Type: TypeDeleteHistory, HistoryUID: uid}
}

// TextInput sends user text to the avatar.
func TextInput(text string) Outbound {
	return Outbound{Type: TypeTextInput, Text: text}
}

// InterruptSignal stops the avatar's current response.
func InterruptSignal() Outbound {
	return Outbound{Type: TypeInterruptSignal}
}

// Inbound is a decoded message from the backend. Only the fields relevant to
// Type are set.
type Inbound struct {
	Type       string           `json:"type"`
	HistoryUID string           `json:"history_uid,omitempty"`
	Histories  []HistoryInfo    `json:"histories,omitempty"`
	Messages   []HistoryMessage `json:"messages,omitempty"`
	Success    bool             `json:"success,omitempty"`
	Text       string           `json:"text,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// Decode parses a raw backend message.
func Decode(data []byte) (*Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &msg, nil
}
