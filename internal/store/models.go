// Package store provides data persistence for the avatar client.
package store

import (
	"time"

	"github.com/ihiteshgupta/avatar-client/internal/state"
)

// History is a conversation known to the client, in server order.
type History struct {
	UID             string    `json:"uid"`
	Position        int       `json:"position"`
	LatestRole      string    `json:"latest_role,omitempty"`
	LatestContent   string    `json:"latest_content,omitempty"`
	LatestTimestamp string    `json:"latest_timestamp,omitempty"`
	Timestamp       string    `json:"timestamp,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Transition is a readiness status change record.
type Transition struct {
	ID             int64       `json:"id"`
	SessionID      string      `json:"session_id"`
	FromState      state.State `json:"from_state"`
	ToState        state.State `json:"to_state"`
	Trigger        string      `json:"trigger"`
	TransportState string      `json:"transport_state"`
	HistoryUID     string      `json:"history_uid,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Settings keys persisted across runs.
const (
	SettingWSURL     = "ws_url"
	SettingBaseURL   = "base_url"
	SettingDebugMode = "debug_mode"
)
