package api

import (
	"github.com/ihiteshgupta/avatar-client/pkg/mcp"
)

// Tool name constants
const (
	// Connection (7)
	ToolGetConnectionStatus  = "get_connection_status"
	ToolGetConnectionHistory = "get_connection_history"
	ToolReconnect            = "reconnect"
	ToolSetHistoryReady      = "set_history_ready"
	ToolGetBackendConfig     = "get_backend_config"
	ToolSetBackendURLs       = "set_backend_urls"
	ToolGetShareQR           = "get_share_qr"

	// Histories (6)
	ToolListHistories      = "list_histories"
	ToolGetHistoryMessages = "get_history_messages"
	ToolRefreshHistories   = "refresh_histories"
	ToolSwitchHistory      = "switch_history"
	ToolNewHistory         = "new_history"
	ToolDeleteHistory      = "delete_history"

	// Conversation (2)
	ToolSendText  = "send_text"
	ToolInterrupt = "interrupt"
)

var emptySchema = map[string]interface{}{
	"type":       "object",
	"properties": map[string]interface{}{},
}

// GetAllTools returns all 15 tool definitions.
func GetAllTools() []mcp.Tool {
	return []mcp.Tool{
		// ============ CONNECTION (7) ============
		{
			Name:        ToolGetConnectionStatus,
			Description: "Get the readiness status (disconnected, connecting, ready), transport state, current history and health counters",
			InputSchema: emptySchema,
		},
		{
			Name:        ToolGetConnectionHistory,
			Description: "Get recent readiness transitions, newest first",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": propInt("Maximum number of transitions to return (default: 20)"),
				},
			},
		},
		{
			Name:        ToolReconnect,
			Description: "Connect to the backend again. Does nothing while the connection is open or connecting",
			InputSchema: emptySchema,
		},
		{
			Name:        ToolSetHistoryReady,
			Description: "Override whether the current history counts as loaded. Cannot mark it loaded while disconnected",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"ready": propBool("New history readiness"),
				},
				"required": []string{"ready"},
			},
		},
		{
			Name:        ToolGetBackendConfig,
			Description: "Get the backend WebSocket URL, base URL and deployment environment in use",
			InputSchema: emptySchema,
		},
		{
			Name:        ToolSetBackendURLs,
			Description: "Save backend URLs. A new WebSocket URL moves a live connection to it",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"ws_url":   prop("string", "WebSocket URL (ws:// or wss://)"),
					"base_url": prop("string", "HTTP base URL (http:// or https://)"),
				},
			},
		},
		{
			Name:        ToolGetShareQR,
			Description: "Get the backend base URL as a PNG QR code",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"size": propInt("Image size in pixels (default: 256)"),
				},
			},
		},

		// ============ HISTORIES (6) ============
		{
			Name:        ToolListHistories,
			Description: "List known conversations, newest first, and the one currently selected",
			InputSchema: emptySchema,
		},
		{
			Name:        ToolGetHistoryMessages,
			Description: "Get the messages of the last loaded conversation",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": propInt("Return only the last N messages (default: all)"),
				},
			},
		},
		{
			Name:        ToolRefreshHistories,
			Description: "Ask the backend for the conversation list",
			InputSchema: emptySchema,
		},
		{
			Name:        ToolSwitchHistory,
			Description: "Load another conversation. The client is not ready until the backend returns it",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"history_uid": prop("string", "UID of the conversation to load"),
				},
				"required": []string{"history_uid"},
			},
		},
		{
			Name:        ToolNewHistory,
			Description: "Start a new conversation and select it",
			InputSchema: emptySchema,
		},
		{
			Name:        ToolDeleteHistory,
			Description: "Delete a conversation other than the current one",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"history_uid": prop("string", "UID of the conversation to delete"),
				},
				"required": []string{"history_uid"},
			},
		},

		// ============ CONVERSATION (2) ============
		{
			Name:        ToolSendText,
			Description: "Send text to the avatar in the current conversation",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text": prop("string", "Text to send"),
				},
				"required": []string{"text"},
			},
		},
		{
			Name:        ToolInterrupt,
			Description: "Interrupt the avatar while it is responding",
			InputSchema: emptySchema,
		},
	}
}

// Helper functions for building schemas

func prop(typeName, description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        typeName,
		"description": description,
	}
}

func propInt(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
	}
}

func propBool(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "boolean",
		"description": description,
	}
}
