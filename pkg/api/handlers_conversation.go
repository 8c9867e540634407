package api

import (
	"context"

	"github.com/ihiteshgupta/avatar-client/pkg/mcp"
)

// Conversation tool handlers

func (h *Handler) handleSendText(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	text := getString(args, "text")
	if text == "" {
		return h.errorResult(NewInvalidInputError("text is required"))
	}

	if err := h.client.SendText(ctx, text); err != nil {
		return h.failure(err)
	}
	return h.successResult(map[string]interface{}{
		"success":     true,
		"history_uid": h.client.CurrentHistoryID(),
	})
}

func (h *Handler) handleInterrupt(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	if err := h.client.Interrupt(ctx); err != nil {
		return h.failure(err)
	}
	return h.successResult(map[string]interface{}{"success": true})
}
