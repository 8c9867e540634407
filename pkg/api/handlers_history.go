package api

import (
	"context"

	"github.com/ihiteshgupta/avatar-client/pkg/mcp"
)

// History tool handlers

func (h *Handler) handleListHistories(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return h.successResult(map[string]interface{}{
		"current_history_uid": h.client.CurrentHistoryID(),
		"histories":           h.client.Histories(),
	})
}

func (h *Handler) handleGetHistoryMessages(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	messages := h.client.Messages()
	if limit := getInt(args, "limit", 0); limit > 0 && limit < len(messages) {
		messages = messages[len(messages)-limit:]
	}
	return h.successResult(map[string]interface{}{
		"history_uid": h.client.CurrentHistoryID(),
		"messages":    messages,
	})
}

func (h *Handler) handleRefreshHistories(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	if err := h.client.RefreshHistories(ctx); err != nil {
		return h.failure(err)
	}
	return h.successResult(map[string]interface{}{"requested": true})
}

func (h *Handler) handleSwitchHistory(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	uid := getString(args, "history_uid")
	if uid == "" {
		return h.errorResult(NewInvalidInputError("history_uid is required"))
	}

	if err := h.client.SwitchHistory(ctx, uid); err != nil {
		return h.failure(err)
	}
	return h.successResult(map[string]interface{}{
		"requested":   true,
		"history_uid": uid,
		"status":      h.client.Status(),
	})
}

func (h *Handler) handleNewHistory(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	if err := h.client.NewHistory(ctx); err != nil {
		return h.failure(err)
	}
	return h.successResult(map[string]interface{}{"requested": true})
}

func (h *Handler) handleDeleteHistory(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	uid := getString(args, "history_uid")
	if uid == "" {
		return h.errorResult(NewInvalidInputError("history_uid is required"))
	}
	if err := h.client.DeleteHistory(ctx, uid); err != nil {
		return h.failure(err)
	}
	return h.successResult(map[string]interface{}{
		"requested":   true,
		"history_uid": uid,
	})
}
