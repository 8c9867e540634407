package api

import (
	"context"
	"encoding/base64"
	"net/url"

	"github.com/skip2/go-qrcode"

	"github.com/ihiteshgupta/avatar-client/pkg/mcp"
)

// Connection tool handlers

type indicatorView struct {
	Color          string `json:"color"`
	TextKey        string `json:"text_key"`
	Label          string `json:"label"`
	IsDisconnected bool   `json:"is_disconnected"`
}

func (h *Handler) connectionStatus() map[string]interface{} {
	ind := h.client.Indicator()
	return map[string]interface{}{
		"status":   h.client.Status(),
		"ready":    h.client.IsReady(),
		"snapshot": h.client.Snapshot(),
		"indicator": indicatorView{
			Color:          ind.Color,
			TextKey:        ind.TextKey,
			Label:          ind.Label(),
			IsDisconnected: ind.IsDisconnected,
		},
		"health": h.client.Health(),
	}
}

func (h *Handler) handleGetConnectionStatus(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return h.successResult(h.connectionStatus())
}

func (h *Handler) handleGetConnectionHistory(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	limit := getInt(args, "limit", 20)
	if limit <= 0 {
		return h.errorResult(NewInvalidInputError("limit must be positive"))
	}

	transitions, err := h.client.TransitionHistory(ctx, limit)
	if err != nil {
		return h.errorResult(NewInternalError(err))
	}

	return h.successResult(transitions)
}

func (h *Handler) handleReconnect(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	attempted, err := h.client.Reconnect(ctx)
	if err != nil {
		return h.failure(err)
	}
	return h.successResult(map[string]interface{}{
		"attempted":       attempted,
		"transport_state": h.client.Snapshot().TransportState,
	})
}

func (h *Handler) handleSetHistoryReady(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	ready, ok := getBool(args, "ready")
	if !ok {
		return h.errorResult(NewInvalidInputError("ready is required"))
	}

	if err := h.client.SetHistoryReady(ctx, ready); err != nil {
		return h.failure(err)
	}
	return h.successResult(h.client.Snapshot())
}

func (h *Handler) handleGetBackendConfig(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return h.successResult(h.client.Endpoints())
}

func (h *Handler) handleSetBackendURLs(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	wsURL := getString(args, "ws_url")
	baseURL := getString(args, "base_url")
	if wsURL == "" && baseURL == "" {
		return h.errorResult(NewInvalidInputError("ws_url or base_url is required"))
	}
	if wsURL != "" && !hasScheme(wsURL, "ws", "wss") {
		return h.errorResult(NewInvalidInputError("ws_url must be a ws:// or wss:// URL"))
	}
	if baseURL != "" && !hasScheme(baseURL, "http", "https") {
		return h.errorResult(NewInvalidInputError("base_url must be an http:// or https:// URL"))
	}

	if err := h.client.UpdateEndpoints(ctx, wsURL, baseURL); err != nil {
		return h.failure(err)
	}
	return h.successResult(h.client.Endpoints())
}

func (h *Handler) handleGetShareQR(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	size := getInt(args, "size", 256)
	if size < 64 || size > 1024 {
		return h.errorResult(NewInvalidInputError("size must be between 64 and 1024"))
	}

	baseURL := h.client.Endpoints().BaseURL
	png, err := qrcode.Encode(baseURL, qrcode.Medium, size)
	if err != nil {
		return h.errorResult(NewInternalError(err))
	}

	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{
			mcp.TextContent(baseURL),
			mcp.ImageContent("image/png", base64.StdEncoding.EncodeToString(png)),
		},
	}, nil
}

func hasScheme(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}
