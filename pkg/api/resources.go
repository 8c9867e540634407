package api

import (
	"context"

	"github.com/ihiteshgupta/avatar-client/pkg/mcp"
)

// Resource URIs
const (
	ResourceConnectionStatus = "avatar://connection/status"
	ResourceHistories        = "avatar://histories"
)

// ListResources returns the resources the handler serves.
func (h *Handler) ListResources() []mcp.Resource {
	return []mcp.Resource{
		{
			URI:         ResourceConnectionStatus,
			Name:        "Connection status",
			Description: "Readiness status, transport state and current history",
			MimeType:    "application/json",
		},
		{
			URI:         ResourceHistories,
			Name:        "Histories",
			Description: "Known conversations and the current selection",
			MimeType:    "application/json",
		},
	}
}

// ReadResource returns the current contents of uri.
func (h *Handler) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	switch uri {
	case ResourceConnectionStatus:
		return mcp.JSONResource(uri, h.connectionStatus())
	case ResourceHistories:
		return mcp.JSONResource(uri, map[string]interface{}{
			"current_history_uid": h.client.CurrentHistoryID(),
			"histories":           h.client.Histories(),
		})
	default:
		return nil, mcp.ErrResourceNotFound
	}
}
