package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ihiteshgupta/avatar-client/internal/backend"
	"github.com/ihiteshgupta/avatar-client/internal/health"
	"github.com/ihiteshgupta/avatar-client/internal/protocol"
	"github.com/ihiteshgupta/avatar-client/internal/readiness"
	"github.com/ihiteshgupta/avatar-client/internal/state"
	"github.com/ihiteshgupta/avatar-client/internal/status"
	"github.com/ihiteshgupta/avatar-client/internal/store"
	"github.com/ihiteshgupta/avatar-client/pkg/mcp"
)

// Client defines the avatar client operations exposed as tools.
type Client interface {
	// Readiness
	Status() state.State
	IsReady() bool
	Snapshot() readiness.Snapshot
	Health() health.Status
	Indicator() status.Indicator
	TransitionHistory(ctx context.Context, limit int) ([]store.Transition, error)

	// Connection
	Reconnect(ctx context.Context) (bool, error)
	Endpoints() backend.Config
	UpdateEndpoints(ctx context.Context, wsURL, baseURL string) error
	SetHistoryReady(ctx context.Context, ready bool) error

	// Histories
	Histories() []store.History
	CurrentHistoryID() string
	Messages() []protocol.HistoryMessage
	RefreshHistories(ctx context.Context) error
	SwitchHistory(ctx context.Context, uid string) error
	NewHistory(ctx context.Context) error
	DeleteHistory(ctx context.Context, uid string) error

	// Conversation
	SendText(ctx context.Context, text string) error
	Interrupt(ctx context.Context) error
}

// Handler implements the MCP ToolHandler and ResourceProvider interfaces.
type Handler struct {
	client Client
}

// NewHandler creates a new tool handler.
func NewHandler(c Client) *Handler {
	return &Handler{client: c}
}

// GetTools returns all available tool definitions.
func (h *Handler) GetTools() []mcp.Tool {
	return GetAllTools()
}

// HandleTool handles a tool invocation and returns the result.
func (h *Handler) HandleTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	if requiresReady(name) && !h.client.IsReady() {
		return h.errorResult(NewNotReadyError(string(h.client.Status())))
	}

	switch name {
	// Connection
	case ToolGetConnectionStatus:
		return h.handleGetConnectionStatus(ctx, args)
	case ToolGetConnectionHistory:
		return h.handleGetConnectionHistory(ctx, args)
	case ToolReconnect:
		return h.handleReconnect(ctx, args)
	case ToolSetHistoryReady:
		return h.handleSetHistoryReady(ctx, args)
	case ToolGetBackendConfig:
		return h.handleGetBackendConfig(ctx, args)
	case ToolSetBackendURLs:
		return h.handleSetBackendURLs(ctx, args)
	case ToolGetShareQR:
		return h.handleGetShareQR(ctx, args)

	// Histories
	case ToolListHistories:
		return h.handleListHistories(ctx, args)
	case ToolGetHistoryMessages:
		return h.handleGetHistoryMessages(ctx, args)
	case ToolRefreshHistories:
		return h.handleRefreshHistories(ctx, args)
	case ToolSwitchHistory:
		return h.handleSwitchHistory(ctx, args)
	case ToolNewHistory:
		return h.handleNewHistory(ctx, args)
	case ToolDeleteHistory:
		return h.handleDeleteHistory(ctx, args)

	// Conversation
	case ToolSendText:
		return h.handleSendText(ctx, args)
	case ToolInterrupt:
		return h.handleInterrupt(ctx, args)

	default:
		return h.errorResult(NewInvalidInputError(fmt.Sprintf("Unknown tool: %s", name)))
	}
}

// requiresReady returns true if the tool needs an open connection and a
// loaded history.
func requiresReady(name string) bool {
	switch name {
	case ToolSendText, ToolNewHistory, ToolDeleteHistory:
		return true
	default:
		return false
	}
}

// Helper methods

func (h *Handler) successResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, NewInternalError(err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{mcp.TextContent(string(jsonData))},
	}, nil
}

func (h *Handler) errorResult(err *MCPError) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{mcp.TextContent(err.JSON())},
		IsError: true,
	}, nil
}

func (h *Handler) failure(err error) (*mcp.CallToolResult, error) {
	return h.errorResult(classify(err, h.client))
}

func getString(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func getInt(args map[string]interface{}, key string, defaultVal int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	if v, ok := args[key].(int); ok {
		return v
	}
	return defaultVal
}

func getBool(args map[string]interface{}, key string) (bool, bool) {
	v, ok := args[key].(bool)
	return v, ok
}
