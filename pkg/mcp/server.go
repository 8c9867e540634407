package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ResourceNotFound is the error code for unknown resource URIs.
const ResourceNotFound = -32002

// ToolHandler is the interface for handling tool calls.
type ToolHandler interface {
	GetTools() []Tool
	HandleTool(ctx context.Context, name string, args map[string]interface{}) (*CallToolResult, error)
}

// ResourceProvider is implemented by handlers that also expose resources.
type ResourceProvider interface {
	ListResources() []Resource
	ReadResource(ctx context.Context, uri string) (*ReadResourceResult, error)
}

// ErrResourceNotFound is returned by providers for unknown URIs.
var ErrResourceNotFound = errors.New("resource not found")

// Server is the MCP server that handles protocol messages.
type Server struct {
	transport   *Transport
	handler     ToolHandler
	resources   ResourceProvider
	log         *slog.Logger
	initialized bool

	subsMu        sync.Mutex
	subscriptions map[string]bool

	serverInfo Implementation
}

// NewServer creates a new MCP server. If handler also implements
// ResourceProvider its resources are served too.
func NewServer(reader io.Reader, writer io.Writer, handler ToolHandler, log *slog.Logger) *Server {
	s := &Server{
		transport:     NewTransport(reader, writer, log),
		handler:       handler,
		log:           log,
		subscriptions: make(map[string]bool),
		serverInfo: Implementation{
			Name:    "avatar-client",
			Version: "1.0.0",
		},
	}
	if rp, ok := handler.(ResourceProvider); ok {
		s.resources = rp
	}
	return s
}

// SetVersion overrides the version reported on initialize.
func (s *Server) SetVersion(version string) {
	s.serverInfo.Version = version
}

// Run starts the server message loop. It returns nil when the input ends.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("MCP server starting")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("MCP server shutting down")
			return ctx.Err()
		default:
		}

		req, err := s.transport.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Info("Client disconnected")
				return nil
			}
			if errors.Is(err, ErrMalformed) {
				s.log.Warn("Malformed message", "error", err)
				if sendErr := s.transport.SendError(nil, ParseError, "Parse error", nil); sendErr != nil {
					return sendErr
				}
				continue
			}
			return err
		}

		if err := s.handleRequest(ctx, req); err != nil {
			s.log.Error("Failed to handle request", "method", req.Method, "error", err)
		}
	}
}

// NotifyResourceUpdated tells the client that a subscribed resource changed.
// Unsubscribed URIs are ignored.
func (s *Server) NotifyResourceUpdated(uri string) error {
	s.subsMu.Lock()
	subscribed := s.subscriptions[uri]
	s.subsMu.Unlock()
	if !subscribed {
		return nil
	}
	return s.transport.SendNotification("notifications/resources/updated", map[string]string{"uri": uri})
}

func (s *Server) handleRequest(ctx context.Context, req *Request) error {
	s.log.Debug("handling request", "method", req.Method, "id", req.ID)

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "initialized", "notifications/initialized":
		// Notification, no response needed
		s.initialized = true
		s.log.Info("Client initialized")
		return nil
	case "ping":
		return s.transport.SendResult(req.ID, map[string]interface{}{})
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "resources/list":
		return s.handleResourcesList(req)
	case "resources/read":
		return s.handleResourcesRead(ctx, req)
	case "resources/subscribe":
		return s.handleResourcesSubscribe(req, true)
	case "resources/unsubscribe":
		return s.handleResourcesSubscribe(req, false)
	default:
		if req.ID == nil {
			// Unknown notifications are dropped.
			return nil
		}
		return s.transport.SendError(req.ID, MethodNotFound, fmt.Sprintf("Unknown method: %s", req.Method), nil)
	}
}

func (s *Server) handleInitialize(req *Request) error {
	var params InitializeParams
	if req.Params != nil {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return s.transport.SendError(req.ID, InvalidParams, "Invalid initialize params", nil)
		}
	}

	s.log.Info("Client initializing",
		"client", params.ClientInfo.Name,
		"version", params.ClientInfo.Version,
		"protocol", params.ProtocolVersion,
	)

	caps := ServerCapabilities{
		Tools: &ToolsCapability{ListChanged: false},
	}
	if s.resources != nil {
		caps.Resources = &ResourcesCapability{Subscribe: true, ListChanged: false}
	}

	result := InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    caps,
		ServerInfo:      s.serverInfo,
	}

	return s.transport.SendResult(req.ID, result)
}

func (s *Server) handleToolsList(req *Request) error {
	tools := s.handler.GetTools()
	result := ListToolsResult{Tools: tools}
	return s.transport.SendResult(req.ID, result)
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) error {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.transport.SendError(req.ID, InvalidParams, "Invalid tool call params", nil)
	}

	s.log.Info("Tool call", "name", params.Name)

	result, err := s.handler.HandleTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.Error("Tool call failed", "name", params.Name, "error", err)
		// Return error as tool result, not JSON-RPC error
		return s.transport.SendResult(req.ID, &CallToolResult{
			Content: []ContentBlock{TextContent(fmt.Sprintf("Error: %s", err.Error()))},
			IsError: true,
		})
	}

	return s.transport.SendResult(req.ID, result)
}

func (s *Server) handleResourcesList(req *Request) error {
	resources := []Resource{}
	if s.resources != nil {
		resources = append(resources, s.resources.ListResources()...)
	}
	return s.transport.SendResult(req.ID, ListResourcesResult{Resources: resources})
}

func (s *Server) handleResourcesRead(ctx context.Context, req *Request) error {
	var params ReadResourceParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.transport.SendError(req.ID, InvalidParams, "Invalid resource read params", nil)
	}

	if s.resources == nil {
		return s.transport.SendError(req.ID, ResourceNotFound, fmt.Sprintf("Resource not found: %s", params.URI), nil)
	}

	result, err := s.resources.ReadResource(ctx, params.URI)
	if errors.Is(err, ErrResourceNotFound) {
		return s.transport.SendError(req.ID, ResourceNotFound, fmt.Sprintf("Resource not found: %s", params.URI), nil)
	}
	if err != nil {
		return s.transport.SendError(req.ID, InternalError, err.Error(), nil)
	}
	return s.transport.SendResult(req.ID, result)
}

func (s *Server) handleResourcesSubscribe(req *Request, subscribe bool) error {
	var params ReadResourceParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		return s.transport.SendError(req.ID, InvalidParams, "Invalid subscribe params", nil)
	}

	s.subsMu.Lock()
	if subscribe {
		s.subscriptions[params.URI] = true
	} else {
		delete(s.subscriptions, params.URI)
	}
	s.subsMu.Unlock()

	s.log.Debug("resource subscription", "uri", params.URI, "subscribed", subscribe)
	return s.transport.SendResult(req.ID, map[string]interface{}{})
}
