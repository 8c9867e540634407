// Package api exposes the avatar client as MCP tools and resources.
package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ihiteshgupta/avatar-client/internal/client"
	"github.com/ihiteshgupta/avatar-client/internal/store"
	"github.com/ihiteshgupta/avatar-client/internal/transport"
)

// Error codes
const (
	ErrNotReady     = "NOT_READY"
	ErrNotConnected = "NOT_CONNECTED"
	ErrSendFailed   = "SEND_FAILED"
	ErrNotFound     = "NOT_FOUND"
	ErrInvalidInput = "INVALID_INPUT"
	ErrInternal     = "INTERNAL_ERROR"
)

// MCPError represents a structured error for MCP responses.
type MCPError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// JSON returns the error as a JSON string.
func (e *MCPError) JSON() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// NewNotReadyError creates an error for when the client is not ready.
func NewNotReadyError(status string) *MCPError {
	return &MCPError{
		Code:    ErrNotReady,
		Message: fmt.Sprintf("Client not ready, current status: %s", status),
		Retry:   true,
	}
}

// NewNotConnectedError creates an error for when the transport is not open.
func NewNotConnectedError(transportState string) *MCPError {
	return &MCPError{
		Code:    ErrNotConnected,
		Message: fmt.Sprintf("Not connected to the backend, transport is %s", transportState),
		Retry:   true,
	}
}

// NewSendFailedError creates an error for a failed backend request.
func NewSendFailedError(err error) *MCPError {
	return &MCPError{
		Code:    ErrSendFailed,
		Message: fmt.Sprintf("Failed to send request: %s", err.Error()),
		Retry:   true,
	}
}

// NewNotFoundError creates an error for not found resources.
func NewNotFoundError(resource string) *MCPError {
	return &MCPError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("Resource not found: %s", resource),
		Retry:   false,
	}
}

// NewInvalidInputError creates an error for invalid input.
func NewInvalidInputError(message string) *MCPError {
	return &MCPError{
		Code:    ErrInvalidInput,
		Message: message,
		Retry:   false,
	}
}

// NewInternalError creates an error for internal errors.
func NewInternalError(err error) *MCPError {
	return &MCPError{
		Code:    ErrInternal,
		Message: fmt.Sprintf("Internal error: %s", err.Error()),
		Retry:   false,
	}
}

// classify maps a client error to its structured form.
func classify(err error, c Client) *MCPError {
	var mcpErr *MCPError
	switch {
	case errors.As(err, &mcpErr):
		return mcpErr
	case errors.Is(err, client.ErrNotReady):
		return NewNotReadyError(string(c.Status()))
	case errors.Is(err, transport.ErrNotConnected):
		return NewNotConnectedError(c.Snapshot().TransportState)
	case errors.Is(err, store.ErrNotFound):
		return NewNotFoundError(err.Error())
	case errors.Is(err, client.ErrCurrentHistory):
		return NewInvalidInputError(err.Error())
	case errors.Is(err, client.ErrStopped):
		return NewInternalError(err)
	default:
		return NewSendFailedError(err)
	}
}
