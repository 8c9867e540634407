package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ErrMalformed wraps messages that are not valid JSON-RPC.
var ErrMalformed = errors.New("malformed message")

// Transport handles newline delimited JSON-RPC over stdio.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	log    *slog.Logger
	mu     sync.Mutex
}

// NewTransport creates a new stdio transport.
func NewTransport(reader io.Reader, writer io.Writer, log *slog.Logger) *Transport {
	return &Transport{
		reader: bufio.NewReader(reader),
		writer: writer,
		log:    log,
	}
}

// ReadMessage reads the next JSON-RPC message. Blank lines are skipped and a
// final line without a trailing newline is still parsed.
func (t *Transport) ReadMessage() (*Request, error) {
	for {
		line, err := t.reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)

		if len(line) == 0 {
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil, io.EOF
				}
				return nil, fmt.Errorf("failed to read message: %w", err)
			}
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read message: %w", err)
		}

		t.log.Debug("received message", "raw", string(line))

		var req Request
		if jerr := json.Unmarshal(line, &req); jerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, jerr)
		}
		if req.Method == "" {
			return nil, fmt.Errorf("%w: missing method", ErrMalformed)
		}
		return &req, nil
	}
}

// WriteMessage writes a JSON-RPC response.
func (t *Transport) WriteMessage(resp *Response) error {
	return t.write(resp)
}

// SendResult sends a successful response.
func (t *Transport) SendResult(id interface{}, result interface{}) error {
	return t.WriteMessage(&Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

// SendError sends an error response.
func (t *Transport) SendError(id interface{}, code int, message string, data interface{}) error {
	return t.WriteMessage(&Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

// SendNotification sends a notification (no id, no response expected).
func (t *Transport) SendNotification(method string, params interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	return t.write(&Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  data,
	})
}

func (t *Transport) write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()

	t.log.Debug("sending message", "raw", string(data[:len(data)-1]))

	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
