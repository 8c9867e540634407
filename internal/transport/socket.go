// Package transport provides the WebSocket connection to the avatar backend.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ConnectionState mirrors the ready states of a browser WebSocket.
type ConnectionState string

const (
	StateConnecting ConnectionState = "CONNECTING"
	StateOpen       ConnectionState = "OPEN"
	StateClosing    ConnectionState = "CLOSING"
	StateClosed     ConnectionState = "CLOSED"
)

// String returns the string representation of the state.
func (s ConnectionState) String() string {
	return string(s)
}

// ErrNotConnected is returned when sending on a socket that is not open.
var ErrNotConnected = errors.New("websocket not connected")

const defaultReadLimit = 4 << 20

// Option configures a Socket.
type Option func(*Socket)

// WithDialTimeout bounds the WebSocket handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(s *Socket) { s.dialTimeout = d }
}

// WithReadLimit sets the maximum size of a single inbound message.
func WithReadLimit(n int64) Option {
	return func(s *Socket) { s.readLimit = n }
}

// Socket is a single reconnectable WebSocket connection. Reconnect timing is
// left to the caller.
type Socket struct {
	log         *slog.Logger
	dialTimeout time.Duration
	readLimit   int64

	mu         sync.RWMutex
	conn       *websocket.Conn
	cancelRead context.CancelFunc
	cancelDial context.CancelFunc
	generation uint64
	state      ConnectionState
	url        string

	handlersMu      sync.RWMutex
	stateHandlers   []func(string)
	messageHandlers []func([]byte)

	// notifyMu keeps state notifications in the order the states were set.
	notifyMu sync.Mutex
}

// NewSocket creates a closed socket.
func NewSocket(log *slog.Logger, opts ...Option) *Socket {
	if log == nil {
		log = slog.Default()
	}
	s := &Socket{
		log:         log.With("component", "transport"),
		dialTimeout: 30 * time.Second,
		readLimit:   defaultReadLimit,
		state:       StateClosed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current connection state.
func (s *Socket) State() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// CurrentState returns the current connection state as a plain string.
func (s *Socket) CurrentState() string {
	return s.State().String()
}

// URL returns the URL of the last connection attempt.
func (s *Socket) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// OnStateChange registers a callback for connection state changes.
func (s *Socket) OnStateChange(fn func(state string)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.stateHandlers = append(s.stateHandlers, fn)
}

// OnMessage registers a callback for inbound text messages. Callbacks run on
// the read goroutine.
func (s *Socket) OnMessage(fn func(data []byte)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.messageHandlers = append(s.messageHandlers, fn)
}

// Connect dials url, replacing any existing connection.
func (s *Socket) Connect(ctx context.Context, url string) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()

	s.mu.Lock()
	old, oldCancel, oldDial := s.conn, s.cancelRead, s.cancelDial
	s.conn, s.cancelRead = nil, nil
	s.cancelDial = cancel
	s.generation++
	gen := s.generation
	s.url = url
	s.mu.Unlock()

	if oldDial != nil {
		oldDial()
	}
	if old != nil {
		oldCancel()
		_ = old.CloseNow()
	}

	s.setState(gen, StateConnecting)
	s.log.Info("connecting", "url", url)

	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		s.setState(gen, StateClosed)
		return fmt.Errorf("failed to dial %s: %w", url, err)
	}
	conn.SetReadLimit(s.readLimit)

	readCtx, cancelRead := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.generation != gen {
		// A newer Connect or Close won the race.
		s.mu.Unlock()
		cancelRead()
		_ = conn.CloseNow()
		return fmt.Errorf("connection to %s superseded", url)
	}
	s.conn = conn
	s.cancelRead = cancelRead
	s.cancelDial = nil
	s.mu.Unlock()

	s.setState(gen, StateOpen)
	s.log.Info("connected", "url", url)

	go s.readLoop(readCtx, gen, conn)
	return nil
}

// Send writes v as a JSON text message.
func (s *Socket) Send(ctx context.Context, v any) error {
	s.mu.RLock()
	conn, st := s.conn, s.state
	s.mu.RUnlock()

	if conn == nil || st != StateOpen {
		return ErrNotConnected
	}
	if err := wsjson.Write(ctx, conn, v); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Ping sends a ping and waits for the pong.
func (s *Socket) Ping(ctx context.Context) error {
	s.mu.RLock()
	conn, st := s.conn, s.state
	s.mu.RUnlock()

	if conn == nil || st != StateOpen {
		return ErrNotConnected
	}
	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Close performs a normal closure of the current connection and aborts any
// dial in progress.
func (s *Socket) Close() error {
	s.mu.Lock()
	conn, cancelRead, cancelDial := s.conn, s.cancelRead, s.cancelDial
	s.conn, s.cancelRead, s.cancelDial = nil, nil, nil
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	if cancelDial != nil {
		cancelDial()
	}
	if conn == nil {
		s.setState(gen, StateClosed)
		return nil
	}

	s.setState(gen, StateClosing)
	err := conn.Close(websocket.StatusNormalClosure, "client closing")
	cancelRead()
	s.setState(gen, StateClosed)
	return err
}

func (s *Socket) readLoop(ctx context.Context, gen uint64, conn *websocket.Conn) {
	defer s.detach(gen)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				s.log.Info("connection closed", "status", status)
			} else {
				s.log.Warn("connection lost", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			s.log.Debug("ignoring binary message", "size", len(data))
			continue
		}

		s.handlersMu.RLock()
		handlers := make([]func([]byte), len(s.messageHandlers))
		copy(handlers, s.messageHandlers)
		s.handlersMu.RUnlock()

		for _, h := range handlers {
			h(data)
		}
	}
}

// detach drops the connection of generation gen and reports the socket closed.
func (s *Socket) detach(gen uint64) {
	s.mu.Lock()
	if s.generation == gen && s.conn != nil {
		s.cancelRead()
		s.conn, s.cancelRead = nil, nil
	}
	s.mu.Unlock()
	s.setState(gen, StateClosed)
}

func (s *Socket) setState(gen uint64, next ConnectionState) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.generation != gen || s.state == next {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = next
	s.mu.Unlock()

	s.log.Debug("transport state", "from", prev, "to", next)

	s.handlersMu.RLock()
	handlers := make([]func(string), len(s.stateHandlers))
	copy(handlers, s.stateHandlers)
	s.handlersMu.RUnlock()

	for _, h := range handlers {
		h(next.String())
	}
}
