// Package client wires the transport, history store and readiness
// coordinator into a running avatar client.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ihiteshgupta/avatar-client/internal/backend"
	"github.com/ihiteshgupta/avatar-client/internal/config"
	"github.com/ihiteshgupta/avatar-client/internal/health"
	"github.com/ihiteshgupta/avatar-client/internal/history"
	"github.com/ihiteshgupta/avatar-client/internal/protocol"
	"github.com/ihiteshgupta/avatar-client/internal/readiness"
	"github.com/ihiteshgupta/avatar-client/internal/state"
	"github.com/ihiteshgupta/avatar-client/internal/status"
	"github.com/ihiteshgupta/avatar-client/internal/store"
	"github.com/ihiteshgupta/avatar-client/internal/transport"
)

var (
	// ErrNotReady is returned by actions that need an open connection and a
	// loaded history.
	ErrNotReady = errors.New("client not ready")

	// ErrStopped is returned once the client has been stopped.
	ErrStopped = errors.New("client stopped")

	// ErrCurrentHistory is returned when deleting the selected history.
	ErrCurrentHistory = errors.New("cannot delete the current history")
)

// Transport is the connection the client drives.
type Transport interface {
	Connect(ctx context.Context, url string) error
	Close() error
	Send(ctx context.Context, v any) error
	Ping(ctx context.Context) error
	CurrentState() string
	URL() string
	OnStateChange(fn func(state string))
	OnMessage(fn func(data []byte))
}

// Client is the avatar client that manages connection, history and readiness.
type Client struct {
	transport Transport
	histories *history.Store
	readiness *readiness.Coordinator
	monitor   *health.Monitor
	store     *store.SQLiteStore
	config    *config.Config
	log       *slog.Logger
	tracker   status.Tracker
	sessionID string

	queue *taskQueue

	eventListeners  []func(Event)
	statusListeners []func(from, to state.State)

	endpoints     backend.Config
	manualClose   bool
	stopped       bool
	pendingSwitch string
	messages      []protocol.HistoryMessage

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
}

// NewClient creates a new avatar client.
func NewClient(cfg *config.Config, storeDB *store.SQLiteStore, t Transport, endpoints backend.Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	log := slog.Default().With("component", "client")

	coord := readiness.NewCoordinator(slog.Default())
	c := &Client{
		transport: t,
		histories: history.NewStore(storeDB.Histories, slog.Default()),
		readiness: coord,
		monitor:   health.NewMonitor(cfg, coord),
		store:     storeDB,
		config:    cfg,
		log:       log,
		sessionID: uuid.NewString(),
		queue:     newTaskQueue(),
		endpoints: endpoints,
		ctx:       ctx,
		cancel:    cancel,
	}

	coord.Subscribe(c.onStatusChange)

	t.OnStateChange(func(s string) {
		c.queue.Push(func() { c.handleTransportState(s) })
	})
	t.OnMessage(func(data []byte) {
		c.monitor.RecordMessageReceived()
		c.queue.Push(func() { c.handleMessage(data) })
	})

	return c
}

// Start restores persisted history state and begins watching readiness.
// It does not connect; call Connect for that.
func (c *Client) Start(ctx context.Context) error {
	if err := c.histories.Load(ctx); err != nil {
		return err
	}
	c.readiness.Watch(c.ctx, c.transport, c.histories, c.queue.Push)
	c.monitor.Start(c.transport.Ping)
	c.log.Info("client started", "session_id", c.sessionID, "ws_url", c.WSURL())
	return nil
}

// Connect dials the backend. A failed dial is retried with backoff.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	c.manualClose = false
	url := c.endpoints.WSURL
	c.mu.Unlock()

	if err := c.transport.Connect(ctx, url); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// Reconnect connects again unless the transport is open or connecting. It
// reports whether a connection attempt was made.
func (c *Client) Reconnect(ctx context.Context) (bool, error) {
	var err error
	attempted := c.tracker.Click(c.transport.CurrentState(), func() {
		c.monitor.ResetReconnectBackoff()
		err = c.Connect(ctx)
	})
	return attempted, err
}

// Disconnect closes the connection without scheduling a reconnect.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.manualClose = true
	c.mu.Unlock()
	return c.transport.Close()
}

// Stop gracefully stops the client.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.manualClose = true
	c.mu.Unlock()

	// Abort any reconnect dial before waiting on the monitor.
	c.cancel()
	if err := c.transport.Close(); err != nil {
		c.log.Debug("transport close failed", "error", err)
	}
	c.monitor.Stop()
	c.queue.Close()
	c.log.Info("client stopped", "session_id", c.sessionID)
}

// SessionID identifies this run in the transition log.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Status returns the readiness status.
func (c *Client) Status() state.State {
	return c.readiness.Status()
}

// IsReady returns true if the client can send to the avatar.
func (c *Client) IsReady() bool {
	return c.readiness.IsFullyReady()
}

// Snapshot returns the current readiness snapshot.
func (c *Client) Snapshot() readiness.Snapshot {
	return c.readiness.Snapshot()
}

// Readiness returns the coordinator.
func (c *Client) Readiness() *readiness.Coordinator {
	return c.readiness
}

// Health returns the health monitor status.
func (c *Client) Health() health.Status {
	return c.monitor.GetStatus()
}

// Indicator returns the connection badge for the current transport state.
func (c *Client) Indicator() status.Indicator {
	return c.tracker.Indicator(c.transport.CurrentState())
}

// Endpoints returns the backend endpoints in use.
func (c *Client) Endpoints() backend.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoints
}

// WSURL returns the WebSocket URL in use.
func (c *Client) WSURL() string {
	return c.Endpoints().WSURL
}

// Histories returns the known histories.
func (c *Client) Histories() []store.History {
	return c.histories.Histories()
}

// CurrentHistoryID returns the selected history, or "".
func (c *Client) CurrentHistoryID() string {
	return c.histories.CurrentID()
}

// Messages returns the messages of the last loaded history.
func (c *Client) Messages() []protocol.HistoryMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]protocol.HistoryMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// TransitionHistory returns the most recent readiness transitions.
func (c *Client) TransitionHistory(ctx context.Context, limit int) ([]store.Transition, error) {
	return c.store.State.GetTransitionHistory(ctx, limit)
}

// UpdateEndpoints stores user supplied backend URLs. An empty value keeps the
// current one. A live connection is moved to the new WebSocket URL.
func (c *Client) UpdateEndpoints(ctx context.Context, wsURL, baseURL string) error {
	if wsURL != "" {
		if err := c.store.Settings.Set(ctx, store.SettingWSURL, wsURL); err != nil {
			return fmt.Errorf("failed to save ws url: %w", err)
		}
	}
	if baseURL != "" {
		if err := c.store.Settings.Set(ctx, store.SettingBaseURL, baseURL); err != nil {
			return fmt.Errorf("failed to save base url: %w", err)
		}
	}

	c.mu.Lock()
	changed := wsURL != "" && wsURL != c.endpoints.WSURL
	if wsURL != "" {
		c.endpoints.WSURL = wsURL
	}
	if baseURL != "" {
		c.endpoints.BaseURL = baseURL
	}
	c.mu.Unlock()

	st := transport.ConnectionState(c.transport.CurrentState())
	if changed && (st == transport.StateOpen || st == transport.StateConnecting) {
		return c.Connect(ctx)
	}
	return nil
}

// SendText sends user text to the avatar.
func (c *Client) SendText(ctx context.Context, text string) error {
	if text == "" {
		return fmt.Errorf("text is required")
	}
	return c.sendWhenReady(ctx, protocol.TextInput(text))
}

// Interrupt asks the avatar to stop speaking.
func (c *Client) Interrupt(ctx context.Context) error {
	return c.send(ctx, protocol.InterruptSignal())
}

// NewHistory asks the backend to start a new conversation.
func (c *Client) NewHistory(ctx context.Context) error {
	return c.sendWhenReady(ctx, protocol.CreateNewHistory())
}

// DeleteHistory asks the backend to delete a conversation other than the
// current one.
func (c *Client) DeleteHistory(ctx context.Context, uid string) error {
	if uid == "" {
		return fmt.Errorf("history uid is required")
	}

	var err error
	doErr := c.queue.Do(ctx, func() {
		if uid == c.histories.CurrentID() {
			err = fmt.Errorf("%w: %s", ErrCurrentHistory, uid)
			return
		}
		err = c.sendWhenReady(ctx, protocol.DeleteHistory(uid))
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// RefreshHistories asks the backend for the history list.
func (c *Client) RefreshHistories(ctx context.Context) error {
	return c.send(ctx, protocol.FetchHistoryList())
}

// SwitchHistory loads another conversation. Readiness drops until the
// backend returns its data.
func (c *Client) SwitchHistory(ctx context.Context, uid string) error {
	if uid == "" {
		return fmt.Errorf("history uid is required")
	}

	var err error
	doErr := c.queue.Do(ctx, func() {
		if !c.readiness.Snapshot().IsTransportOpen {
			err = transport.ErrNotConnected
			return
		}
		c.mu.Lock()
		c.pendingSwitch = uid
		c.mu.Unlock()

		c.readiness.SetHistoryReady(c.ctx, false)
		if sendErr := c.send(ctx, protocol.FetchAndSetHistory(uid)); sendErr != nil {
			c.abortSwitch()
			err = sendErr
		}
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// SetHistoryReady overrides history readiness.
func (c *Client) SetHistoryReady(ctx context.Context, ready bool) error {
	return c.queue.Do(ctx, func() {
		c.readiness.SetHistoryReady(c.ctx, ready)
	})
}

// OnEvent registers a callback for all events. Callbacks run on the
// client's dispatch goroutine.
func (c *Client) OnEvent(handler func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventListeners = append(c.eventListeners, handler)
}

// OnStatusChange registers a callback for readiness status changes.
func (c *Client) OnStatusChange(handler func(from, to state.State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusListeners = append(c.statusListeners, handler)
}

func (c *Client) sendWhenReady(ctx context.Context, msg protocol.Outbound) error {
	if !c.IsReady() {
		return fmt.Errorf("%w: status is %s", ErrNotReady, c.Status())
	}
	return c.send(ctx, msg)
}

func (c *Client) send(ctx context.Context, msg protocol.Outbound) error {
	if err := c.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	c.monitor.RecordMessageSent()
	c.log.Debug("sent message", "type", msg.Type)
	return nil
}

func (c *Client) emit(evt Event) {
	c.mu.RLock()
	listeners := make([]func(Event), len(c.eventListeners))
	copy(listeners, c.eventListeners)
	c.mu.RUnlock()

	for _, listener := range listeners {
		listener(evt)
	}
}

// onStatusChange persists readiness transitions and fans them out.
func (c *Client) onStatusChange(ctx context.Context, from, to state.State, snap readiness.Snapshot) {
	c.log.Info("readiness transition", "from", from, "to", to, "transport_state", snap.TransportState)

	// Transitions caused by Stop are still recorded.
	ctx = context.WithoutCancel(ctx)

	if err := c.store.State.SaveState(ctx, to); err != nil {
		c.log.Error("failed to save state", "error", err)
	}

	trigger, _ := state.TriggerFor(from, to)
	err := c.store.State.LogTransition(ctx, &store.Transition{
		SessionID:      c.sessionID,
		FromState:      from,
		ToState:        to,
		Trigger:        string(trigger),
		TransportState: snap.TransportState,
		HistoryUID:     snap.HistoryID,
	})
	if err != nil {
		c.log.Error("failed to log transition", "error", err)
	}

	c.mu.RLock()
	listeners := make([]func(from, to state.State), len(c.statusListeners))
	copy(listeners, c.statusListeners)
	c.mu.RUnlock()

	for _, listener := range listeners {
		listener(from, to)
	}
	c.emit(NewEvent(EventStatusChange, StatusPayload{From: from, To: to, Snapshot: snap}))
}

func (c *Client) handleTransportState(s string) {
	c.emit(NewEvent(EventConnectionChange, ConnectionPayload{State: s, URL: c.transport.URL()}))

	switch transport.ConnectionState(s) {
	case transport.StateOpen:
		c.monitor.OnConnectionRestored()
		if err := c.send(c.ctx, protocol.FetchHistoryList()); err != nil {
			c.log.Warn("failed to request history list", "error", err)
		}
		if uid := c.histories.CurrentID(); uid != "" {
			if err := c.send(c.ctx, protocol.FetchAndSetHistory(uid)); err != nil {
				c.log.Warn("failed to restore history", "history_uid", uid, "error", err)
			}
		}
	case transport.StateClosed:
		c.mu.Lock()
		c.pendingSwitch = ""
		skip := c.manualClose || c.stopped
		c.mu.Unlock()
		if skip {
			return
		}
		if !c.monitor.ScheduleReconnect(c.reconnect) {
			c.log.Warn("not reconnecting", "ws_url", c.WSURL())
		}
	}
}

func (c *Client) reconnect() {
	c.mu.RLock()
	skip := c.manualClose || c.stopped
	c.mu.RUnlock()
	if skip {
		return
	}
	if err := c.Connect(c.ctx); err != nil && !errors.Is(err, ErrStopped) {
		c.log.Warn("reconnect failed", "error", err)
	}
}

func (c *Client) handleMessage(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		c.log.Warn("dropping malformed message", "error", err)
		return
	}
	c.log.Debug("received message", "type", msg.Type)

	switch msg.Type {
	case protocol.TypeHistoryList:
		if err := c.histories.SetHistories(c.ctx, msg.Histories); err != nil {
			c.log.Error("failed to store history list", "error", err)
		}
		c.emit(NewEvent(EventHistoryList, HistoryListPayload{
			Histories: msg.Histories,
			CurrentID: c.histories.CurrentID(),
		}))

	case protocol.TypeNewHistoryCreated:
		c.mu.Lock()
		c.messages = nil
		c.mu.Unlock()
		if err := c.histories.Add(c.ctx, msg.HistoryUID); err != nil {
			c.log.Error("failed to store new history", "error", err)
		}
		c.emit(NewEvent(EventHistoryCreated, HistoryPayload{UID: msg.HistoryUID, Success: true}))

	case protocol.TypeHistoryData:
		c.mu.Lock()
		c.messages = msg.Messages
		uid := c.pendingSwitch
		c.pendingSwitch = ""
		c.mu.Unlock()
		if uid != "" {
			if err := c.histories.Select(c.ctx, uid); err != nil {
				c.log.Error("failed to store history selection", "error", err)
			}
		} else {
			uid = c.histories.CurrentID()
		}
		c.emit(NewEvent(EventHistoryData, HistoryDataPayload{UID: uid, Messages: msg.Messages}))

	case protocol.TypeHistoryDeleted:
		if msg.Success && msg.HistoryUID != "" {
			if err := c.histories.Remove(c.ctx, msg.HistoryUID); err != nil && !errors.Is(err, store.ErrNotFound) {
				c.log.Error("failed to remove history", "error", err)
			}
		}
		c.emit(NewEvent(EventHistoryDeleted, HistoryPayload{UID: msg.HistoryUID, Success: msg.Success}))

	case protocol.TypeFullText:
		c.emit(NewEvent(EventText, TextPayload{Text: msg.Text}))

	case protocol.TypeControl:
		c.emit(NewEvent(EventControl, TextPayload{Text: msg.Text}))

	case protocol.TypeError:
		c.log.Warn("backend error", "message", msg.Message)
		c.abortSwitch()
		c.emit(NewEvent(EventError, TextPayload{Text: msg.Message}))

	default:
		c.log.Debug("ignoring message", "type", msg.Type)
	}
}

// abortSwitch gives up on a pending history switch and re-announces the
// current selection so readiness is derived again.
func (c *Client) abortSwitch() {
	c.mu.Lock()
	pending := c.pendingSwitch
	c.pendingSwitch = ""
	c.mu.Unlock()
	if pending == "" {
		return
	}
	if err := c.histories.Select(c.ctx, c.histories.CurrentID()); err != nil {
		c.log.Error("failed to restore history selection", "error", err)
	}
}
