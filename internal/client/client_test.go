package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihiteshgupta/avatar-client/internal/backend"
	"github.com/ihiteshgupta/avatar-client/internal/config"
	"github.com/ihiteshgupta/avatar-client/internal/protocol"
	"github.com/ihiteshgupta/avatar-client/internal/state"
	"github.com/ihiteshgupta/avatar-client/internal/store"
	"github.com/ihiteshgupta/avatar-client/internal/transport"
)

// FakeTransport implements Transport for testing.
type FakeTransport struct {
	mu         sync.Mutex
	state      string
	url        string
	sent       []protocol.Outbound
	connects   int
	connectErr error

	stateHandlers   []func(string)
	messageHandlers []func([]byte)
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{state: "CLOSED"}
}

func (f *FakeTransport) Connect(_ context.Context, url string) error {
	f.mu.Lock()
	f.connects++
	f.url = url
	err := f.connectErr
	f.mu.Unlock()

	f.setState("CONNECTING")
	if err != nil {
		f.setState("CLOSED")
		return err
	}
	f.setState("OPEN")
	return nil
}

func (f *FakeTransport) Close() error {
	f.setState("CLOSED")
	return nil
}

func (f *FakeTransport) Send(_ context.Context, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != "OPEN" {
		return transport.ErrNotConnected
	}
	f.sent = append(f.sent, v.(protocol.Outbound))
	return nil
}

func (f *FakeTransport) Ping(_ context.Context) error { return nil }

func (f *FakeTransport) CurrentState() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FakeTransport) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

func (f *FakeTransport) OnStateChange(fn func(string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateHandlers = append(f.stateHandlers, fn)
}

func (f *FakeTransport) OnMessage(fn func([]byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messageHandlers = append(f.messageHandlers, fn)
}

func (f *FakeTransport) setState(s string) {
	f.mu.Lock()
	if f.state == s {
		f.mu.Unlock()
		return
	}
	f.state = s
	handlers := append([]func(string){}, f.stateHandlers...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(s)
	}
}

// Drop simulates the server going away.
func (f *FakeTransport) Drop() { f.setState("CLOSED") }

// Deliver simulates an inbound backend message.
func (f *FakeTransport) Deliver(t *testing.T, msg map[string]any) {
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	f.mu.Lock()
	handlers := append([]func([]byte){}, f.messageHandlers...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}

func (f *FakeTransport) Sent() []protocol.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Outbound(nil), f.sent...)
}

func (f *FakeTransport) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *FakeTransport) SetConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.KeepaliveInterval = 0
	cfg.ReconnectBaseDelay = time.Millisecond
	cfg.ReconnectMaxDelay = 5 * time.Millisecond
	return cfg
}

func setupTestDB(t *testing.T) *store.SQLiteStore {
	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func setupClient(t *testing.T, db *store.SQLiteStore) (*Client, *FakeTransport) {
	return setupClientWithConfig(t, db, testConfig())
}

func setupClientWithConfig(t *testing.T, db *store.SQLiteStore, cfg *config.Config) (*Client, *FakeTransport) {
	ft := NewFakeTransport()
	c := NewClient(cfg, db, ft, backend.Resolve(nil))
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Stop)
	return c, ft
}

// settle waits until the dispatch queue has nothing left to run.
func settle(t *testing.T, c *Client) {
	t.Helper()
	for i := 0; i < 20; i++ {
		require.NoError(t, c.queue.Do(context.Background(), func() {}))
		if c.queue.Len() == 0 {
			return
		}
	}
	t.Fatal("dispatch queue did not settle")
}

func historyList(uids ...string) map[string]any {
	histories := make([]map[string]any, 0, len(uids))
	for _, uid := range uids {
		histories = append(histories, map[string]any{"uid": uid})
	}
	return map[string]any{"type": "history-list", "histories": histories}
}

func sentTypes(ft *FakeTransport) []string {
	var types []string
	for _, m := range ft.Sent() {
		types = append(types, m.Type)
	}
	return types
}

func connectReady(t *testing.T, c *Client, ft *FakeTransport) {
	t.Helper()
	require.NoError(t, c.Connect(context.Background()))
	ft.Deliver(t, historyList("h2", "h1"))
	settle(t, c)
	require.Equal(t, state.StateReady, c.Status())
}

func TestClient_ConnectRequestsHistories(t *testing.T) {
	c, ft := setupClient(t, setupTestDB(t))

	require.NoError(t, c.Connect(context.Background()))
	settle(t, c)

	assert.Equal(t, "ws://127.0.0.1:10000/client-ws", ft.URL())
	assert.Equal(t, []string{protocol.TypeFetchHistoryList}, sentTypes(ft))
	assert.Equal(t, state.StateConnecting, c.Status())
	assert.False(t, c.IsReady())

	ft.Deliver(t, historyList("h2", "h1"))
	settle(t, c)

	assert.Equal(t, state.StateReady, c.Status())
	assert.Equal(t, "h2", c.CurrentHistoryID())
	assert.Len(t, c.Histories(), 2)
}

func TestClient_RestoredSelectionIsReadyOnOpen(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Histories.ReplaceAll(ctx, []store.History{{UID: "h2"}, {UID: "h1"}}))
	require.NoError(t, db.Histories.SetSelection(ctx, "h1"))

	c, ft := setupClient(t, db)
	assert.Equal(t, "h1", c.CurrentHistoryID())
	assert.Equal(t, state.StateDisconnected, c.Status())

	require.NoError(t, c.Connect(ctx))
	settle(t, c)

	assert.Equal(t, state.StateReady, c.Status())
	sent := ft.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, protocol.FetchHistoryList(), sent[0])
	assert.Equal(t, protocol.FetchAndSetHistory("h1"), sent[1])
}

func TestClient_StatusSequence(t *testing.T) {
	c, ft := setupClient(t, setupTestDB(t))

	var mu sync.Mutex
	var got []state.State
	c.OnStatusChange(func(from, to state.State) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, to)
	})

	connectReady(t, c, ft)
	ft.Drop()
	settle(t, c)
	require.NoError(t, c.Disconnect())
	settle(t, c)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []state.State{state.StateConnecting, state.StateReady, state.StateDisconnected}, got[:3])
}

func TestClient_TransitionsPersisted(t *testing.T) {
	db := setupTestDB(t)
	c, ft := setupClient(t, db)
	ctx := context.Background()

	connectReady(t, c, ft)

	transitions, err := c.TransitionHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, transitions, 2)

	// Newest first.
	assert.Equal(t, state.StateConnecting, transitions[0].FromState)
	assert.Equal(t, state.StateReady, transitions[0].ToState)
	assert.Equal(t, string(state.TriggerHistoryReady), transitions[0].Trigger)
	assert.Equal(t, "h2", transitions[0].HistoryUID)
	assert.Equal(t, c.SessionID(), transitions[0].SessionID)
	assert.Equal(t, string(state.TriggerTransportOpened), transitions[1].Trigger)

	saved, err := db.State.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.StateReady, saved)
}

func TestClient_ActionsRequireReady(t *testing.T) {
	c, ft := setupClient(t, setupTestDB(t))
	ctx := context.Background()

	assert.ErrorIs(t, c.SendText(ctx, "hello"), ErrNotReady)
	assert.ErrorIs(t, c.NewHistory(ctx), ErrNotReady)
	assert.ErrorIs(t, c.DeleteHistory(ctx, "h1"), ErrNotReady)

	require.NoError(t, c.Connect(ctx))
	settle(t, c)
	assert.ErrorIs(t, c.SendText(ctx, "hello"), ErrNotReady)

	ft.Deliver(t, historyList("h2", "h1"))
	settle(t, c)

	require.NoError(t, c.SendText(ctx, "hello"))
	sent := ft.Sent()
	assert.Equal(t, protocol.TextInput("hello"), sent[len(sent)-1])

	assert.Error(t, c.SendText(ctx, ""))
}

func TestClient_SwitchHistory(t *testing.T) {
	c, ft := setupClient(t, setupTestDB(t))
	ctx := context.Background()
	connectReady(t, c, ft)

	require.NoError(t, c.SwitchHistory(ctx, "h1"))
	assert.Equal(t, state.StateConnecting, c.Status())
	assert.ErrorIs(t, c.SendText(ctx, "hi"), ErrNotReady)

	sent := ft.Sent()
	assert.Equal(t, protocol.FetchAndSetHistory("h1"), sent[len(sent)-1])

	ft.Deliver(t, map[string]any{
		"type": "history-data",
		"messages": []map[string]any{
			{"role": "human", "content": "hi", "timestamp": "t1"},
			{"role": "ai", "content": "hello", "timestamp": "t2"},
		},
	})
	settle(t, c)

	assert.Equal(t, state.StateReady, c.Status())
	assert.Equal(t, "h1", c.CurrentHistoryID())
	require.Len(t, c.Messages(), 2)
	assert.Equal(t, "hello", c.Messages()[1].Content)
}

func TestClient_SwitchHistoryErrorRestoresReadiness(t *testing.T) {
	c, ft := setupClient(t, setupTestDB(t))
	ctx := context.Background()
	connectReady(t, c, ft)

	require.NoError(t, c.SwitchHistory(ctx, "missing"))
	assert.Equal(t, state.StateConnecting, c.Status())

	ft.Deliver(t, map[string]any{"type": "error", "message": "history not found"})
	settle(t, c)

	assert.Equal(t, state.StateReady, c.Status())
	assert.Equal(t, "h2", c.CurrentHistoryID())
}

func TestClient_SwitchHistoryWhenClosed(t *testing.T) {
	c, _ := setupClient(t, setupTestDB(t))
	err := c.SwitchHistory(context.Background(), "h1")
	assert.ErrorIs(t, err, transport.ErrNotConnected)
	assert.Equal(t, state.StateDisconnected, c.Status())
}

func TestClient_NewHistory(t *testing.T) {
	c, ft := setupClient(t, setupTestDB(t))
	ctx := context.Background()
	connectReady(t, c, ft)

	var events []Event
	c.OnEvent(func(evt Event) { events = append(events, evt) })

	require.NoError(t, c.NewHistory(ctx))
	ft.Deliver(t, map[string]any{"type": "new-history-created", "history_uid": "h3"})
	settle(t, c)

	assert.Equal(t, "h3", c.CurrentHistoryID())
	assert.Equal(t, "h3", c.Histories()[0].UID)
	assert.Equal(t, state.StateReady, c.Status())

	require.NotEmpty(t, events)
	assert.Equal(t, EventHistoryCreated, events[0].Type)
}

func TestClient_DeleteHistory(t *testing.T) {
	c, ft := setupClient(t, setupTestDB(t))
	ctx := context.Background()
	connectReady(t, c, ft)

	assert.ErrorIs(t, c.DeleteHistory(ctx, "h2"), ErrCurrentHistory)

	require.NoError(t, c.DeleteHistory(ctx, "h1"))
	sent := ft.Sent()
	assert.Equal(t, protocol.DeleteHistory("h1"), sent[len(sent)-1])

	ft.Deliver(t, map[string]any{"type": "history-deleted", "success": true, "history_uid": "h1"})
	settle(t, c)

	require.Len(t, c.Histories(), 1)
	assert.Equal(t, "h2", c.Histories()[0].UID)
}

func TestClient_DeleteHistoryAfterPendingSwitch(t *testing.T) {
	c, ft := setupClient(t, setupTestDB(t))
	ctx := context.Background()
	connectReady(t, c, ft)

	require.NoError(t, c.SwitchHistory(ctx, "h1"))
	// history-data is queued ahead of the delete, so h1 is current by then.
	ft.Deliver(t, map[string]any{"type": "history-data", "messages": []any{}})

	assert.ErrorIs(t, c.DeleteHistory(ctx, "h1"), ErrCurrentHistory)
	assert.NotContains(t, ft.Sent(), protocol.DeleteHistory("h1"))
	assert.Equal(t, "h1", c.CurrentHistoryID())
}

func TestClient_TextEvents(t *testing.T) {
	c, ft := setupClient(t, setupTestDB(t))
	connectReady(t, c, ft)

	var got []Event
	c.OnEvent(func(evt Event) { got = append(got, evt) })

	ft.Deliver(t, map[string]any{"type": "full-text", "text": "Thinking..."})
	ft.Deliver(t, map[string]any{"type": "control", "text": "start-mic"})
	ft.Deliver(t, map[string]any{"type": "mystery"})
	ft.Deliver(t, map[string]any{"no": "type"})
	settle(t, c)

	require.Len(t, got, 2)
	assert.Equal(t, EventText, got[0].Type)
	assert.Equal(t, TextPayload{Text: "Thinking..."}, got[0].Payload)
	assert.Equal(t, EventControl, got[1].Type)
	assert.Equal(t, int64(5), c.Health().MessagesReceived)
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	c, ft := setupClient(t, setupTestDB(t))
	connectReady(t, c, ft)

	ft.Drop()
	assert.Eventually(t, func() bool {
		return ft.Connects() >= 2 && ft.CurrentState() == "OPEN"
	}, time.Second, time.Millisecond)

	// History is still selected, so readiness comes straight back.
	assert.Eventually(t, func() bool { return c.Status() == state.StateReady }, time.Second, time.Millisecond)
}

func TestClient_RetriesFailedDial(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectMaxRetries = 10000
	c, ft := setupClientWithConfig(t, setupTestDB(t), cfg)
	ft.SetConnectErr(errors.New("connection refused"))

	assert.Error(t, c.Connect(context.Background()))
	assert.Eventually(t, func() bool { return ft.Connects() >= 3 }, time.Second, time.Millisecond)

	ft.SetConnectErr(nil)
	assert.Eventually(t, func() bool { return ft.CurrentState() == "OPEN" }, time.Second, time.Millisecond)
}

func TestClient_DisconnectDoesNotReconnect(t *testing.T) {
	c, ft := setupClient(t, setupTestDB(t))
	connectReady(t, c, ft)

	require.NoError(t, c.Disconnect())
	settle(t, c)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, ft.Connects())
	assert.Equal(t, state.StateDisconnected, c.Status())
}

func TestClient_Reconnect(t *testing.T) {
	c, ft := setupClient(t, setupTestDB(t))
	ctx := context.Background()

	assert.True(t, c.Indicator().IsDisconnected)
	assert.Equal(t, "wsStatus.clickToConnect", c.Indicator().TextKey)

	ok, err := c.Reconnect(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "wsStatus.connected", c.Indicator().TextKey)

	ok, err = c.Reconnect(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "open transport is left alone")
	assert.Equal(t, 1, ft.Connects())

	require.NoError(t, c.Disconnect())
	assert.Equal(t, "wsStatus.clickToReconnect", c.Indicator().TextKey)
}

func TestClient_SetHistoryReady(t *testing.T) {
	c, ft := setupClient(t, setupTestDB(t))
	ctx := context.Background()
	connectReady(t, c, ft)

	require.NoError(t, c.SetHistoryReady(ctx, false))
	assert.Equal(t, state.StateConnecting, c.Status())

	require.NoError(t, c.SetHistoryReady(ctx, true))
	assert.Equal(t, state.StateReady, c.Status())
}

func TestClient_UpdateEndpoints(t *testing.T) {
	db := setupTestDB(t)
	c, ft := setupClient(t, db)
	ctx := context.Background()
	connectReady(t, c, ft)

	require.NoError(t, c.UpdateEndpoints(ctx, "ws://other:10000/client-ws", ""))

	assert.Equal(t, "ws://other:10000/client-ws", ft.URL())
	assert.Equal(t, 2, ft.Connects())
	assert.Equal(t, backend.LocalURL, c.Endpoints().BaseURL)

	stored, err := db.Settings.Get(ctx, store.SettingWSURL)
	require.NoError(t, err)
	assert.Equal(t, "ws://other:10000/client-ws", stored)
}

// silentBackend accepts TCP connections but never answers the WebSocket
// handshake. It returns the ws url and the number of accepted connections.
func silentBackend(t *testing.T) (string, *atomic.Int32) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var accepted atomic.Int32
	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted.Add(1)
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			conn.Close()
		}
	})
	return "ws://" + ln.Addr().String() + "/client-ws", &accepted
}

func TestClient_StopAbortsReconnectDial(t *testing.T) {
	url, accepted := silentBackend(t)
	endpoints := backend.Resolve(nil)
	endpoints.WSURL = url

	socket := transport.NewSocket(nil, transport.WithDialTimeout(30*time.Second))
	c := NewClient(testConfig(), setupTestDB(t), socket, endpoints)
	require.NoError(t, c.Start(context.Background()))

	// The first dial gives up quickly and schedules a reconnect, which then
	// hangs on the handshake with the long dial timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.Error(t, c.Connect(ctx))
	require.Eventually(t, func() bool {
		return accepted.Load() >= 2 && socket.State() == transport.StateConnecting
	}, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	c.Stop()
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, transport.StateClosed, socket.State())
}

func TestClient_StopRejectsWork(t *testing.T) {
	ft := NewFakeTransport()
	c := NewClient(testConfig(), setupTestDB(t), ft, backend.Resolve(nil))
	require.NoError(t, c.Start(context.Background()))
	c.Stop()
	c.Stop()

	assert.ErrorIs(t, c.Connect(context.Background()), ErrStopped)
	assert.ErrorIs(t, c.SetHistoryReady(context.Background(), true), ErrStopped)
}
