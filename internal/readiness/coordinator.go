// Package readiness derives a single readiness signal for the client from
// the transport connection state and the current history selection.
//
// The coordinator owns two booleans: whether the transport is open and
// whether a history has been observed while it was open. The status
// (disconnected, connecting, ready) is always recomputed from them.
package readiness

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ihiteshgupta/avatar-client/internal/state"
)

// TransportOpen is the only transport state value treated as open. Any other
// value, including unknown ones, counts as not open.
const TransportOpen = "OPEN"

// Snapshot is a consistent view of the coordinator at one point in time.
type Snapshot struct {
	TransportState  string      `json:"transport_state"`
	HistoryID       string      `json:"history_id,omitempty"`
	IsTransportOpen bool        `json:"is_transport_open"`
	IsHistoryReady  bool        `json:"is_history_ready"`
	IsFullyReady    bool        `json:"is_fully_ready"`
	Status          state.State `json:"status"`
}

// Subscriber is called after every status change with the status before and
// after the change and the snapshot that produced it.
type Subscriber func(ctx context.Context, from, to state.State, snap Snapshot)

// TransportSignal is the subscribable connection state of a transport.
type TransportSignal interface {
	CurrentState() string
	OnStateChange(fn func(state string))
}

// HistorySignal is the subscribable current history selection.
type HistorySignal interface {
	CurrentID() string
	OnSelectionChange(fn func(id string))
}

// Dispatcher runs a task on the goroutine that owns the coordinator's inputs.
type Dispatcher func(task func())

// Immediate runs tasks synchronously on the calling goroutine.
func Immediate(task func()) { task() }

// Coordinator derives readiness from transport and history signals.
type Coordinator struct {
	machine *state.Machine
	log     *slog.Logger

	// updateMu serializes updates together with their notifications so
	// subscribers see status changes in the order they happened.
	updateMu sync.Mutex

	mu             sync.RWMutex
	transportState string
	historyID      string
	transportOpen  bool
	historyReady   bool

	subsMu      sync.RWMutex
	subscribers []Subscriber
}

// NewCoordinator creates a coordinator in the disconnected status.
func NewCoordinator(log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		machine:        state.NewMachine(),
		log:            log.With("component", "readiness"),
		transportState: "CLOSED",
	}
}

// Machine returns the status machine that mirrors derived transitions.
func (c *Coordinator) Machine() *state.Machine {
	return c.machine
}

// ObserveTransportChange records a new transport state. Leaving the open
// state clears history readiness. Entering it re-runs the history derivation
// against the last observed selection.
func (c *Coordinator) ObserveTransportChange(ctx context.Context, newState string) {
	c.update(ctx, func() {
		c.transportState = newState
		c.transportOpen = newState == TransportOpen
		if !c.transportOpen {
			c.historyReady = false
		}
		c.deriveHistoryLocked()
	})
}

// ObserveHistorySelectionChange records the current history identifier.
// A non-empty id marks history ready when the transport is open. Readiness
// never drops on a history notification.
func (c *Coordinator) ObserveHistorySelectionChange(ctx context.Context, id string) {
	c.update(ctx, func() {
		c.historyID = id
		c.deriveHistoryLocked()
	})
}

// SetHistoryReady overrides the history flag. It is used by flows that must
// suppress readiness while a conversation is being switched. The override
// stands until the next transport or history notification. Forcing the flag
// on while the transport is closed is ignored.
func (c *Coordinator) SetHistoryReady(ctx context.Context, ready bool) {
	c.update(ctx, func() {
		if ready && !c.transportOpen {
			c.log.Debug("ignoring history ready override while transport is not open",
				"transport_state", c.transportState)
			return
		}
		c.historyReady = ready
	})
}

// Status returns the current readiness status.
func (c *Coordinator) Status() state.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusLocked()
}

// IsFullyReady returns true when the transport is open and a history is ready.
func (c *Coordinator) IsFullyReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transportOpen && c.historyReady
}

// Snapshot returns the current state of the coordinator.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Subscribe registers a callback for status changes. Callbacks run
// synchronously on the goroutine that produced the change and must not call
// the coordinator's mutators.
func (c *Coordinator) Subscribe(fn Subscriber) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// Watch subscribes the coordinator to both upstream signals. Every
// notification is handed to dispatch, and an initial evaluation of the
// current values is dispatched once registration is done.
func (c *Coordinator) Watch(ctx context.Context, t TransportSignal, h HistorySignal, dispatch Dispatcher) {
	if dispatch == nil {
		dispatch = Immediate
	}

	t.OnStateChange(func(s string) {
		dispatch(func() { c.ObserveTransportChange(ctx, s) })
	})
	h.OnSelectionChange(func(id string) {
		dispatch(func() { c.ObserveHistorySelectionChange(ctx, id) })
	})

	dispatch(func() {
		c.ObserveHistorySelectionChange(ctx, h.CurrentID())
		c.ObserveTransportChange(ctx, t.CurrentState())
	})
}

func (c *Coordinator) deriveHistoryLocked() {
	if c.historyID != "" && c.transportOpen && !c.historyReady {
		c.historyReady = true
	}
}

func (c *Coordinator) statusLocked() state.State {
	switch {
	case !c.transportOpen:
		return state.StateDisconnected
	case !c.historyReady:
		return state.StateConnecting
	default:
		return state.StateReady
	}
}

func (c *Coordinator) snapshotLocked() Snapshot {
	return Snapshot{
		TransportState:  c.transportState,
		HistoryID:       c.historyID,
		IsTransportOpen: c.transportOpen,
		IsHistoryReady:  c.historyReady,
		IsFullyReady:    c.transportOpen && c.historyReady,
		Status:          c.statusLocked(),
	}
}

func (c *Coordinator) update(ctx context.Context, mutate func()) {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	c.mu.Lock()
	from := c.statusLocked()
	mutate()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if from == snap.Status {
		return
	}
	c.publish(ctx, from, snap)
}

func (c *Coordinator) publish(ctx context.Context, from state.State, snap Snapshot) {
	to := snap.Status
	if trigger, ok := state.TriggerFor(from, to); ok {
		if err := c.machine.Fire(ctx, trigger); err != nil {
			c.log.Error("status machine rejected transition", "from", from, "to", to, "error", err)
		}
	} else {
		c.log.Error("no trigger for status change", "from", from, "to", to)
	}

	c.log.Debug("readiness changed",
		"from", from,
		"to", to,
		"transport_state", snap.TransportState,
		"history_ready", snap.IsHistoryReady,
	)

	c.subsMu.RLock()
	subscribers := make([]Subscriber, len(c.subscribers))
	copy(subscribers, c.subscribers)
	c.subsMu.RUnlock()

	for _, fn := range subscribers {
		fn(ctx, from, to, snap)
	}
}
