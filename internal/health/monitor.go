// Package health provides health monitoring and self-healing for the client.
package health

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ihiteshgupta/avatar-client/internal/config"
	"github.com/ihiteshgupta/avatar-client/internal/readiness"
)

// Status represents the health status of the client.
type Status struct {
	State             string    `json:"state"`
	TransportState    string    `json:"transport_state"`
	HistoryID         string    `json:"history_id,omitempty"`
	Ready             bool      `json:"ready"`
	UptimeSeconds     int64     `json:"uptime_seconds"`
	LastMessage       time.Time `json:"last_message"`
	ReconnectCount    int       `json:"reconnect_count"`
	MessagesReceived  int64     `json:"messages_received"`
	MessagesSent      int64     `json:"messages_sent"`
	KeepaliveFailures int64     `json:"keepalive_failures"`
}

// SnapshotSource provides the current readiness snapshot.
type SnapshotSource interface {
	Snapshot() readiness.Snapshot
}

// Monitor tracks client health and manages reconnection.
type Monitor struct {
	config    *config.Config
	readiness SnapshotSource
	log       *slog.Logger

	keepaliveInterval time.Duration
	reconnectBackoff  *backoff.ExponentialBackOff
	maxRetries        int
	retryCount        int

	startTime         time.Time
	lastMessage       time.Time
	reconnectCount    int
	messagesReceived  atomic.Int64
	messagesSent      atomic.Int64
	keepaliveFailures atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(cfg *config.Config, src SnapshotSource) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.ReconnectBaseDelay
	bo.MaxInterval = cfg.ReconnectMaxDelay
	bo.MaxElapsedTime = 0 // Never stop based on elapsed time
	bo.Reset()

	return &Monitor{
		config:            cfg,
		readiness:         src,
		log:               slog.Default().With("component", "health"),
		keepaliveInterval: cfg.KeepaliveInterval,
		reconnectBackoff:  bo,
		maxRetries:        cfg.ReconnectMaxRetries,
		startTime:         time.Now(),
		ctx:               ctx,
		cancel:            cancel,
	}
}

// Start begins the health monitoring. When ping is non-nil and keepalive is
// enabled it is called every keepalive interval while the monitor runs.
func (m *Monitor) Start(ping func(ctx context.Context) error) {
	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
	m.log.Info("health monitor started", "keepalive_interval", m.keepaliveInterval)

	if ping == nil || m.keepaliveInterval <= 0 {
		return
	}

	if !m.track() {
		return
	}
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.keepaliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(m.ctx, m.keepaliveInterval)
				err := ping(ctx)
				cancel()
				if err != nil {
					m.keepaliveFailures.Add(1)
					m.log.Debug("keepalive failed", "error", err)
				}
			case <-m.ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the health monitoring and cancels pending reconnects. It waits
// for a reconnect callback that is already running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()
	m.wg.Wait()
	m.log.Info("health monitor stopped")
}

// GetStatus returns the current health status.
func (m *Monitor) GetStatus() Status {
	snap := m.readiness.Snapshot()

	m.mu.RLock()
	defer m.mu.RUnlock()

	return Status{
		State:             string(snap.Status),
		TransportState:    snap.TransportState,
		HistoryID:         snap.HistoryID,
		Ready:             snap.IsFullyReady,
		UptimeSeconds:     int64(time.Since(m.startTime).Seconds()),
		LastMessage:       m.lastMessage,
		ReconnectCount:    m.reconnectCount,
		MessagesReceived:  m.messagesReceived.Load(),
		MessagesSent:      m.messagesSent.Load(),
		KeepaliveFailures: m.keepaliveFailures.Load(),
	}
}

// RecordMessageReceived records an incoming message.
func (m *Monitor) RecordMessageReceived() {
	m.messagesReceived.Add(1)
	m.mu.Lock()
	m.lastMessage = time.Now()
	m.mu.Unlock()
}

// RecordMessageSent records an outgoing message.
func (m *Monitor) RecordMessageSent() {
	m.messagesSent.Add(1)
}

// GetLastMessageTime returns the time of the last message.
func (m *Monitor) GetLastMessageTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastMessage
}

// GetNextReconnectDelay returns the next reconnect delay using exponential backoff.
func (m *Monitor) GetNextReconnectDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.retryCount++
	return m.reconnectBackoff.NextBackOff()
}

// ResetReconnectBackoff resets the backoff to initial values.
func (m *Monitor) ResetReconnectBackoff() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reconnectBackoff.Reset()
	m.retryCount = 0
}

// IsMaxRetriesExceeded returns true if max reconnection retries have been exceeded.
func (m *Monitor) IsMaxRetriesExceeded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.retryCount > m.maxRetries
}

// IncrementReconnectCount increments the total reconnection count.
func (m *Monitor) IncrementReconnectCount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnectCount++
}

// GetReconnectCount returns the total number of reconnections.
func (m *Monitor) GetReconnectCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reconnectCount
}

// ScheduleReconnect schedules a reconnection attempt with backoff. It
// reports false when retries are exhausted or the monitor is stopped.
func (m *Monitor) ScheduleReconnect(callback func()) bool {
	if m.ctx.Err() != nil {
		return false
	}
	if m.IsMaxRetriesExceeded() {
		m.log.Error("max reconnection retries exceeded", "max_retries", m.maxRetries)
		return false
	}

	delay := m.GetNextReconnectDelay()
	m.mu.RLock()
	attempt := m.retryCount
	m.mu.RUnlock()
	if !m.track() {
		return false
	}
	m.log.Info("scheduling reconnect", "delay", delay, "attempt", attempt)

	go func() {
		defer m.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			m.IncrementReconnectCount()
			callback()
		case <-m.ctx.Done():
			return
		}
	}()
	return true
}

// track registers a monitor goroutine unless the monitor is stopped. The
// check and the Add happen under mu so they cannot race with Stop.
func (m *Monitor) track() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return false
	}
	m.wg.Add(1)
	return true
}

// OnConnectionRestored should be called when connection is restored.
func (m *Monitor) OnConnectionRestored() {
	m.ResetReconnectBackoff()
	m.log.Info("connection restored, backoff reset")
}
