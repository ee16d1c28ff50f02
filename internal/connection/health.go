package connection

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
)

// healthMonitor owns the ping/pong cadence and latency computation for
// one active connection. Started on transport open, stopped on close.
type healthMonitor struct {
	clk    clock.Clock
	logger *slog.Logger
	send   func(v any) SendResult

	pingInterval   time.Duration
	pongWait       time.Duration
	statusInterval time.Duration

	mu        sync.Mutex
	running   bool
	stop      chan struct{}
	pongTimer *clock.Timer
	snap      HealthSnapshot
	subs      []func(HealthSnapshot)
}

func newHealthMonitor(clk clock.Clock, send func(v any) SendResult, pingInterval, pongWait, statusInterval time.Duration, logger *slog.Logger) *healthMonitor {
	return &healthMonitor{
		clk:            clk,
		logger:         logger,
		send:           send,
		pingInterval:   pingInterval,
		pongWait:       pongWait,
		statusInterval: statusInterval,
		snap:           HealthSnapshot{LatencyMillis: -1},
	}
}

// Start resets the snapshot, sends the initial ping, and begins the
// ping and monitoring-status cadences. No-op if already running.
func (m *healthMonitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.snap = HealthSnapshot{LatencyMillis: -1}
	stop := m.stop
	m.mu.Unlock()

	m.sendPing()

	go m.run(stop)
}

// Stop cancels the cadences and the pending pong deadline. A timeout in
// progress is cleared: it only ever spans ping-deadline to pong-or-reconnect.
func (m *healthMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	if m.pongTimer != nil {
		m.pongTimer.Stop()
		m.pongTimer = nil
	}
	hadTimeout := m.snap.PingTimeout
	m.snap.PingTimeout = false
	snap := m.snap
	subs := m.subscribers()
	m.mu.Unlock()

	if hadTimeout {
		notifyHealth(subs, snap)
	}
}

// Snapshot returns the current health snapshot.
func (m *healthMonitor) Snapshot() HealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Subscribe registers a health change callback. Callbacks run in
// registration order.
func (m *healthMonitor) Subscribe(fn func(HealthSnapshot)) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// HandlePong records latency from an answered ping and clears any
// timeout flag. The pong echoes the timestamp we sent.
func (m *healthMonitor) HandlePong(timestamp float64) {
	now := m.clk.Now()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	if m.pongTimer != nil {
		m.pongTimer.Stop()
		m.pongTimer = nil
	}
	if timestamp > 0 {
		m.snap.LatencyMillis = now.UnixMilli() - int64(timestamp)
	}
	m.snap.LastPongAt = now
	m.snap.PingTimeout = false
	snap := m.snap
	subs := m.subscribers()
	m.mu.Unlock()

	notifyHealth(subs, snap)
}

// HandlePing echoes a server-initiated heartbeat with the same timestamp.
func (m *healthMonitor) HandlePing(timestamp float64) {
	m.send(outbound{Type: typePong, Timestamp: timestamp})
}

// HandleServerStatus replaces the opaque server-reported status.
func (m *healthMonitor) HandleServerStatus(data json.RawMessage) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.snap.ServerStatus = data
	snap := m.snap
	subs := m.subscribers()
	m.mu.Unlock()

	notifyHealth(subs, snap)
}

func (m *healthMonitor) run(stop chan struct{}) {
	pingTicker := m.clk.Ticker(m.pingInterval)
	defer pingTicker.Stop()

	statusTicker := m.clk.Ticker(m.statusInterval)
	defer statusTicker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-pingTicker.C:
			m.sendPing()
		case <-statusTicker.C:
			m.send(outbound{Type: typeMonitoringStatus})
		}
	}
}

// sendPing emits a ping carrying the current wall clock and arms the
// pong deadline for it.
func (m *healthMonitor) sendPing() {
	ts := float64(m.clk.Now().UnixMilli())
	if m.send(outbound{Type: typePing, Timestamp: ts}) != SendDelivered {
		return
	}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	if m.pongTimer != nil {
		m.pongTimer.Stop()
	}
	m.pongTimer = m.clk.AfterFunc(m.pongWait, m.pongExpired)
	m.mu.Unlock()
}

// pongExpired marks the connection health as degraded. Advisory only:
// an actual reconnect is triggered by a transport close, never by this.
func (m *healthMonitor) pongExpired() {
	m.mu.Lock()
	if !m.running || m.snap.PingTimeout {
		m.mu.Unlock()
		return
	}
	m.snap.PingTimeout = true
	snap := m.snap
	subs := m.subscribers()
	m.mu.Unlock()

	m.logger.Warn("ping timed out, connection health degraded",
		"timeout", m.pongWait,
	)
	notifyHealth(subs, snap)
}

// subscribers returns a copy of the callback list. Caller holds mu.
func (m *healthMonitor) subscribers() []func(HealthSnapshot) {
	out := make([]func(HealthSnapshot), len(m.subs))
	copy(out, m.subs)
	return out
}

func notifyHealth(subs []func(HealthSnapshot), snap HealthSnapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}
