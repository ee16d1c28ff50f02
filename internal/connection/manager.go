package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/google/uuid"

	"github.com/subwatch/dashboard/internal/auth"
	"github.com/subwatch/dashboard/internal/router"
)

// ManagerConfig configures the connection Manager.
type ManagerConfig struct {
	BaseURL        string        // server base URL (http/https, upgraded to ws/wss)
	Enabled        bool          // realtime channel on/off; off makes Connect a no-op
	Policy         Policy        // reconnect pacing
	PingInterval   time.Duration // client ping cadence
	PongTimeout    time.Duration // max wait for a pong before flagging degraded health
	StatusInterval time.Duration // server status refresh cadence
	DialTimeout    time.Duration // handshake deadline per attempt
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Enabled:        true,
		Policy:         DefaultPolicy(),
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		StatusInterval: 60 * time.Second,
		DialTimeout:    10 * time.Second,
	}
}

// Manager owns the transport lifecycle: it validates the token, dials,
// keeps the connection alive, reconnects with bounded backoff, and
// exposes the observable connection state.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger
	clk    clock.Clock
	dial   DialFunc
	router *router.Router
	health *healthMonitor

	mu             sync.Mutex
	state          State
	attempts       int
	connecting     bool // guards against a second dial while one is in flight
	terminal       bool // set by Disconnect; suppresses automatic reconnects
	lastErr        string
	token          string
	connID         string
	transport      Transport
	reconnectTimer *clock.Timer
	stateSubs      []func(State)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock substitutes the wall clock, for deterministic tests.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) { m.clk = clk }
}

// WithDial substitutes the transport factory, for tests.
func WithDial(dial DialFunc) Option {
	return func(m *Manager) { m.dial = dial }
}

// NewManager creates a connection Manager that dispatches inbound
// frames to rt. The manager's health monitor is registered as rt's
// heartbeat sink.
func NewManager(cfg ManagerConfig, rt *router.Router, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:    cfg,
		logger: logger,
		clk:    clock.New(),
		dial:   Dial,
		router: rt,
		state:  StateDisconnected,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.health = newHealthMonitor(m.clk, m.Send, cfg.PingInterval, cfg.PongTimeout, cfg.StatusInterval, logger)
	if rt != nil {
		rt.SetHealthSink(m.health)
	}

	return m
}

// Connect validates the token and starts a connection attempt. A fresh
// operator-initiated connect resets the retry budget. Skips are
// explicit results, not errors.
func (m *Manager) Connect(token string) ConnectResult {
	if !m.cfg.Enabled {
		m.logger.Debug("realtime channel disabled, skipping connect")
		return ConnectSkippedDisabled
	}
	if !auth.IsWellFormed(token) {
		m.logger.Warn("bearer token is not a well-formed JWT, skipping connect")
		return ConnectSkippedBadToken
	}

	m.mu.Lock()
	if m.connecting || m.transport != nil {
		m.mu.Unlock()
		return ConnectSkippedActive
	}
	m.attempts = 0
	m.terminal = false
	m.lastErr = ""
	if m.reconnectTimer != nil {
		// An operator retry supersedes a pending redial.
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	notify := m.startConnectLocked(token)
	id := m.connID
	m.mu.Unlock()
	notify()

	m.logger.Info("connecting", "conn_id", id)
	go m.dialAndServe(token, id)

	return ConnectStarted
}

// Send marshals v and writes it if connected. Anything else is dropped:
// this channel is supplementary signaling, not a delivery guarantee.
func (m *Manager) Send(v any) SendResult {
	m.mu.Lock()
	t := m.transport
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || t == nil {
		return SendDropped
	}

	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("dropping unencodable message", "error", err)
		return SendDropped
	}

	if err := t.Send(data); err != nil {
		m.logger.Debug("send failed, dropping message", "error", err)
		return SendDropped
	}
	return SendDelivered
}

// Disconnect closes the transport with a normal closure, cancels every
// pending timer, and settles at Disconnected. Terminal: no automatic
// reconnect happens afterward.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.terminal = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	t := m.transport
	m.transport = nil
	m.connecting = false
	m.lastErr = ""
	notify := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	m.health.Stop()
	if t != nil {
		t.Close(CloseNormal, "client disconnect")
	}
	notify()

	m.logger.Info("disconnected")
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the human-readable reason the connection is down,
// or "" after a clean close or while healthy.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Attempts returns the current reconnect attempt count.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// MaxAttempts returns the configured reconnect attempt budget.
func (m *Manager) MaxAttempts() int {
	return m.cfg.Policy.MaxAttempts
}

// Health returns the latest health snapshot.
func (m *Manager) Health() HealthSnapshot {
	return m.health.Snapshot()
}

// OnStateChange registers a state change callback. Callbacks run in
// registration order.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	m.stateSubs = append(m.stateSubs, fn)
	m.mu.Unlock()
}

// OnHealthChange registers a health snapshot callback.
func (m *Manager) OnHealthChange(fn func(HealthSnapshot)) {
	m.health.Subscribe(fn)
}

// startConnectLocked transitions to Connecting and assigns a new
// attempt ID. Caller holds mu and has already checked the guards.
func (m *Manager) startConnectLocked(token string) func() {
	m.token = token
	m.connecting = true
	m.connID = uuid.NewString()[:8]
	return m.setStateLocked(StateConnecting)
}

// setStateLocked updates the state and returns the deferred subscriber
// notification, to be invoked after mu is released.
func (m *Manager) setStateLocked(s State) func() {
	if m.state == s {
		return func() {}
	}
	m.state = s
	subs := slices.Clone(m.stateSubs)
	return func() {
		for _, fn := range subs {
			fn(s)
		}
	}
}

// dialAndServe opens the transport. Dial failures flow through the
// transient close path so they share the backoff budget.
func (m *Manager) dialAndServe(token, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	defer cancel()

	cb := Callbacks{
		OnMessage: func(data []byte) { m.router.Dispatch(data) },
		OnClose:   func(code int, reason string) { m.handleClose(id, code, reason) },
		OnError:   func(err error) { m.handleError(id, err) },
	}

	t, err := m.dial(ctx, m.wsURL(token), cb)
	if err != nil {
		m.logger.Warn("dial failed", "conn_id", id, "error", err)
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
		m.handleClose(id, CloseAbnormal, err.Error())
		return
	}

	m.handleOpen(t, id)
}

// handleOpen adopts the transport, resets the retry budget, and runs
// the bootstrap handshake.
func (m *Manager) handleOpen(t Transport, id string) {
	m.mu.Lock()
	if id != m.connID {
		// A newer connect superseded this dial; its guard state is not
		// ours to touch.
		m.mu.Unlock()
		t.Close(CloseNormal, "superseded connection")
		return
	}
	if m.terminal {
		// Disconnect won the race while the dial was in flight.
		m.connecting = false
		m.mu.Unlock()
		t.Close(CloseNormal, "client shutdown")
		return
	}
	m.transport = t
	m.connecting = false
	m.attempts = 0
	m.lastErr = ""
	notify := m.setStateLocked(StateConnected)
	m.mu.Unlock()
	notify()

	m.logger.Info("connected", "conn_id", id)

	// Bootstrap handshake, all fire-and-forget. The initial ping comes
	// from the health monitor so its pong deadline is armed.
	m.health.Start()
	m.Send(outbound{Type: typeMonitoringStatus})
	m.Send(outbound{Type: typeHealthCheck, RequestID: id})
}

// handleClose consults the close code and the remaining attempt budget
// to decide between settling at Disconnected and scheduling a retry.
// Events carry the conn ID of the transport that raised them: a read
// loop reports its close asynchronously, so a close from a transport
// that has since been replaced must not touch its successor.
func (m *Manager) handleClose(id string, code int, reason string) {
	m.mu.Lock()
	if id != m.connID {
		m.mu.Unlock()
		m.logger.Debug("ignoring close from superseded connection",
			"conn_id", id,
			"code", code,
		)
		return
	}
	m.mu.Unlock()

	m.health.Stop()

	m.mu.Lock()
	if id != m.connID {
		m.mu.Unlock()
		return
	}
	m.transport = nil
	m.connecting = false

	var notify func()
	switch {
	case m.terminal:
		notify = m.setStateLocked(StateDisconnected)

	case code == CloseNormal:
		m.lastErr = ""
		notify = m.setStateLocked(StateDisconnected)
		m.logger.Info("connection closed", "code", code, "reason", reason)

	default:
		if msg, terminal := terminalReason(code); terminal {
			m.lastErr = msg
			notify = m.setStateLocked(StateDisconnected)
			m.logger.Warn("connection closed with terminal code, not retrying",
				"code", code,
				"reason", reason,
			)
		} else if m.attempts >= m.cfg.Policy.MaxAttempts {
			m.lastErr = "max reconnect attempts exceeded"
			notify = m.setStateLocked(StateDisconnected)
			m.logger.Warn("reconnect attempts exhausted",
				"code", code,
				"attempts", m.attempts,
			)
		} else {
			delay := m.cfg.Policy.Delay(m.attempts)
			m.attempts++
			m.lastErr = fmt.Sprintf("connection lost (code %d), retrying", code)
			notify = m.setStateLocked(StateReconnecting)
			m.reconnectTimer = m.clk.AfterFunc(delay, m.redial)
			m.logger.Info("connection lost, reconnect scheduled",
				"code", code,
				"reason", reason,
				"attempt", m.attempts,
				"delay", delay,
			)
		}
	}
	m.mu.Unlock()
	notify()
}

// handleError logs a transport error and clears the in-flight guard so
// a retry is not blocked forever if the close event never fires. The
// close itself is signaled separately. Errors from a superseded
// transport are dropped like its close.
func (m *Manager) handleError(id string, err error) {
	m.mu.Lock()
	if id != m.connID {
		m.mu.Unlock()
		return
	}
	m.connecting = false
	m.mu.Unlock()

	m.logger.Warn("transport error", "conn_id", id, "error", err)
}

// redial is the reconnect timer callback.
func (m *Manager) redial() {
	m.mu.Lock()
	if m.terminal || m.connecting || m.transport != nil {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	token := m.token
	attempt := m.attempts
	notify := m.startConnectLocked(token)
	id := m.connID
	m.mu.Unlock()
	notify()

	m.logger.Info("reconnecting", "conn_id", id, "attempt", attempt)
	go m.dialAndServe(token, id)
}

// wsURL builds the handshake URL: scheme upgraded to the wire scheme,
// token passed as a query parameter.
func (m *Manager) wsURL(token string) string {
	u, err := url.Parse(m.cfg.BaseURL)
	if err != nil {
		// Config validation catches this before a Manager exists.
		return m.cfg.BaseURL
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return u.String()
}
