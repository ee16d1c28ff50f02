package connection

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/golang-jwt/jwt/v5"

	"github.com/subwatch/dashboard/internal/router"
)

type fakeTransport struct {
	cb Callbacks

	mu        sync.Mutex
	sent      [][]byte
	closed    bool
	closeCode int
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrAlreadyClosed
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCode = code
	return nil
}

func (f *fakeTransport) sentTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, data := range f.sent {
		var env struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &env) == nil {
			types = append(types, env.Type)
		}
	}
	return types
}

type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	lastURL  string
	failWith error
	last     *fakeTransport
}

func (d *fakeDialer) dial(ctx context.Context, url string, cb Callbacks) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.lastURL = url
	if d.failWith != nil {
		return nil, d.failWith
	}
	t := &fakeTransport{cb: cb}
	d.last = t
	if cb.OnOpen != nil {
		cb.OnOpen()
	}
	return t, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) transport() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *fakeDialer) setFailure(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWith = err
}

func testToken(t *testing.T) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestManager(t *testing.T, d *fakeDialer) (*Manager, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Add(12 * time.Hour)

	cfg := DefaultManagerConfig()
	cfg.BaseURL = "http://localhost:8000"
	rt := router.New(discardLogger())
	m := NewManager(cfg, rt, discardLogger(), WithDial(d.dial), WithClock(clk))
	return m, clk
}

func TestManager_ConnectBadToken(t *testing.T) {
	d := &fakeDialer{}
	m, _ := newTestManager(t, d)

	if got := m.Connect("not-a-jwt"); got != ConnectSkippedBadToken {
		t.Errorf("Connect() = %v, want %v", got, ConnectSkippedBadToken)
	}
	if d.dialCount() != 0 {
		t.Errorf("dials = %d, want 0", d.dialCount())
	}
	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want %v", m.State(), StateDisconnected)
	}
}

func TestManager_ConnectDisabled(t *testing.T) {
	d := &fakeDialer{}
	clk := clock.NewMock()
	cfg := DefaultManagerConfig()
	cfg.BaseURL = "http://localhost:8000"
	cfg.Enabled = false
	m := NewManager(cfg, router.New(discardLogger()), discardLogger(), WithDial(d.dial), WithClock(clk))

	if got := m.Connect(testToken(t)); got != ConnectSkippedDisabled {
		t.Errorf("Connect() = %v, want %v", got, ConnectSkippedDisabled)
	}
	if d.dialCount() != 0 {
		t.Errorf("dials = %d, want 0", d.dialCount())
	}
}

func TestManager_ConnectSuccess(t *testing.T) {
	d := &fakeDialer{}
	m, _ := newTestManager(t, d)

	var states []State
	var statesMu sync.Mutex
	m.OnStateChange(func(s State) {
		statesMu.Lock()
		states = append(states, s)
		statesMu.Unlock()
	})

	if got := m.Connect(testToken(t)); got != ConnectStarted {
		t.Fatalf("Connect() = %v, want %v", got, ConnectStarted)
	}

	waitFor(t, "connected state", func() bool { return m.State() == StateConnected })

	if !strings.HasPrefix(d.lastURL, "ws://localhost:8000/api/ws?") {
		t.Errorf("dial URL = %q, want ws scheme and /api/ws path", d.lastURL)
	}
	if !strings.Contains(d.lastURL, "token=") {
		t.Errorf("dial URL = %q, want token query parameter", d.lastURL)
	}

	// Bootstrap handshake: initial ping plus the two status requests.
	ft := d.transport()
	waitFor(t, "bootstrap messages", func() bool { return len(ft.sentTypes()) >= 3 })
	types := ft.sentTypes()
	want := map[string]bool{typePing: false, typeMonitoringStatus: false, typeHealthCheck: false}
	for _, typ := range types {
		if _, ok := want[typ]; ok {
			want[typ] = true
		}
	}
	for typ, seen := range want {
		if !seen {
			t.Errorf("bootstrap did not send %q, sent %v", typ, types)
		}
	}

	statesMu.Lock()
	defer statesMu.Unlock()
	if len(states) != 2 || states[0] != StateConnecting || states[1] != StateConnected {
		t.Errorf("state sequence = %v, want [connecting connected]", states)
	}
}

func TestManager_ConnectSkippedWhileActive(t *testing.T) {
	d := &fakeDialer{}
	m, _ := newTestManager(t, d)
	token := testToken(t)

	m.Connect(token)
	waitFor(t, "connected state", func() bool { return m.State() == StateConnected })

	if got := m.Connect(token); got != ConnectSkippedActive {
		t.Errorf("second Connect() = %v, want %v", got, ConnectSkippedActive)
	}
	if d.dialCount() != 1 {
		t.Errorf("dials = %d, want 1", d.dialCount())
	}
}

func TestManager_TransientCloseReconnects(t *testing.T) {
	d := &fakeDialer{}
	m, clk := newTestManager(t, d)

	m.Connect(testToken(t))
	waitFor(t, "connected state", func() bool { return m.State() == StateConnected })

	ft := d.transport()
	ft.cb.OnClose(CloseAbnormal, "read: connection reset")

	if m.State() != StateReconnecting {
		t.Fatalf("State() = %v, want %v", m.State(), StateReconnecting)
	}
	if m.Attempts() != 1 {
		t.Errorf("Attempts() = %d, want 1", m.Attempts())
	}
	if !strings.Contains(m.LastError(), "code 1006") {
		t.Errorf("LastError() = %q, want close code mention", m.LastError())
	}

	clk.Add(time.Second)
	waitFor(t, "reconnected", func() bool { return m.State() == StateConnected })

	if d.dialCount() != 2 {
		t.Errorf("dials = %d, want 2", d.dialCount())
	}
	if m.Attempts() != 0 {
		t.Errorf("Attempts() after successful reconnect = %d, want 0", m.Attempts())
	}
	if m.LastError() != "" {
		t.Errorf("LastError() = %q, want empty", m.LastError())
	}
}

func TestManager_TerminalCloseDoesNotReconnect(t *testing.T) {
	d := &fakeDialer{}
	m, clk := newTestManager(t, d)

	m.Connect(testToken(t))
	waitFor(t, "connected state", func() bool { return m.State() == StateConnected })

	d.transport().cb.OnClose(CloseUserNotFound, "user not found")

	if m.State() != StateDisconnected {
		t.Fatalf("State() = %v, want %v", m.State(), StateDisconnected)
	}
	if m.LastError() != "authentication failed: user not found" {
		t.Errorf("LastError() = %q, want user-not-found reason", m.LastError())
	}

	clk.Add(30 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if d.dialCount() != 1 {
		t.Errorf("dials = %d after terminal close, want 1", d.dialCount())
	}
}

func TestManager_NormalCloseSettlesClean(t *testing.T) {
	d := &fakeDialer{}
	m, clk := newTestManager(t, d)

	m.Connect(testToken(t))
	waitFor(t, "connected state", func() bool { return m.State() == StateConnected })

	d.transport().cb.OnClose(CloseNormal, "server shutdown")

	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want %v", m.State(), StateDisconnected)
	}
	if m.LastError() != "" {
		t.Errorf("LastError() = %q, want empty after clean close", m.LastError())
	}

	clk.Add(30 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if d.dialCount() != 1 {
		t.Errorf("dials = %d after clean close, want 1", d.dialCount())
	}
}

func TestManager_ExhaustsReconnectBudget(t *testing.T) {
	d := &fakeDialer{failWith: errors.New("connection refused")}
	m, clk := newTestManager(t, d)

	m.Connect(testToken(t))
	waitFor(t, "first failed attempt", func() bool { return m.Attempts() == 1 })

	policy := DefaultPolicy()
	for n := 1; n < policy.MaxAttempts; n++ {
		clk.Add(policy.Delay(n - 1))
		want := n + 1
		waitFor(t, "attempt increment", func() bool { return m.Attempts() == want })
		if m.State() != StateReconnecting {
			t.Fatalf("State() at attempt %d = %v, want %v", want, m.State(), StateReconnecting)
		}
	}

	// The final retry fails with the budget spent.
	clk.Add(policy.Delay(policy.MaxAttempts - 1))
	waitFor(t, "exhaustion", func() bool { return m.State() == StateDisconnected })

	if m.LastError() != "max reconnect attempts exceeded" {
		t.Errorf("LastError() = %q, want exhaustion message", m.LastError())
	}
	if d.dialCount() != policy.MaxAttempts+1 {
		t.Errorf("dials = %d, want %d", d.dialCount(), policy.MaxAttempts+1)
	}

	// No further retries fire on their own.
	clk.Add(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if d.dialCount() != policy.MaxAttempts+1 {
		t.Errorf("dials after exhaustion = %d, want %d", d.dialCount(), policy.MaxAttempts+1)
	}

	// A fresh operator connect gets a fresh budget.
	d.setFailure(nil)
	if got := m.Connect(testToken(t)); got != ConnectStarted {
		t.Fatalf("Connect() after exhaustion = %v, want %v", got, ConnectStarted)
	}
	waitFor(t, "reconnected", func() bool { return m.State() == StateConnected })
	if m.Attempts() != 0 {
		t.Errorf("Attempts() = %d, want 0", m.Attempts())
	}
}

func TestManager_StaleCloseFromReplacedTransport(t *testing.T) {
	d := &fakeDialer{}
	m, clk := newTestManager(t, d)
	token := testToken(t)

	m.Connect(token)
	waitFor(t, "connected state", func() bool { return m.State() == StateConnected })
	first := d.transport()

	m.Disconnect()
	m.Connect(token)
	waitFor(t, "replacement connection", func() bool {
		return m.State() == StateConnected && d.transport() != first
	})

	// The old read loop reports its close long after the replacement
	// connection is up. Neither a clean nor an abnormal report may
	// touch the live connection.
	first.cb.OnClose(CloseNormal, "client disconnect")
	if m.State() != StateConnected {
		t.Fatalf("State() after old clean close = %v, want %v", m.State(), StateConnected)
	}
	if got := m.Send(outbound{Type: typePing, Timestamp: 1}); got != SendDelivered {
		t.Errorf("Send() after old clean close = %v, want %v", got, SendDelivered)
	}

	first.cb.OnClose(CloseAbnormal, "read: connection reset")
	first.cb.OnError(errors.New("use of closed network connection"))
	if m.State() != StateConnected {
		t.Fatalf("State() after old abnormal close = %v, want %v", m.State(), StateConnected)
	}

	// And no reconnect dial was scheduled on its behalf.
	clk.Add(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if d.dialCount() != 2 {
		t.Errorf("dials = %d, want 2", d.dialCount())
	}
}

func TestManager_ConnectDuringReconnectCancelsTimer(t *testing.T) {
	d := &fakeDialer{failWith: errors.New("connection refused")}
	m, clk := newTestManager(t, d)
	token := testToken(t)

	m.Connect(token)
	waitFor(t, "first failed attempt", func() bool { return m.Attempts() == 1 })

	// Operator retries while the redial timer is pending. The fresh
	// attempt replaces the pending one instead of stacking on it.
	if got := m.Connect(token); got != ConnectStarted {
		t.Fatalf("Connect() during reconnect = %v, want %v", got, ConnectStarted)
	}
	waitFor(t, "fresh attempt failure", func() bool {
		return d.dialCount() == 2 && m.Attempts() == 1
	})

	clk.Add(time.Second)
	waitFor(t, "single redial", func() bool { return d.dialCount() == 3 })
	time.Sleep(20 * time.Millisecond)

	if d.dialCount() != 3 {
		t.Errorf("dials = %d, want 3 (superseded timer must not fire)", d.dialCount())
	}
	if m.Attempts() != 2 {
		t.Errorf("Attempts() = %d, want 2", m.Attempts())
	}
}

func TestManager_SendWhileDisconnected(t *testing.T) {
	d := &fakeDialer{}
	m, _ := newTestManager(t, d)

	if got := m.Send(map[string]string{"type": "ping"}); got != SendDropped {
		t.Errorf("Send() while disconnected = %v, want %v", got, SendDropped)
	}
}

func TestManager_SendWhileConnected(t *testing.T) {
	d := &fakeDialer{}
	m, _ := newTestManager(t, d)

	m.Connect(testToken(t))
	waitFor(t, "connected state", func() bool { return m.State() == StateConnected })

	if got := m.Send(outbound{Type: typePing, Timestamp: 42}); got != SendDelivered {
		t.Errorf("Send() while connected = %v, want %v", got, SendDelivered)
	}
}

func TestManager_DisconnectIsTerminal(t *testing.T) {
	d := &fakeDialer{}
	m, clk := newTestManager(t, d)

	m.Connect(testToken(t))
	waitFor(t, "connected state", func() bool { return m.State() == StateConnected })

	m.Disconnect()

	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want %v", m.State(), StateDisconnected)
	}

	ft := d.transport()
	ft.mu.Lock()
	closed, code := ft.closed, ft.closeCode
	ft.mu.Unlock()
	if !closed || code != CloseNormal {
		t.Errorf("transport close = (%v, %d), want (true, %d)", closed, code, CloseNormal)
	}

	clk.Add(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if d.dialCount() != 1 {
		t.Errorf("dials after Disconnect = %d, want 1", d.dialCount())
	}
}
