package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// Callbacks bundles the four lifecycle events a transport reports.
// All callbacks are invoked from the transport's read goroutine except
// OnOpen, which fires before the first read.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnClose   func(code int, reason string)
	OnError   func(err error)
}

// Transport is a single live bidirectional channel. The Manager owns at
// most one at a time.
type Transport interface {
	// Send writes raw bytes to the channel.
	Send(data []byte) error

	// Close sends a close frame with the given code and tears the
	// channel down. The pending OnClose callback reports this code.
	Close(code int, reason string) error
}

// DialFunc opens a transport and registers its lifecycle callbacks.
// Injected into the Manager so tests can substitute a fake.
type DialFunc func(ctx context.Context, url string, cb Callbacks) (Transport, error)

// wsTransport implements Transport over gorilla/websocket.
type wsTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
}

// Dial opens a WebSocket connection and starts its read loop. On
// success OnOpen has already fired by the time Dial returns.
func Dial(ctx context.Context, url string, cb Callbacks) (Transport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	t := &wsTransport{conn: conn}

	if cb.OnOpen != nil {
		cb.OnOpen()
	}

	go t.readLoop(cb)

	return t, nil
}

// Send writes a text message to the connection.
func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrAlreadyClosed
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the underlying connection. The
// read loop reports the requested code instead of a read error.
func (t *wsTransport) Close(code int, reason string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.closeCode = code
	t.closeReason = reason
	t.mu.Unlock()

	t.writeMu.Lock()
	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()

	return t.conn.Close()
}

// readLoop reads messages until the connection drops, then reports the
// close. Messages are delivered in receive order, no batching.
func (t *wsTransport) readLoop(cb Callbacks) {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			code := t.closeCode
			reason := t.closeReason
			t.mu.Unlock()

			// Locally initiated close: report the requested code, not
			// the read error it caused.
			if closed {
				if cb.OnClose != nil {
					cb.OnClose(code, reason)
				}
				return
			}

			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
				reason = ce.Text
			} else {
				code = CloseAbnormal
				reason = err.Error()
				if cb.OnError != nil {
					cb.OnError(err)
				}
			}

			t.mu.Lock()
			t.closed = true
			t.mu.Unlock()
			t.conn.Close()

			if cb.OnClose != nil {
				cb.OnClose(code, reason)
			}
			return
		}

		if cb.OnMessage != nil {
			cb.OnMessage(data)
		}
	}
}
