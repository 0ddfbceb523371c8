package realtime

import (
	"bytes"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gorilla/websocket"
)

const (
	// DefaultWriteTimeout bounds a single frame write to a slow or dead client.
	DefaultWriteTimeout = 10 * time.Second

	maxMessageSize = 1 << 16
)

// ErrTransportClosed is returned when writing to a transport after Close.
var ErrTransportClosed = errors.New("realtime: transport closed")

// Transport writes framed events to one client connection.
type Transport interface {
	Send(event string, data any) error
	Close() error
}

// SSETransport frames events as text/event-stream records on an HTTP response.
type SSETransport struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
	closed       atomic.Bool
}

// NewSSETransport prepares w for event streaming. The caller must not write to w afterwards.
func NewSSETransport(w http.ResponseWriter, writeTimeout time.Duration) *SSETransport {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	header := w.Header()
	header.Set("Content-Type", sse.ContentType)
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	return &SSETransport{
		w:            w,
		rc:           http.NewResponseController(w),
		writeTimeout: writeTimeout,
	}
}

// Send encodes and flushes a single event.
func (t *SSETransport) Send(event string, data any) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	var buf bytes.Buffer
	if err := sse.Encode(&buf, sse.Event{Event: event, Data: data}); err != nil {
		return err
	}

	if err := t.rc.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := t.w.Write(buf.Bytes()); err != nil {
		return err
	}
	if err := t.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// Close marks the transport as finished; the owning handler ends the response.
func (t *SSETransport) Close() error {
	t.closed.Store(true)
	return nil
}

type wsFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// WebSocketTransport frames events as JSON messages on a WebSocket connection.
type WebSocketTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	closed       atomic.Bool
}

// NewWebSocketTransport wraps an upgraded connection.
func NewWebSocketTransport(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketTransport {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	conn.SetReadLimit(maxMessageSize)
	return &WebSocketTransport{conn: conn, writeTimeout: writeTimeout}
}

// Send writes one JSON frame.
func (t *WebSocketTransport) Send(event string, data any) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteJSON(wsFrame{Event: event, Data: data})
}

// Close sends a close frame and releases the socket.
func (t *WebSocketTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	deadline := time.Now().Add(t.writeTimeout)
	_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return t.conn.Close()
}

// DrainReads consumes client frames until the peer goes away. Clients are not
// expected to send anything; the loop exists to observe close frames.
func (t *WebSocketTransport) DrainReads() error {
	for {
		if _, _, err := t.conn.ReadMessage(); err != nil {
			return err
		}
	}
}
