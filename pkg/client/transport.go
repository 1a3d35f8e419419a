package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/focushive/hivesync/pkg/protocol"
)

// Conn is a live, handshaken connection to the server.
type Conn interface {
	// ReadEnvelope blocks until the next inbound envelope arrives or
	// the connection dies.
	ReadEnvelope() (*protocol.Envelope, error)

	// WriteEnvelope transmits an envelope.
	WriteEnvelope(*protocol.Envelope) error

	// Close tears the connection down. Idempotent.
	Close() error
}

// Transport dials connections. The production implementation speaks
// WebSocket; tests inject a fake.
type Transport interface {
	// Dial establishes a connection to url and completes the
	// handshake: it must not return a Conn until the server's welcome
	// has been received.
	Dial(ctx context.Context, url string, header http.Header) (Conn, *protocol.Welcome, error)
}

// WebSocketTransport dials gorilla WebSocket connections carrying
// JSON-encoded envelopes in text messages.
type WebSocketTransport struct {
	// HandshakeTimeout bounds the dial plus the wait for the server
	// welcome. Default: 10 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each envelope write. Default: 10 seconds.
	WriteTimeout time.Duration
}

// Dial connects to url, then waits for the server's "connect" welcome
// envelope before handing the connection over.
func (t *WebSocketTransport) Dial(ctx context.Context, url string, header http.Header) (Conn, *protocol.Welcome, error) {
	handshakeTimeout := t.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	writeTimeout := t.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", url, err)
	}

	// The welcome must arrive within the same handshake budget.
	ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	env, err := protocol.DecodeEnvelope(msg)
	if err != nil {
		ws.Close()
		return nil, nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if env.Type != protocol.LifecycleConnect {
		ws.Close()
		return nil, nil, fmt.Errorf("%w: expected %s, got %s",
			ErrHandshakeFailed, protocol.LifecycleConnect, env.Type)
	}
	payload, err := protocol.DecodePayload(env)
	if err != nil {
		ws.Close()
		return nil, nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	welcome, ok := payload.(*protocol.Welcome)
	if !ok {
		ws.Close()
		return nil, nil, fmt.Errorf("%w: malformed welcome", ErrHandshakeFailed)
	}

	ws.SetReadDeadline(time.Time{})
	return &wsConn{ws: ws, writeTimeout: writeTimeout}, welcome, nil
}

// wsConn adapts a gorilla connection to the Conn interface.
type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

func (c *wsConn) ReadEnvelope() (*protocol.Envelope, error) {
	_, msg, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return protocol.DecodeEnvelope(msg)
}

func (c *wsConn) WriteEnvelope(env *protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
