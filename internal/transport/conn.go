// Package transport is the thin websocket adapter (C12): it hosts the
// duplex channel a connection uses to send events, without reimplementing
// wire framing or authentication — both are explicitly out of scope and
// assumed handled upstream of this package.
package transport

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// envelope is the minimal wire shape: a named event plus an arbitrary
// JSON payload. Framing beyond this is the transport's concern, not this
// package's.
type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Conn wraps a single websocket connection. Writes are serialized with a
// mutex since gorilla/websocket forbids concurrent writers on one
// connection.
type Conn struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	logger *slog.Logger
}

// New wraps an already-upgraded websocket connection.
func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, logger: slog.Default().With("component", "Transport")}
}

// Send writes one event as a JSON text frame.
func (c *Conn) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(envelope{Event: event, Payload: payload})
}

// ReadEvent blocks for the next incoming frame and decodes it into an
// event name and raw payload, left to the caller to unmarshal further.
func (c *Conn) ReadEvent() (string, json.RawMessage, error) {
	var raw struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := c.ws.ReadJSON(&raw); err != nil {
		return "", nil, err
	}
	return raw.Event, raw.Payload, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}
